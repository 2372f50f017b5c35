package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"polyarb/internal/domain"
)

// Archiver uploads one JSONL file of closed positions per trading day. The
// ledger remains the source of truth; the archive exists for offline
// analysis and survives ledger resets.
type Archiver struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	logger   *slog.Logger
}

// NewArchiver creates an Archiver on the given client.
func NewArchiver(c *Client, logger *slog.Logger) *Archiver {
	return &Archiver{
		client:   c.s3,
		uploader: manager.NewUploader(c.s3),
		bucket:   c.bucket,
		logger:   logger.With(slog.String("component", "s3_archiver")),
	}
}

// positionsKey builds the object key for one day's closed positions:
// archive/positions/2026-03-01.jsonl.
func positionsKey(day time.Time) string {
	return fmt.Sprintf("archive/positions/%s.jsonl", day.UTC().Format("2006-01-02"))
}

// ArchivePositions uploads the closed positions that exited on the given day
// as newline-delimited JSON and returns the number archived. Days with no
// exits upload nothing.
func (a *Archiver) ArchivePositions(ctx context.Context, day time.Time, closed []domain.Position) (int, error) {
	dayUTC := day.UTC().Truncate(24 * time.Hour)

	var batch []domain.Position
	for _, p := range closed {
		if p.ExitTime == nil {
			continue
		}
		if p.ExitTime.UTC().Truncate(24 * time.Hour).Equal(dayUTC) {
			batch = append(batch, p)
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(batch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: encode positions: %w", err)
	}

	key := positionsKey(dayUTC)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: upload %s: %w", key, err)
	}

	a.logger.Info("archived closed positions",
		slog.String("key", key),
		slog.Int("count", len(batch)))
	return len(batch), nil
}

// Archived reports whether a day's archive object already exists.
func (a *Archiver) Archived(ctx context.Context, day time.Time) (bool, error) {
	key := positionsKey(day)
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3blob: head %s: %w", key, err)
	}
	return true, nil
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// isNotFound matches the SDK typed errors plus the generic 404 that
// HeadObject and some S3-compatible providers return.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	type httpResponseError interface {
		HTTPStatusCode() int
	}
	var httpErr httpResponseError
	return errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == 404
}
