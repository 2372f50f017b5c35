package s3blob

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyarb/internal/domain"
)

func TestPositionsKey(t *testing.T) {
	day := time.Date(2026, 3, 1, 23, 45, 0, 0, time.UTC)
	assert.Equal(t, "archive/positions/2026-03-01.jsonl", positionsKey(day))
}

func TestMarshalJSONL(t *testing.T) {
	out, err := marshalJSONL([]domain.Position{
		{ID: "p1", Side: domain.SideYes},
		{ID: "p2", Side: domain.SideNo},
	})
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimRight(out, "\n"), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), `"ID":"p1"`)
	assert.Contains(t, string(lines[1]), `"ID":"p2"`)
}
