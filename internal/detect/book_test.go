package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyarb/internal/domain"
)

func oppWith(id string, edge, conf, size float64, expiresAt time.Time) domain.Opportunity {
	return domain.Opportunity{
		Contract:        domain.Contract{ID: id},
		EdgePercent:     edge,
		Confidence:      conf,
		RecommendedSize: size,
		ExpiresAt:       expiresAt,
	}
}

func TestBookAddPrunesExpiredFirst(t *testing.T) {
	b := NewBook()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return base }

	b.Add(oppWith("a", 10, 0.8, 50, base.Add(10*time.Second)))
	b.Add(oppWith("b", 10, 0.8, 50, base.Add(time.Minute)))
	require.Equal(t, 2, b.Len())

	// Time passes beyond a's expiry; the next Add evicts it.
	b.now = func() time.Time { return base.Add(30 * time.Second) }
	b.Add(oppWith("c", 10, 0.8, 50, base.Add(time.Minute)))

	ids := make([]string, 0)
	for _, o := range b.All() {
		ids = append(ids, o.Contract.ID)
	}
	assert.Equal(t, []string{"b", "c"}, ids)
}

func TestBookPruneIdempotent(t *testing.T) {
	b := NewBook()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return base }

	b.Add(oppWith("a", 10, 0.8, 50, base.Add(5*time.Second)))
	b.Add(oppWith("b", 10, 0.8, 50, base.Add(time.Hour)))

	b.now = func() time.Time { return base.Add(time.Minute) }
	assert.Equal(t, 1, b.Prune())
	first := b.All()
	assert.Equal(t, 0, b.Prune())
	assert.Equal(t, first, b.All())
}

func TestRankOrdersByScore(t *testing.T) {
	far := time.Now().Add(time.Hour)
	small := oppWith("small-high-edge", 50, 0.9, 10, far)
	large := oppWith("large-moderate-edge", 30, 0.9, 200, far)
	weak := oppWith("weak", 5, 0.5, 50, far)

	opps := []domain.Opportunity{weak, small, large}
	Rank(opps)

	assert.Equal(t, "large-moderate-edge", opps[0].Contract.ID)
	assert.Equal(t, "small-high-edge", opps[1].Contract.ID)
	assert.Equal(t, "weak", opps[2].Contract.ID)
}

func TestTopN(t *testing.T) {
	b := NewBook()
	far := time.Now().Add(time.Hour)

	b.Add(oppWith("a", 5, 0.6, 50, far))
	b.Add(oppWith("b", 40, 0.9, 100, far))
	b.Add(oppWith("c", 20, 0.8, 100, far))

	top := b.TopN(2)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].Contract.ID)
	assert.Equal(t, "c", top[1].Contract.ID)

	// TopN larger than the book returns everything.
	assert.Len(t, b.TopN(10), 3)
}
