package detect

import (
	"sort"
	"sync"
	"time"

	"polyarb/internal/domain"
)

// Book is the time-boxed collection of active opportunities. Expired entries
// are pruned on every Add and may also be pruned explicitly on each scan
// tick. Safe for concurrent use.
type Book struct {
	mu   sync.Mutex
	opps []domain.Opportunity
	now  func() time.Time
}

// NewBook returns an empty opportunity book.
func NewBook() *Book {
	return &Book{now: time.Now}
}

// Add prunes expired opportunities and then appends the new one.
func (b *Book) Add(opp domain.Opportunity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(b.now())
	b.opps = append(b.opps, opp)
}

// Prune removes every opportunity whose expiry has passed. Idempotent.
func (b *Book) Prune() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pruneLocked(b.now())
}

func (b *Book) pruneLocked(now time.Time) int {
	kept := b.opps[:0]
	for _, o := range b.opps {
		if !o.Expired(now) {
			kept = append(kept, o)
		}
	}
	removed := len(b.opps) - len(kept)
	b.opps = kept
	return removed
}

// Len returns the number of active opportunities.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.opps)
}

// All returns a copy of the active opportunities in insertion order.
func (b *Book) All() []domain.Opportunity {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Opportunity, len(b.opps))
	copy(out, b.opps)
	return out
}

// TopN prunes, then returns the n best active opportunities by score.
func (b *Book) TopN(n int) []domain.Opportunity {
	b.mu.Lock()
	b.pruneLocked(b.now())
	opps := make([]domain.Opportunity, len(b.opps))
	copy(opps, b.opps)
	b.mu.Unlock()

	Rank(opps)
	if n < len(opps) {
		opps = opps[:n]
	}
	return opps
}

// Rank stable-sorts opportunities in place, best first. The score dampens the
// size term logarithmically so a huge position cannot outrank a clearly
// better edge.
func Rank(opps []domain.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].Score() > opps[j].Score()
	})
}
