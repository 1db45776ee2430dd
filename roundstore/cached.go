package roundstore

import (
	"context"
	"errors"
	"sync"

	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
	lru "github.com/hashicorp/golang-lru"
)

// Cached puts an ARC cache in front of the RoundByNumber lookups of another
// store. Only rounds that have been superseded are cached, they can no
// longer change. Cached must be the only writer of the underlying store.
type Cached struct {
	dpos.RoundStore

	rounds *lru.ARCCache

	mu   sync.RWMutex
	head roundKey
}

func NewCached(ctx context.Context, store dpos.RoundStore, size int) (*Cached, error) {
	rounds, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	c := &Cached{RoundStore: store, rounds: rounds}

	r, err := store.CurrentRound(ctx)
	switch {
	case err == nil:
		c.head = roundKey{r.TermNumber, r.RoundNumber}
	case !errors.Is(err, dpos.ErrRoundNotFound):
		return nil, err
	}
	return c, nil
}

func (c *Cached) RoundByNumber(ctx context.Context, term, round uint64) (*dpos.Round, error) {
	key := roundKey{term, round}
	if v, ok := c.rounds.Get(key); ok {
		return v.(*dpos.Round).Copy(), nil
	}

	r, err := c.RoundStore.RoundByNumber(ctx, term, round)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	head := c.head
	c.mu.RUnlock()
	if key != head {
		c.rounds.Add(key, r.Copy())
	}
	return r, nil
}

func (c *Cached) SwapRound(ctx context.Context, prev, next *dpos.Round, term *dpos.Term) error {
	if err := c.RoundStore.SwapRound(ctx, prev, next, term); err != nil {
		return err
	}
	head := roundKey{next.TermNumber, next.RoundNumber}
	c.mu.Lock()
	c.head = head
	c.mu.Unlock()
	// a swap may have rewritten the archived copy of this round
	c.rounds.Remove(head)
	return nil
}

// Len is the number of cached rounds
func (c *Cached) Len() int {
	return c.rounds.Len()
}
