package roundstore

import (
	"context"
	"sync"

	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
)

type roundKey struct {
	term, round uint64
}

// Memory is a RoundStore held entirely in memory
type Memory struct {
	mu      sync.RWMutex
	current *dpos.Round
	term    *dpos.Term
	history map[roundKey]*dpos.Round
}

func NewMemory() *Memory {
	return &Memory{history: make(map[roundKey]*dpos.Round)}
}

func (m *Memory) CurrentRound(ctx context.Context) (*dpos.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, dpos.ErrRoundNotFound
	}
	return m.current.Copy(), nil
}

func (m *Memory) CurrentTerm(ctx context.Context) (*dpos.Term, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.term == nil {
		return nil, dpos.ErrTermNotFound
	}
	return copyTerm(m.term), nil
}

func (m *Memory) RoundByNumber(ctx context.Context, term, round uint64) (*dpos.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.history[roundKey{term, round}]
	if !ok {
		return nil, dpos.ErrRoundNotFound
	}
	return r.Copy(), nil
}

func (m *Memory) SwapRound(ctx context.Context, prev, next *dpos.Round, term *dpos.Term) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := dpos.CheckSwap(m.current, prev); err != nil {
		return err
	}
	m.current = next.Copy()
	m.history[roundKey{next.TermNumber, next.RoundNumber}] = m.current.Copy()
	if term != nil {
		m.term = copyTerm(term)
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func copyTerm(t *dpos.Term) *dpos.Term {
	c := *t
	c.Miners = make([][]byte, len(t.Miners))
	for i := range t.Miners {
		c.Miners[i] = append([]byte(nil), t.Miners[i]...)
	}
	return &c
}
