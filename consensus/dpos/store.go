package dpos

import (
	"context"
	"errors"
)

var (
	ErrTermNotFound = errors.New("term information not found")
)

// RoundStore is the chain state store owning the current round. Reads return
// copies the caller may keep. CurrentRound and RoundByNumber fail with
// ErrRoundNotFound, CurrentTerm with ErrTermNotFound.
//
// SwapRound is the single atomic write: it replaces the current round (and,
// when term is non nil, the current term) only if the stored round still has
// the RoundID and Revision of prev, and fails with ErrRoundConflict
// otherwise. prev is nil to initialise an empty store.
type RoundStore interface {
	CurrentRound(ctx context.Context) (*Round, error)
	CurrentTerm(ctx context.Context) (*Term, error)

	// RoundByNumber returns the last stored revision of an earlier round
	RoundByNumber(ctx context.Context, term, round uint64) (*Round, error)

	SwapRound(ctx context.Context, prev, next *Round, term *Term) error

	Close() error
}

// CheckSwap is the compare half of SwapRound for store implementations.
// stored is nil when the store is empty.
func CheckSwap(stored, prev *Round) error {
	switch {
	case stored == nil && prev == nil:
		return nil
	case stored == nil || prev == nil:
		return ErrRoundConflict
	case stored.RoundID != prev.RoundID || stored.Revision != prev.Revision:
		return ErrRoundConflict
	}
	return nil
}
