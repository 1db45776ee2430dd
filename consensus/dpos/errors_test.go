package dpos

import (
	"errors"
	"fmt"
	"testing"

	"gotest.tools/assert"
)

func TestConsensusErrorMatchesByKind(t *testing.T) {
	err := newErr(KindDuplicateCommit, "miner %s", "abc")

	assert.Assert(t, errors.Is(err, ErrDuplicateCommit))
	assert.Assert(t, !errors.Is(err, ErrRoundIDMismatch))
	assert.Assert(t, errors.Is(fmt.Errorf("apply: %w", err), ErrDuplicateCommit))

	assert.Equal(t, KindOf(err), KindDuplicateCommit)
	assert.Equal(t, KindOf(fmt.Errorf("x: %w", err)), KindDuplicateCommit)
	assert.Equal(t, KindOf(errors.New("io")), KindUnknown)

	assert.Equal(t, err.Error(), "DuplicateCommit: miner abc")
	assert.Equal(t, ErrRoundIDMismatch.Error(), "RoundIdMismatch: round id not matched")
}

func TestCheckSwap(t *testing.T) {
	a := &Round{RoundID: Hash{1}, Revision: 2}

	assert.NilError(t, CheckSwap(nil, nil))
	assert.Equal(t, CheckSwap(a, nil), ErrRoundConflict)
	assert.Equal(t, CheckSwap(nil, a), ErrRoundConflict)
	assert.NilError(t, CheckSwap(a, &Round{RoundID: Hash{1}, Revision: 2}))
	assert.Equal(t, CheckSwap(a, &Round{RoundID: Hash{1}, Revision: 1}), ErrRoundConflict)
	assert.Equal(t, CheckSwap(a, &Round{RoundID: Hash{2}, Revision: 2}), ErrRoundConflict)
}
