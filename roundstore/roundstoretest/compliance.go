// Package roundstoretest holds the compliance tests every dpos.RoundStore
// implementation must pass.
package roundstoretest

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"testing"

	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
	"github.com/RobustRoundRobin/go-dpos/rlpcodec"
	"github.com/stretchr/testify/require"
)

// Factory returns a new, empty, store. Closing it is left to the test.
type Factory func(t *testing.T, codec dpos.BytesCodec) dpos.RoundStore

type fixture struct {
	codec   *dpos.CipherCodec
	builder *dpos.RoundBuilder
	miners  [][]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec := rlpcodec.NewCodec()
	f := &fixture{codec: codec, builder: dpos.NewRoundBuilder(codec)}
	for i := 0; i < 3; i++ {
		k, err := ecdsa.GenerateKey(codec.Suite().Curve(), rand.Reader)
		require.NoError(t, err)
		f.miners = append(f.miners, codec.PubMarshal(&k.PublicKey))
	}
	return f
}

func (f *fixture) first(t *testing.T) *dpos.Round {
	r, err := f.builder.BuildFirstRound(f.miners, 4000, 100000)
	require.NoError(t, err)
	return r
}

// commit simulates an applied UpdateValue for the slot at index i
func commit(r *dpos.Round, i int) *dpos.Round {
	c := r.Copy()
	c.Miners[i].OutValue = dpos.Hash{byte(i + 1)}
	c.Miners[i].Signature = dpos.Hash{0xA0, byte(i + 1)}
	c.Miners[i].ProducedBlocks++
	c.Revision++
	return c
}

// TestRoundStoreCompliance runs the suite against stores made by f
func TestRoundStoreCompliance(t *testing.T, f Factory) {
	t.Helper()

	open := func(t *testing.T) (dpos.RoundStore, *fixture) {
		fx := newFixture(t)
		s := f(t, &rlpcodec.BytesCodec{})
		t.Cleanup(func() { require.NoError(t, s.Close()) })
		return s, fx
	}

	t.Run("empty store", func(t *testing.T) {
		s, _ := open(t)
		ctx := context.Background()

		_, err := s.CurrentRound(ctx)
		require.ErrorIs(t, err, dpos.ErrRoundNotFound)
		_, err = s.CurrentTerm(ctx)
		require.ErrorIs(t, err, dpos.ErrTermNotFound)
		_, err = s.RoundByNumber(ctx, 1, 1)
		require.ErrorIs(t, err, dpos.ErrRoundNotFound)
	})

	t.Run("initialise once", func(t *testing.T) {
		s, fx := open(t)
		ctx := context.Background()

		r := fx.first(t)
		term := &dpos.Term{Number: 1, StartTime: r.TermStartTime, Miners: r.MinerKeys()}
		require.NoError(t, s.SwapRound(ctx, nil, r, term))

		got, err := s.CurrentRound(ctx)
		require.NoError(t, err)
		require.Equal(t, r.RoundID, got.RoundID)
		require.Equal(t, r.Miners[2].Pub, got.Miners[2].Pub)

		gotTerm, err := s.CurrentTerm(ctx)
		require.NoError(t, err)
		require.Equal(t, term.Number, gotTerm.Number)
		require.Equal(t, term.Miners, gotTerm.Miners)

		require.ErrorIs(t, s.SwapRound(ctx, nil, r, term), dpos.ErrRoundConflict)
	})

	t.Run("swap requires matching revision", func(t *testing.T) {
		s, fx := open(t)
		ctx := context.Background()

		r := fx.first(t)
		require.NoError(t, s.SwapRound(ctx, nil, r, nil))

		r1 := commit(r, 0)
		require.NoError(t, s.SwapRound(ctx, r, r1, nil))

		// r is now stale, same round id but an older revision
		stale := commit(r, 1)
		require.ErrorIs(t, s.SwapRound(ctx, r, stale, nil), dpos.ErrRoundConflict)

		got, err := s.CurrentRound(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(1), got.Revision)
		require.True(t, got.Miners[0].Committed())
		require.False(t, got.Miners[1].Committed())
	})

	t.Run("history keeps last revision", func(t *testing.T) {
		s, fx := open(t)
		ctx := context.Background()

		r := fx.first(t)
		require.NoError(t, s.SwapRound(ctx, nil, r, nil))
		r1 := commit(r, 2)
		require.NoError(t, s.SwapRound(ctx, r, r1, nil))

		next, err := fx.builder.BuildNextRound(r1, r1.ExpiryTime()+r1.MiningInterval)
		require.NoError(t, err)
		require.NoError(t, s.SwapRound(ctx, r1, next, nil))

		old, err := s.RoundByNumber(ctx, 1, 1)
		require.NoError(t, err)
		require.Equal(t, uint64(1), old.Revision)
		require.Equal(t, r1.Miners[2].OutValue, old.Miners[2].OutValue)

		cur, err := s.RoundByNumber(ctx, 1, 2)
		require.NoError(t, err)
		require.Equal(t, next.RoundID, cur.RoundID)

		_, err = s.RoundByNumber(ctx, 1, 3)
		require.ErrorIs(t, err, dpos.ErrRoundNotFound)
	})

	t.Run("term only replaced when given", func(t *testing.T) {
		s, fx := open(t)
		ctx := context.Background()

		r := fx.first(t)
		require.NoError(t, s.SwapRound(ctx, nil, r, &dpos.Term{Number: 1, Miners: r.MinerKeys()}))

		next, err := fx.builder.BuildNextRound(r, r.ExpiryTime())
		require.NoError(t, err)
		require.NoError(t, s.SwapRound(ctx, r, next, nil))
		term, err := s.CurrentTerm(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(1), term.Number)

		nt, err := fx.builder.BuildFirstRoundOfNewTerm(next, fx.miners[:2], 4000, next.ExpiryTime())
		require.NoError(t, err)
		require.NoError(t, s.SwapRound(ctx, next, nt, &dpos.Term{Number: 2, Miners: nt.MinerKeys()}))
		term, err = s.CurrentTerm(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(2), term.Number)
		require.Len(t, term.Miners, 2)
	})

	t.Run("reads are copies", func(t *testing.T) {
		s, fx := open(t)
		ctx := context.Background()

		r := fx.first(t)
		require.NoError(t, s.SwapRound(ctx, nil, r, nil))

		got, err := s.CurrentRound(ctx)
		require.NoError(t, err)
		got.Miners[0].OutValue = dpos.Hash{0xFF}
		got.Miners[0].Pub[1] ^= 0xFF

		again, err := s.CurrentRound(ctx)
		require.NoError(t, err)
		require.False(t, again.Miners[0].Committed())
		require.Equal(t, r.Miners[0].Pub, again.Miners[0].Pub)
	})
}
