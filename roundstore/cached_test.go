package roundstore_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"testing"

	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
	"github.com/RobustRoundRobin/go-dpos/rlpcodec"
	"github.com/RobustRoundRobin/go-dpos/roundstore"
	"github.com/RobustRoundRobin/go-dpos/roundstore/roundstoretest"
	"github.com/stretchr/testify/require"
)

func TestCachedCompliance(t *testing.T) {
	roundstoretest.TestRoundStoreCompliance(t, func(t *testing.T, codec dpos.BytesCodec) dpos.RoundStore {
		c, err := roundstore.NewCached(context.Background(), roundstore.NewMemory(), 8)
		require.NoError(t, err)
		return c
	})
}

func TestCachedOnlyHoldsSupersededRounds(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	codec := rlpcodec.NewCodec()
	var miners [][]byte
	for i := 0; i < 2; i++ {
		k, err := ecdsa.GenerateKey(codec.Suite().Curve(), rand.Reader)
		require.NoError(err)
		miners = append(miners, codec.PubMarshal(&k.PublicKey))
	}
	b := dpos.NewRoundBuilder(codec)

	c, err := roundstore.NewCached(ctx, roundstore.NewMemory(), 8)
	require.NoError(err)

	r, err := b.BuildFirstRound(miners, 4000, 0)
	require.NoError(err)
	require.NoError(c.SwapRound(ctx, nil, r, nil))

	_, err = c.RoundByNumber(ctx, 1, 1)
	require.NoError(err)
	require.Equal(0, c.Len())

	next, err := b.BuildNextRound(r, r.ExpiryTime())
	require.NoError(err)
	require.NoError(c.SwapRound(ctx, r, next, nil))

	old, err := c.RoundByNumber(ctx, 1, 1)
	require.NoError(err)
	require.Equal(r.RoundID, old.RoundID)
	require.Equal(1, c.Len())

	// served from the cache, and still a copy
	old.Miners[0].Order = 99
	again, err := c.RoundByNumber(ctx, 1, 1)
	require.NoError(err)
	require.Equal(uint64(1), again.Miners[0].Order)
}
