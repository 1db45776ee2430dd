package dpos_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"strings"
	"testing"

	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
	"github.com/RobustRoundRobin/go-dpos/rlpcodec"
	"github.com/RobustRoundRobin/go-dpos/roundstore"
	"gotest.tools/assert"
)

type TestLogger struct {
	t *testing.T
}

func (l *TestLogger) LazyValue(fn func() string) interface{} {
	return fn()
}

func (l *TestLogger) log(msg string, ctx ...interface{}) {

	if len(ctx)%2 != 0 {
		panic("even number of context arguments required")
	}

	s := make([]string, 0, len(ctx)/2)

	for i := 0; i < len(ctx); i += 2 {
		s = append(s, fmt.Sprintf("%v=%v", ctx[i], ctx[i+1]))
	}

	l.t.Log(msg + " " + strings.Join(s, ", "))
}

func (l *TestLogger) Trace(msg string, ctx ...interface{}) { l.log(msg, ctx...) }
func (l *TestLogger) Debug(msg string, ctx ...interface{}) { l.log(msg, ctx...) }
func (l *TestLogger) Info(msg string, ctx ...interface{})  { l.log(msg, ctx...) }
func (l *TestLogger) Warn(msg string, ctx ...interface{})  { l.log(msg, ctx...) }
func (l *TestLogger) Crit(msg string, ctx ...interface{}) {
	l.log(msg, ctx...)
	panic("crit")
}

const (
	t0       = uint64(1600000000000)
	interval = uint64(4000)
)

// miners is a set of miner keys, indexed by public key
type miners struct {
	codec *dpos.CipherCodec
	keys  []*ecdsa.PrivateKey
	pubs  [][]byte
}

func newMiners(t *testing.T, codec *dpos.CipherCodec, n int) *miners {
	t.Helper()
	m := &miners{codec: codec}
	for i := 0; i < n; i++ {
		k, err := ecdsa.GenerateKey(codec.Suite().Curve(), rand.Reader)
		assert.NilError(t, err)
		m.keys = append(m.keys, k)
		m.pubs = append(m.pubs, codec.PubMarshal(&k.PublicKey))
	}
	return m
}

func (m *miners) key(pub []byte) *ecdsa.PrivateKey {
	for i := range m.pubs {
		if bytes.Equal(m.pubs[i], pub) {
			return m.keys[i]
		}
	}
	return nil
}

// keyForOrder is the key of the miner with the given order in r
func (m *miners) keyForOrder(r *dpos.Round, order uint64) *ecdsa.PrivateKey {
	return m.key(r.Miners[order-1].Pub)
}

func randomHash(t *testing.T) dpos.Hash {
	var h dpos.Hash
	_, err := rand.Read(h[:])
	assert.NilError(t, err)
	return h
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	codec  *dpos.CipherCodec
	config *dpos.Config
	store  dpos.RoundStore
	engine *dpos.Engine
	miners *miners
}

func newHarness(t *testing.T, n int, opts ...dpos.EngineOption) *harness {
	t.Helper()
	codec := rlpcodec.NewCodec()
	config := *dpos.DefaultConfig
	config.MiningInterval = interval

	h := &harness{
		t:      t,
		ctx:    context.Background(),
		codec:  codec,
		config: &config,
		store:  roundstore.NewMemory(),
		miners: newMiners(t, codec, n),
	}
	opts = append([]dpos.EngineOption{
		dpos.WithLogger(&TestLogger{t}),
		dpos.WithInitialMiners(h.miners.pubs),
	}, opts...)
	h.engine = dpos.NewEngine(h.config, codec, h.store, opts...)
	t.Cleanup(h.engine.Close)
	return h
}

func (h *harness) current() *dpos.Round {
	h.t.Helper()
	r, err := h.engine.CurrentRound(h.ctx)
	assert.NilError(h.t, err)
	return r
}

// generate builds the transaction for the trigger, signed by key
func (h *harness) generate(key *ecdsa.PrivateKey, in *dpos.TriggerInput) []byte {
	h.t.Helper()
	txs, err := h.engine.GenerateConsensusTransactions(h.ctx, in, key)
	assert.NilError(h.t, err)
	assert.Equal(h.t, len(txs), 1)
	assert.Equal(h.t, txs[0].Behaviour, in.Behaviour)
	return txs[0].Raw
}

func (h *harness) genesis() *dpos.Round {
	h.t.Helper()
	key := h.miners.keys[0]
	raw := h.generate(key, &dpos.TriggerInput{
		Pub: h.miners.pubs[0], Behaviour: dpos.InitialConsensus, ReferenceTime: t0})
	assert.NilError(h.t, h.engine.ApplyTransaction(h.ctx, raw, t0))
	return h.current()
}

func (h *harness) updateTx(key *ecdsa.PrivateKey, now uint64) []byte {
	h.t.Helper()
	return h.generate(key, &dpos.TriggerInput{
		Pub:           h.codec.PubMarshal(&key.PublicKey),
		Behaviour:     dpos.UpdateValue,
		InValue:       randomHash(h.t),
		ReferenceTime: now,
	})
}

func (h *harness) rolloverTx(key *ecdsa.PrivateKey, b dpos.Behaviour, r *dpos.Round) []byte {
	h.t.Helper()
	return h.generate(key, &dpos.TriggerInput{
		Pub:           h.codec.PubMarshal(&key.PublicKey),
		Behaviour:     b,
		ReferenceTime: dpos.NewRoundTime(r).NextRoundStart(r.ExpiryTime()),
	})
}

func (h *harness) encode(r *dpos.Round) []byte {
	h.t.Helper()
	b, err := h.codec.EncodeToBytes(r)
	assert.NilError(h.t, err)
	return b
}
