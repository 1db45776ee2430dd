package dpos_test

import (
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
	"gotest.tools/assert"
)

func newTriggers(t *testing.T, h *harness, key *ecdsa.PrivateKey, opts ...dpos.TriggersOption) *dpos.Triggers {
	t.Helper()
	tr, err := dpos.NewTriggers(h.codec, key, h.config, opts...)
	assert.NilError(t, err)
	return tr
}

// mineRound has every miner of the current round commit using its triggers
// and then rolls the round over.
func mineRound(t *testing.T, h *harness, triggers map[*ecdsa.PrivateKey]*dpos.Triggers) *dpos.Round {
	t.Helper()
	r := h.current()
	update := dpos.ConsensusCommand{Behaviour: dpos.UpdateValue}
	for order := uint64(1); order <= uint64(len(r.Miners)); order++ {
		key := h.miners.keyForOrder(r, order)
		now := r.StartTime() + (order-1)*r.MiningInterval
		in, err := triggers[key].Trigger(h.current(), update, now)
		assert.NilError(t, err)
		raw := h.generate(key, in)
		assert.NilError(t, h.engine.ApplyTransaction(h.ctx, raw, now))
	}
	r = h.current()
	raw := h.rolloverTx(h.miners.keyForOrder(r, r.ExtraBlockProducer()), dpos.NextRound, r)
	assert.NilError(t, h.engine.ApplyTransaction(h.ctx, raw, r.ExpiryTime()))
	return r
}

func TestRevealAcrossRounds(t *testing.T) {
	h := newHarness(t, 3)
	h.genesis()

	triggers := make(map[*ecdsa.PrivateKey]*dpos.Triggers)
	for _, k := range h.miners.keys {
		triggers[k] = newTriggers(t, h, k)
	}

	first := mineRound(t, h, triggers)
	second := mineRound(t, h, triggers)

	for i := range second.Miners {
		s := second.Miners[i]
		assert.Assert(t, !s.PreviousInValue.IsZero())
		assert.Equal(t, h.codec.Keccak256Hash(s.PreviousInValue[:]), s.PreviousOutValue)
		assert.Equal(t, s.PreviousOutValue, first.Slot(s.NodeID).OutValue)
		assert.Equal(t, s.Signature, h.codec.RoundSignature(second.Seed, s.PreviousInValue, s.OutValue))
		assert.Equal(t, s.ProducedBlocks, uint64(2))
	}
	assert.Equal(t, h.current().RoundNumber, uint64(3))
}

func TestRevealWithoutCachedInValue(t *testing.T) {
	h := newHarness(t, 3)
	h.genesis()

	triggers := make(map[*ecdsa.PrivateKey]*dpos.Triggers)
	for _, k := range h.miners.keys {
		triggers[k] = newTriggers(t, h, k)
	}
	mineRound(t, h, triggers)

	// a restarted node has lost its in-values, it can still commit
	r := h.current()
	key := h.miners.keyForOrder(r, 1)
	in, err := newTriggers(t, h, key).Trigger(r, dpos.ConsensusCommand{Behaviour: dpos.UpdateValue}, r.StartTime())
	assert.NilError(t, err)
	assert.Assert(t, in.PreviousInValue.IsZero())

	assert.NilError(t, h.engine.ApplyTransaction(h.ctx, h.generate(key, in), r.StartTime()))
	s := h.current().Miners[0]
	assert.Assert(t, s.Committed())
	assert.Assert(t, s.PreviousInValue.IsZero())
}

func TestRejectsBadReveal(t *testing.T) {
	h := newHarness(t, 3)
	h.genesis()

	triggers := make(map[*ecdsa.PrivateKey]*dpos.Triggers)
	for _, k := range h.miners.keys {
		triggers[k] = newTriggers(t, h, k)
	}
	mineRound(t, h, triggers)
	r := h.current()
	key := h.miners.keyForOrder(r, 1)
	slot := r.Miners[0]

	sign := func(u *dpos.UpdateValueInput) []byte {
		stx, err := h.codec.EncodeSignTransaction(key, dpos.UpdateValue, u, dpos.HintFor(dpos.UpdateValue, r))
		assert.NilError(t, err)
		return stx.Raw
	}
	in := randomHash(t)
	out := h.codec.Keccak256Hash(in[:])

	// reveal that does not open the commitment
	u := &dpos.UpdateValueInput{
		RoundID: r.RoundID, OutValue: out, PreviousInValue: randomHash(t),
		ProducedBlocks: slot.ProducedBlocks + 1, ActualMiningTime: r.StartTime(),
	}
	u.Signature = h.codec.RoundSignature(r.Seed, u.PreviousInValue, u.OutValue)
	err := h.engine.ApplyTransaction(h.ctx, sign(u), r.StartTime())
	assert.Assert(t, errors.Is(err, dpos.ErrInvalidReveal), err)

	// signature not derived from the round seed
	prev, _, ok := triggers[key].Cache().Get(slot.CommitTerm, slot.CommitRound)
	assert.Assert(t, ok)
	u.PreviousInValue = prev
	u.Signature = h.codec.RoundSignature(dpos.Hash{}, u.PreviousInValue, u.OutValue)
	err = h.engine.ApplyTransaction(h.ctx, sign(u), r.StartTime())
	assert.Assert(t, errors.Is(err, dpos.ErrInvalidSignature), err)

	// produced block count must advance by exactly one
	u.Signature = h.codec.RoundSignature(r.Seed, u.PreviousInValue, u.OutValue)
	u.ProducedBlocks = slot.ProducedBlocks + 2
	err = h.engine.ApplyTransaction(h.ctx, sign(u), r.StartTime())
	assert.Assert(t, errors.Is(err, dpos.ErrInvalidTransaction), err)

	u.ProducedBlocks = slot.ProducedBlocks + 1
	assert.NilError(t, h.engine.ApplyTransaction(h.ctx, sign(u), r.StartTime()))
	assert.Assert(t, !h.current().Miners[0].PreviousInValue.IsZero())
}

func TestRevealChecksVRFProof(t *testing.T) {
	h := newHarness(t, 3)
	h.genesis()

	triggers := make(map[*ecdsa.PrivateKey]*dpos.Triggers)
	for _, k := range h.miners.keys {
		triggers[k] = newTriggers(t, h, k, dpos.WithVRF())
	}
	mineRound(t, h, triggers)
	r := h.current()
	key := h.miners.keyForOrder(r, 1)
	slot := r.Miners[0]

	in, err := triggers[key].Trigger(r, dpos.ConsensusCommand{Behaviour: dpos.UpdateValue}, r.StartTime())
	assert.NilError(t, err)
	assert.Assert(t, !in.PreviousInValue.IsZero())
	assert.Assert(t, len(in.PreviousVRFProof) > 0)

	sign := func(u *dpos.UpdateValueInput) []byte {
		stx, err := h.codec.EncodeSignTransaction(key, dpos.UpdateValue, u, dpos.HintFor(dpos.UpdateValue, r))
		assert.NilError(t, err)
		return stx.Raw
	}
	u := &dpos.UpdateValueInput{
		RoundID: r.RoundID, OutValue: h.codec.Keccak256Hash(in.InValue[:]), PreviousInValue: in.PreviousInValue,
		ProducedBlocks: slot.ProducedBlocks + 1, ActualMiningTime: r.StartTime(),
	}
	u.Signature = h.codec.RoundSignature(r.Seed, u.PreviousInValue, u.OutValue)

	// a valid proof for a different round
	u.PreviousInValueProof = in.VRFProof
	err = h.engine.ApplyTransaction(h.ctx, sign(u), r.StartTime())
	assert.Assert(t, errors.Is(err, dpos.ErrInvalidReveal), err)

	// a corrupted proof
	forged := append([]byte(nil), in.PreviousVRFProof...)
	forged[len(forged)-1] ^= 0xff
	u.PreviousInValueProof = forged
	err = h.engine.ApplyTransaction(h.ctx, sign(u), r.StartTime())
	assert.Assert(t, errors.Is(err, dpos.ErrInvalidReveal), err)

	// a proof with nothing revealed
	bare := *u
	bare.PreviousInValue = dpos.Hash{}
	bare.PreviousInValueProof = in.PreviousVRFProof
	bare.Signature = h.codec.RoundSignature(r.Seed, bare.PreviousInValue, bare.OutValue)
	err = h.engine.ApplyTransaction(h.ctx, sign(&bare), r.StartTime())
	assert.Assert(t, errors.Is(err, dpos.ErrInvalidTransaction), err)

	assert.Assert(t, !h.current().Miners[0].Committed())
	assert.NilError(t, h.engine.ApplyTransaction(h.ctx, h.generate(key, in), r.StartTime()))
	assert.Equal(t, h.current().Miners[0].PreviousInValue, in.PreviousInValue)
}

func TestRevealInFirstRound(t *testing.T) {
	h := newHarness(t, 3)
	r := h.genesis()
	key := h.miners.keyForOrder(r, 1)

	u := &dpos.UpdateValueInput{
		RoundID: r.RoundID, OutValue: randomHash(t), PreviousInValue: randomHash(t), ProducedBlocks: 1,
	}
	u.Signature = h.codec.RoundSignature(r.Seed, u.PreviousInValue, u.OutValue)
	stx, err := h.codec.EncodeSignTransaction(key, dpos.UpdateValue, u, dpos.HintFor(dpos.UpdateValue, r))
	assert.NilError(t, err)

	err = h.engine.ApplyTransaction(h.ctx, stx.Raw, t0)
	assert.Assert(t, errors.Is(err, dpos.ErrInvalidReveal), err)
}

func TestVRFInValue(t *testing.T) {
	h := newHarness(t, 3)
	r := h.genesis()
	key := h.miners.keyForOrder(r, 2)
	pub := h.codec.PubMarshal(&key.PublicKey)
	chainID := []byte(h.config.ChainID)

	tr := newTriggers(t, h, key, dpos.WithVRF())
	in, err := tr.Trigger(r, dpos.ConsensusCommand{Behaviour: dpos.UpdateValue}, t0+interval)
	assert.NilError(t, err)
	assert.Assert(t, len(in.VRFProof) > 0)
	term, round := r.TermNumber, r.RoundNumber
	assert.NilError(t, dpos.VerifyVRFInValue(h.codec, chainID, term, round, pub, in.InValue, in.VRFProof))

	cached, proof, ok := tr.Cache().Get(term, round)
	assert.Assert(t, ok)
	assert.Equal(t, cached, in.InValue)
	assert.DeepEqual(t, proof, in.VRFProof)

	// proofs are bound to the miner
	other := h.miners.pubs[0]
	if string(other) == string(pub) {
		other = h.miners.pubs[1]
	}
	assert.Assert(t, dpos.VerifyVRFInValue(h.codec, chainID, term, round, other, in.InValue, in.VRFProof) != nil)

	// and to the value
	err = dpos.VerifyVRFInValue(h.codec, chainID, term, round, pub, randomHash(t), in.VRFProof)
	assert.Assert(t, errors.Is(err, dpos.ErrInvalidReveal), err)

	// the round
	assert.Assert(t, dpos.VerifyVRFInValue(h.codec, chainID, term, round+1, pub, in.InValue, in.VRFProof) != nil)

	// and the chain
	assert.Assert(t, dpos.VerifyVRFInValue(h.codec, []byte("other"), term, round, pub, in.InValue, in.VRFProof) != nil)

	assert.NilError(t, h.engine.ApplyTransaction(h.ctx, h.generate(key, in), t0+interval))
}

func TestTriggerRejectsNonMiners(t *testing.T) {
	h := newHarness(t, 3)
	r := h.genesis()
	outsider := newMiners(t, h.codec, 1).keys[0]

	_, err := newTriggers(t, h, outsider).Trigger(r, dpos.ConsensusCommand{Behaviour: dpos.UpdateValue}, t0)
	assert.Assert(t, errors.Is(err, dpos.ErrUnknownMiner), err)

	_, err = newTriggers(t, h, outsider).Trigger(r, dpos.ConsensusCommand{Behaviour: dpos.Nothing}, t0)
	assert.Assert(t, err != nil)
}

func TestTriggerRolloverStart(t *testing.T) {
	h := newHarness(t, 3)
	r := h.genesis()
	key := h.miners.keyForOrder(r, 1)

	in, err := newTriggers(t, h, key).Trigger(r, dpos.ConsensusCommand{Behaviour: dpos.NextRound}, r.ExpiryTime()+7)
	assert.NilError(t, err)
	assert.Equal(t, in.ReferenceTime, r.ExpiryTime()+7+interval)

	// early rollover still starts after the current round
	in, err = newTriggers(t, h, key).Trigger(r, dpos.ConsensusCommand{Behaviour: dpos.NextRound}, t0)
	assert.NilError(t, err)
	assert.Equal(t, in.ReferenceTime, r.ExpiryTime()+interval)
}

func TestInValueCacheEvicts(t *testing.T) {
	c, err := dpos.NewInValueCache(2)
	assert.NilError(t, err)

	h1, h2, h3 := dpos.Hash{1}, dpos.Hash{2}, dpos.Hash{3}
	c.Put(1, 1, h1, nil)
	c.Put(1, 2, h2, nil)
	c.Put(1, 3, h3, []byte{3})

	_, _, ok := c.Get(1, 1)
	assert.Assert(t, !ok)
	got, proof, ok := c.Get(1, 3)
	assert.Assert(t, ok)
	assert.Equal(t, got, h3)
	assert.DeepEqual(t, proof, []byte{3})

	_, err = dpos.NewInValueCache(0)
	assert.Assert(t, err != nil)
}
