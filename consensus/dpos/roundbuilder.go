package dpos

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"
)

// RoundBuilder derives new rounds. Every method is a pure function of its
// arguments: two nodes holding the same previous round build byte identical
// results.
type RoundBuilder struct {
	codec *CipherCodec
}

func NewRoundBuilder(codec *CipherCodec) *RoundBuilder {
	return &RoundBuilder{codec: codec}
}

// BuildFirstRound builds round 1 of term 1 from the genesis miner set.
// Miners are ordered by their public keys and slot k is due at
// ref + (k-1) * interval.
func (b *RoundBuilder) BuildFirstRound(miners [][]byte, interval, ref uint64) (*Round, error) {
	slots, err := b.sortedSlots(miners)
	if err != nil {
		return nil, err
	}
	r := &Round{
		RoundNumber:    1,
		TermNumber:     1,
		MiningInterval: interval,
		TermStartTime:  ref,
		Miners:         slots,
	}
	return b.finish(r, ref)
}

// BuildNextRound builds the round following prev in the same term. Miners
// that committed in prev are shuffled by the combined signatures of prev,
// miners that missed their slot follow in their previous order.
func (b *RoundBuilder) BuildNextRound(prev *Round, ref uint64) (*Round, error) {
	if prev == nil || len(prev.Miners) == 0 {
		return nil, newErr(KindInvalidMinerSet, "previous round has no miners")
	}

	seed := CombineSignatures(prev)
	s, err := ConditionSeed(seed[:])
	if err != nil {
		return nil, err
	}

	var committed, missed []*MinerSlot
	for i := range prev.Miners {
		if prev.Miners[i].Committed() {
			committed = append(committed, &prev.Miners[i])
		} else {
			missed = append(missed, &prev.Miners[i])
		}
	}

	// Perm is only deterministic if its input is, so fix the order first
	sort.Slice(committed, func(i, j int) bool {
		return bytes.Compare(committed[i].NodeID[:], committed[j].NodeID[:]) < 0
	})

	next := &Round{
		RoundNumber:    prev.RoundNumber + 1,
		TermNumber:     prev.TermNumber,
		MiningInterval: prev.MiningInterval,
		Seed:           seed,
		TermStartTime:  prev.TermStartTime,
		Miners:         make([]MinerSlot, 0, len(prev.Miners)),
	}

	for _, j := range randFromSeed(s).Perm(len(committed)) {
		p := committed[j]
		next.Miners = append(next.Miners, MinerSlot{
			Pub:              append([]byte(nil), p.Pub...),
			NodeID:           p.NodeID,
			PreviousOutValue: p.OutValue,
			CommitTerm:       prev.TermNumber,
			CommitRound:      prev.RoundNumber,
			ProducedBlocks:   p.ProducedBlocks,
			MissedTimeSlots:  p.MissedTimeSlots,
		})
	}
	// missed is already in previous order
	for _, p := range missed {
		next.Miners = append(next.Miners, MinerSlot{
			Pub:             append([]byte(nil), p.Pub...),
			NodeID:          p.NodeID,
			ProducedBlocks:  p.ProducedBlocks,
			MissedTimeSlots: p.MissedTimeSlots + 1,
		})
	}
	return b.finish(next, ref)
}

// BuildFirstRoundOfNewTerm builds round 1 of the term following prev for the
// newly elected miner set. Counters are reset. Commitments made in prev by
// miners that continue into the new term are carried so they can still be
// revealed.
func (b *RoundBuilder) BuildFirstRoundOfNewTerm(
	prev *Round, miners [][]byte, interval, ref uint64) (*Round, error) {

	slots, err := b.sortedSlots(miners)
	if err != nil {
		return nil, err
	}

	r := &Round{
		RoundNumber:    1,
		TermNumber:     1,
		MiningInterval: interval,
		TermStartTime:  ref,
		Miners:         slots,
	}
	if prev != nil {
		r.TermNumber = prev.TermNumber + 1
		r.Seed = CombineSignatures(prev)
		for i := range r.Miners {
			p := prev.Slot(r.Miners[i].NodeID)
			if p == nil || !p.Committed() {
				continue
			}
			r.Miners[i].PreviousOutValue = p.OutValue
			r.Miners[i].CommitTerm = prev.TermNumber
			r.Miners[i].CommitRound = prev.RoundNumber
		}
	}
	return b.finish(r, ref)
}

func (b *RoundBuilder) sortedSlots(miners [][]byte) ([]MinerSlot, error) {
	if len(miners) == 0 {
		return nil, newErr(KindInvalidMinerSet, "empty miner set")
	}
	slots := make([]MinerSlot, len(miners))
	for i, pub := range miners {
		id, err := b.codec.NodeIDFromPubBytes(pub)
		if err != nil {
			return nil, newErr(KindInvalidMinerSet, "miner %d: %v", i, err)
		}
		slots[i] = MinerSlot{Pub: append([]byte(nil), pub...), NodeID: id}
	}
	sort.SliceStable(slots, func(i, j int) bool {
		return bytes.Compare(slots[i].Pub, slots[j].Pub) < 0
	})
	for i := 1; i < len(slots); i++ {
		if slots[i].NodeID == slots[i-1].NodeID {
			return nil, newErr(KindInvalidMinerSet, "duplicate miner %s", slots[i].NodeID.HexShort())
		}
	}
	return slots, nil
}

// finish assigns orders and times in slice order and fills in the round id
func (b *RoundBuilder) finish(r *Round, ref uint64) (*Round, error) {
	if r.MiningInterval == 0 {
		return nil, newErr(KindInvalidRound, "mining interval must be positive")
	}
	for i := range r.Miners {
		r.Miners[i].Order = uint64(i + 1)
		r.Miners[i].ExpectedMiningTime = ref + uint64(i)*r.MiningInterval
	}
	id, err := b.codec.RoundID(r)
	if err != nil {
		return nil, fmt.Errorf("round id: %w", err)
	}
	r.RoundID = id
	return r, nil
}

// CombineSignatures XORs the signatures committed in r. If nobody committed
// the seed of r is XORed with its round id, so the order still changes.
func CombineSignatures(r *Round) Hash {
	var seed Hash
	n := 0
	for i := range r.Miners {
		if !r.Miners[i].Committed() {
			continue
		}
		n++
		for j := range seed {
			seed[j] ^= r.Miners[i].Signature[j]
		}
	}
	if n != 0 {
		return seed
	}
	for j := range seed {
		seed[j] = r.Seed[j] ^ r.RoundID[j]
	}
	return seed
}

func randFromSeed(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(int64(seed)))
}

// ConditionSeed XOR combines a 32 byte seed into a single uint64 making it
// compatible with rand.NewSource
func ConditionSeed(seed []byte) (uint64, error) {
	if len(seed) != 32 {
		return 0, fmt.Errorf(
			"seed wrong length should be 32 not %d", len(seed))
	}

	s := binary.LittleEndian.Uint64(seed[:8])
	for i := 1; i < 4; i++ {
		s ^= binary.LittleEndian.Uint64(seed[i*8 : i*8+8])
	}
	return s, nil
}
