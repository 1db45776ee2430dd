package dpos

import (
	"bytes"
	"encoding/binary"
)

// MinerSlot is one miners position and commit-reveal record in a Round. Zero
// valued hashes are unset.
type MinerSlot struct {
	// Pub is the uncompressed secp256k1 public key of the miner, NodeID is
	// its Keccak256
	Pub    []byte
	NodeID Hash

	Order              uint64
	ExpectedMiningTime uint64
	ActualMiningTime   uint64

	// OutValue is the commitment H(in) published in this round and Signature
	// the miners contribution to the seed of the next round.
	OutValue  Hash
	Signature Hash

	// PreviousOutValue is the commitment made in round CommitRound of term
	// CommitTerm. PreviousInValue is its pre-image once revealed.
	PreviousOutValue Hash
	CommitTerm       uint64
	CommitRound      uint64
	PreviousInValue  Hash

	ProducedBlocks  uint64
	MissedTimeSlots uint64
}

// Committed is true once the miner has published its out value for the round
func (s *MinerSlot) Committed() bool {
	return !s.OutValue.IsZero()
}

// Round is the persisted snapshot of one mining round. Miners is kept sorted
// by Order, so Miners[i].Order == i+1 for a valid round.
type Round struct {
	RoundID        Hash
	RoundNumber    uint64
	TermNumber     uint64
	MiningInterval uint64

	// Seed is the randomness the round order was derived from. Signatures
	// committed in this round are derived from it.
	Seed          Hash
	TermStartTime uint64

	// Revision counts the successful updates applied to this round. Stores
	// swap on (RoundID, Revision).
	Revision uint64

	Miners []MinerSlot
}

// Term is the miner set elected for a term. It is replaced wholesale on a
// term transition.
type Term struct {
	Number    uint64
	StartTime uint64
	Miners    [][]byte
}

// StartTime is the expected mining time of the first slot
func (r *Round) StartTime() uint64 {
	if len(r.Miners) == 0 {
		return 0
	}
	return r.Miners[0].ExpectedMiningTime
}

// ExpiryTime is round_start + mining_interval * miner_count
func (r *Round) ExpiryTime() uint64 {
	return r.StartTime() + r.MiningInterval*uint64(len(r.Miners))
}

// Slot returns the slot for nodeID, or nil if the node is not a miner of
// this round
func (r *Round) Slot(nodeID Hash) *MinerSlot {
	for i := range r.Miners {
		if r.Miners[i].NodeID == nodeID {
			return &r.Miners[i]
		}
	}
	return nil
}

// SlotByPub is Slot for a raw public key
func (r *Round) SlotByPub(pub []byte) *MinerSlot {
	for i := range r.Miners {
		if bytes.Equal(r.Miners[i].Pub, pub) {
			return &r.Miners[i]
		}
	}
	return nil
}

// MinerKeys returns the public keys in round order
func (r *Round) MinerKeys() [][]byte {
	keys := make([][]byte, len(r.Miners))
	for i := range r.Miners {
		keys[i] = append([]byte(nil), r.Miners[i].Pub...)
	}
	return keys
}

// NumCommitted is the number of miners whose out value is set
func (r *Round) NumCommitted() int {
	n := 0
	for i := range r.Miners {
		if r.Miners[i].Committed() {
			n++
		}
	}
	return n
}

// ExtraBlockProducer returns the order of the miner responsible for
// producing the block that closes the round. It is derived from the
// signature of the committed miner with the lowest order, and defaults to
// order 1 when nobody has committed.
func (r *Round) ExtraBlockProducer() uint64 {
	n := uint64(len(r.Miners))
	if n == 0 {
		return 0
	}
	for i := range r.Miners {
		if !r.Miners[i].Committed() {
			continue
		}
		sig := r.Miners[i].Signature
		return binary.BigEndian.Uint64(sig[HashLen-8:])%n + 1
	}
	return 1
}

// Copy returns a deep copy of the round
func (r *Round) Copy() *Round {
	if r == nil {
		return nil
	}
	c := *r
	c.Miners = make([]MinerSlot, len(r.Miners))
	copy(c.Miners, r.Miners)
	for i := range c.Miners {
		c.Miners[i].Pub = append([]byte(nil), r.Miners[i].Pub...)
	}
	return &c
}

// Validate checks the structural invariants of the round: a non empty miner
// set with unique identities, each order a unique integer in [1, n] matching
// its position, and expected mining times fixed by order.
func (r *Round) Validate(c CipherSuite) error {
	n := len(r.Miners)
	if n == 0 {
		return newErr(KindInvalidMinerSet, "round %d has no miners", r.RoundNumber)
	}
	if r.MiningInterval == 0 {
		return newErr(KindInvalidRound, "round %d has a zero mining interval", r.RoundNumber)
	}

	start := r.StartTime()
	seen := make(map[Hash]bool, n)
	for i := range r.Miners {
		s := &r.Miners[i]
		if s.Order != uint64(i+1) {
			return newErr(KindInvalidMinerSet, "slot %d has order %d", i, s.Order)
		}
		id, err := NodeIDFromPubBytes(c, s.Pub)
		if err != nil {
			return newErr(KindInvalidMinerSet, "slot %d: %v", i, err)
		}
		if id != s.NodeID {
			return newErr(KindInvalidMinerSet, "slot %d node id does not match its public key", i)
		}
		if seen[id] {
			return newErr(KindInvalidMinerSet, "miner %s appears more than once", id.HexShort())
		}
		seen[id] = true
		if s.ExpectedMiningTime != start+uint64(i)*r.MiningInterval {
			return newErr(KindInvalidRound, "slot %d expected mining time %d is off schedule", i, s.ExpectedMiningTime)
		}
	}
	return nil
}
