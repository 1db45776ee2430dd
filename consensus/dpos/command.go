package dpos

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
)

// Elector supplies the miner set elected for a term. It is the boundary
// with the election contract.
type Elector interface {
	ElectedMiners(term uint64) ([][]byte, error)
}

// ConsensusInformation is what applying a behaviour would produce. For
// UpdateValue, Round is the current round with the local slot filled in and
// Update the transaction payload. Otherwise Round is the new round.
type ConsensusInformation struct {
	Behaviour Behaviour
	Hint      Hint
	Round     *Round
	Update    *UpdateValueInput
}

// Generator materialises behaviours. It has no side effects on persisted
// state.
type Generator struct {
	codec         *CipherCodec
	builder       *RoundBuilder
	interval      uint64
	initialMiners [][]byte
	elector       Elector
}

func NewGenerator(
	codec *CipherCodec, builder *RoundBuilder, interval uint64,
	initialMiners [][]byte, elector Elector) *Generator {
	return &Generator{
		codec:         codec,
		builder:       builder,
		interval:      interval,
		initialMiners: initialMiners,
		elector:       elector,
	}
}

// RoundSignature derives a miners signature for the round with the given
// seed. The revealed in-value is preferred, the new out value is used when
// there is nothing to reveal.
func (codec *CipherCodec) RoundSignature(seed, previousInValue, outValue Hash) Hash {
	if !previousInValue.IsZero() {
		return codec.Keccak256Hash(seed[:], previousInValue[:])
	}
	return codec.Keccak256Hash(seed[:], outValue[:])
}

// NewConsensusInformation materialises the behaviour in the trigger against
// round r, which is nil before genesis.
func (g *Generator) NewConsensusInformation(r *Round, in *TriggerInput) (*ConsensusInformation, error) {

	info := &ConsensusInformation{Behaviour: in.Behaviour, Hint: HintFor(in.Behaviour, r)}
	var err error

	switch in.Behaviour {
	case InitialConsensus:
		if r != nil {
			return nil, newErr(KindInvalidRound, "round %d already exists", r.RoundNumber)
		}
		info.Round, err = g.builder.BuildFirstRound(g.initialMiners, g.interval, in.ReferenceTime)

	case UpdateValue:
		if r == nil {
			return nil, ErrRoundNotFound
		}
		info.Round = r.Copy()
		info.Update, err = g.updateValue(info.Round, in)

	case NextRound:
		if r == nil {
			return nil, ErrRoundNotFound
		}
		info.Round, err = g.builder.BuildNextRound(r, in.ReferenceTime)

	case NextTerm:
		if r == nil {
			return nil, ErrRoundNotFound
		}
		var miners [][]byte
		if miners, err = g.nextTermMiners(r); err != nil {
			return nil, err
		}
		info.Round, err = g.builder.BuildFirstRoundOfNewTerm(r, miners, r.MiningInterval, in.ReferenceTime)

	default:
		return nil, fmt.Errorf("behaviour %v has no consensus information", in.Behaviour)
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}

// updateValue fills the local slot of r, which must be a copy
func (g *Generator) updateValue(r *Round, in *TriggerInput) (*UpdateValueInput, error) {
	slot := r.SlotByPub(in.Pub)
	if slot == nil {
		return nil, ErrUnknownMiner
	}
	if slot.Committed() {
		return nil, ErrDuplicateCommit
	}
	if in.InValue.IsZero() {
		return nil, fmt.Errorf("update value requires an in value")
	}

	u := &UpdateValueInput{
		RoundID:          r.RoundID,
		ActualMiningTime: in.ReferenceTime,
		OutValue:         g.codec.Keccak256Hash(in.InValue[:]),
		ProducedBlocks:   slot.ProducedBlocks + 1,
	}

	// Only reveal what actually opens the carried commitment
	if !slot.PreviousOutValue.IsZero() && !in.PreviousInValue.IsZero() &&
		g.codec.Keccak256Hash(in.PreviousInValue[:]) == slot.PreviousOutValue {
		u.PreviousInValue = in.PreviousInValue
		u.PreviousInValueProof = in.PreviousVRFProof
	}
	u.Signature = g.codec.RoundSignature(r.Seed, u.PreviousInValue, u.OutValue)

	slot.OutValue = u.OutValue
	slot.Signature = u.Signature
	slot.PreviousInValue = u.PreviousInValue
	slot.ActualMiningTime = u.ActualMiningTime
	slot.ProducedBlocks = u.ProducedBlocks
	r.Revision++
	return u, nil
}

func (g *Generator) nextTermMiners(r *Round) ([][]byte, error) {
	if g.elector == nil {
		return r.MinerKeys(), nil
	}
	miners, err := g.elector.ElectedMiners(r.TermNumber + 1)
	if err != nil {
		return nil, fmt.Errorf("elected miners for term %d: %w", r.TermNumber+1, err)
	}
	return miners, nil
}

// GenerateTransactions returns the signed transactions the node should
// broadcast for the behaviour in the trigger.
func (g *Generator) GenerateTransactions(
	r *Round, in *TriggerInput, key *ecdsa.PrivateKey) ([]*SignedTransaction, error) {

	if !bytes.Equal(in.Pub, g.codec.PubMarshal(&key.PublicKey)) {
		return nil, fmt.Errorf("trigger public key does not match the signing key")
	}

	info, err := g.NewConsensusInformation(r, in)
	if err != nil {
		return nil, err
	}

	var payload interface{} = info.Round
	if info.Behaviour == UpdateValue {
		payload = info.Update
	}
	tx, err := g.codec.EncodeSignTransaction(key, info.Behaviour, payload, info.Hint)
	if err != nil {
		return nil, err
	}
	return []*SignedTransaction{tx}, nil
}
