package dpos

import (
	"bytes"
	"sort"
)

// Validator applies consensus transactions to the persisted round. It is pure:
// the current round is never modified, a successful Apply returns its
// replacement and, on term changes, the new Term.
//
// InitialConsensus must carry initialMiners. Without an elector the miner set
// never changes, so every NextTerm must carry the miners of the term it ends.
type Validator struct {
	codec         *CipherCodec
	builder       *RoundBuilder
	pred          TermPredicate
	elector       Elector
	initialMiners [][]byte
	chainID       []byte
	maxSkew       uint64
}

func NewValidator(
	codec *CipherCodec, builder *RoundBuilder, pred TermPredicate,
	elector Elector, initialMiners [][]byte, config *Config) *Validator {
	if pred == nil {
		pred = NeverTerm
	}
	return &Validator{
		codec:         codec,
		builder:       builder,
		pred:          pred,
		elector:       elector,
		initialMiners: initialMiners,
		chainID:       []byte(config.ChainID),
		maxSkew:       config.MaxClockSkew,
	}
}

// Apply validates tx against current, which is nil if no round has been
// persisted, at the time of the block containing it.
func (v *Validator) Apply(current *Round, tx *DecodedTx, blockTime uint64) (*Round, *Term, error) {
	switch tx.Behaviour {
	case InitialConsensus:
		return v.initialConsensus(current, tx)
	case UpdateValue:
		next, err := v.updateValue(current, tx, blockTime)
		return next, nil, err
	case NextRound:
		next, err := v.nextRound(current, tx, blockTime)
		return next, nil, err
	case NextTerm:
		return v.nextTerm(current, tx, blockTime)
	}
	return nil, nil, newErr(KindInvalidTransaction, "behaviour %d", tx.Behaviour)
}

func (v *Validator) initialConsensus(current *Round, tx *DecodedTx) (*Round, *Term, error) {
	if current != nil {
		return nil, nil, newErr(KindInvalidRound, "consensus already initialised at term %d round %d",
			current.TermNumber, current.RoundNumber)
	}
	proposed := tx.Round
	if err := proposed.Validate(v.codec.Suite()); err != nil {
		return nil, nil, err
	}
	if proposed.Slot(tx.SenderID) == nil {
		return nil, nil, ErrUnknownMiner
	}
	if len(v.initialMiners) == 0 {
		return nil, nil, newErr(KindInvalidMinerSet, "no initial miner set configured")
	}
	if !sameKeys(v.initialMiners, proposed.MinerKeys()) {
		return nil, nil, newErr(KindInvalidMinerSet, "proposed miners are not the initial miner set")
	}
	expected, err := v.builder.BuildFirstRound(
		proposed.MinerKeys(), proposed.MiningInterval, proposed.StartTime())
	if err != nil {
		return nil, nil, err
	}
	if err := v.match(expected, proposed); err != nil {
		return nil, nil, err
	}
	return expected, termOf(expected), nil
}

func (v *Validator) updateValue(current *Round, tx *DecodedTx, blockTime uint64) (*Round, error) {
	u := tx.Update
	if current == nil {
		return nil, ErrRoundNotFound
	}
	if u.RoundID != current.RoundID {
		return nil, newErr(KindRoundIDMismatch, "transaction for round %s, current round is %s (term %d round %d)",
			u.RoundID.HexShort(), current.RoundID.HexShort(), current.TermNumber, current.RoundNumber)
	}
	if expiry := current.ExpiryTime(); blockTime >= expiry+v.maxSkew {
		return nil, newErr(KindRoundExpired, "round %d expired at %d, block time %d",
			current.RoundNumber, expiry, blockTime)
	}
	slot := current.Slot(tx.SenderID)
	if slot == nil {
		return nil, newErr(KindUnknownMiner, "%s is not a miner of round %d", tx.SenderID.HexShort(), current.RoundNumber)
	}
	if slot.Committed() {
		return nil, newErr(KindDuplicateCommit, "%s already committed in round %d", tx.SenderID.HexShort(), current.RoundNumber)
	}
	if u.OutValue.IsZero() {
		return nil, newErr(KindInvalidTransaction, "missing out value")
	}
	if u.ProducedBlocks != slot.ProducedBlocks+1 {
		return nil, newErr(KindInvalidTransaction, "produced blocks %d, expected %d", u.ProducedBlocks, slot.ProducedBlocks+1)
	}

	if !u.PreviousInValue.IsZero() {
		if slot.PreviousOutValue.IsZero() {
			return nil, newErr(KindInvalidReveal, "nothing committed to reveal")
		}
		if v.codec.Keccak256Hash(u.PreviousInValue[:]) != slot.PreviousOutValue {
			return nil, newErr(KindInvalidReveal, "reveal for commitment from term %d round %d does not match",
				slot.CommitTerm, slot.CommitRound)
		}
		if len(u.PreviousInValueProof) > 0 {
			if err := VerifyVRFInValue(v.codec, v.chainID, slot.CommitTerm, slot.CommitRound,
				tx.Sender, u.PreviousInValue, u.PreviousInValueProof); err != nil {
				return nil, newErr(KindInvalidReveal, "vrf proof for term %d round %d: %v",
					slot.CommitTerm, slot.CommitRound, err)
			}
		}
	} else if len(u.PreviousInValueProof) > 0 {
		return nil, newErr(KindInvalidTransaction, "vrf proof without a reveal")
	}
	if u.Signature != v.codec.RoundSignature(current.Seed, u.PreviousInValue, u.OutValue) {
		return nil, ErrInvalidSignature
	}

	next := current.Copy()
	s := next.Slot(tx.SenderID)
	s.OutValue = u.OutValue
	s.Signature = u.Signature
	s.PreviousInValue = u.PreviousInValue
	s.ActualMiningTime = u.ActualMiningTime
	s.ProducedBlocks = u.ProducedBlocks
	next.Revision++
	return next, nil
}

func (v *Validator) nextRound(current *Round, tx *DecodedTx, blockTime uint64) (*Round, error) {
	proposed := tx.Round
	if err := v.checkRollover(current, tx, blockTime); err != nil {
		return nil, err
	}
	if v.pred.TermDue(current, blockTime) {
		return nil, newErr(KindTermDue, "term %d ends with round %d", current.TermNumber, current.RoundNumber)
	}
	if proposed.TermNumber != current.TermNumber || proposed.RoundNumber != current.RoundNumber+1 {
		return nil, newErr(KindInvalidRound, "next round must be term %d round %d, got term %d round %d",
			current.TermNumber, current.RoundNumber+1, proposed.TermNumber, proposed.RoundNumber)
	}
	if err := v.checkStart(current, proposed); err != nil {
		return nil, err
	}
	expected, err := v.builder.BuildNextRound(current, proposed.StartTime())
	if err != nil {
		return nil, err
	}
	if err := v.match(expected, proposed); err != nil {
		return nil, err
	}
	return expected, nil
}

func (v *Validator) nextTerm(current *Round, tx *DecodedTx, blockTime uint64) (*Round, *Term, error) {
	proposed := tx.Round
	if err := v.checkRollover(current, tx, blockTime); err != nil {
		return nil, nil, err
	}
	if proposed.TermNumber != current.TermNumber+1 || proposed.RoundNumber != 1 {
		return nil, nil, newErr(KindInvalidRound, "next term must be term %d round 1, got term %d round %d",
			current.TermNumber+1, proposed.TermNumber, proposed.RoundNumber)
	}
	if !v.pred.TermDue(current, blockTime) {
		return nil, nil, newErr(KindTermNotDue, "term %d is not due to end at round %d",
			current.TermNumber, current.RoundNumber)
	}
	if err := v.checkStart(current, proposed); err != nil {
		return nil, nil, err
	}

	miners := proposed.MinerKeys()
	if v.elector != nil {
		elected, err := v.elector.ElectedMiners(proposed.TermNumber)
		if err != nil {
			return nil, nil, err
		}
		if !sameKeys(elected, miners) {
			return nil, nil, newErr(KindInvalidMinerSet, "miners of term %d are not the elected set", proposed.TermNumber)
		}
	} else if !sameKeys(current.MinerKeys(), miners) {
		return nil, nil, newErr(KindInvalidMinerSet, "miners of term %d differ from term %d without an election",
			proposed.TermNumber, current.TermNumber)
	}

	expected, err := v.builder.BuildFirstRoundOfNewTerm(
		current, miners, current.MiningInterval, proposed.StartTime())
	if err != nil {
		return nil, nil, err
	}
	if err := v.match(expected, proposed); err != nil {
		return nil, nil, err
	}
	return expected, termOf(expected), nil
}

// checkRollover covers what NextRound and NextTerm have in common: the
// proposal must not be stale, the sender must be a miner of the current
// round and the current round must have expired.
func (v *Validator) checkRollover(current *Round, tx *DecodedTx, blockTime uint64) error {
	if current == nil {
		return ErrRoundNotFound
	}
	proposed := tx.Round
	if proposed.TermNumber < current.TermNumber ||
		(proposed.TermNumber == current.TermNumber && proposed.RoundNumber <= current.RoundNumber) {
		return newErr(KindRoundIDMismatch, "proposal for term %d round %d was built against a replaced round, current is term %d round %d",
			proposed.TermNumber, proposed.RoundNumber, current.TermNumber, current.RoundNumber)
	}
	if current.Slot(tx.SenderID) == nil {
		return newErr(KindUnknownMiner, "%s is not a miner of round %d", tx.SenderID.HexShort(), current.RoundNumber)
	}
	if expiry := current.ExpiryTime(); blockTime+v.maxSkew < expiry {
		return newErr(KindRoundExpiryNotReached, "round %d expires at %d, block time %d",
			current.RoundNumber, expiry, blockTime)
	}
	return nil
}

func (v *Validator) checkStart(current, proposed *Round) error {
	if len(proposed.Miners) == 0 {
		return newErr(KindInvalidMinerSet, "proposed round has no miners")
	}
	if proposed.StartTime() < current.ExpiryTime() {
		return newErr(KindInvalidRound, "proposed round starts at %d before the current round expires at %d",
			proposed.StartTime(), current.ExpiryTime())
	}
	return nil
}

// match requires the proposal to be byte identical to the derived round
func (v *Validator) match(expected, proposed *Round) error {
	a, err := v.codec.EncodeToBytes(expected)
	if err != nil {
		return err
	}
	b, err := v.codec.EncodeToBytes(proposed)
	if err != nil {
		return newErr(KindInvalidTransaction, "encoding proposed round: %v", err)
	}
	if !bytes.Equal(a, b) {
		return newErr(KindInvalidRound, "proposed term %d round %d (%s) differs from derived round (%s)",
			proposed.TermNumber, proposed.RoundNumber, proposed.RoundID.HexShort(), expected.RoundID.HexShort())
	}
	return nil
}

func termOf(r *Round) *Term {
	return &Term{Number: r.TermNumber, StartTime: r.TermStartTime, Miners: r.MinerKeys()}
}

func sameKeys(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	sorted := func(keys [][]byte) [][]byte {
		s := append([][]byte(nil), keys...)
		sort.Slice(s, func(i, j int) bool { return bytes.Compare(s[i], s[j]) < 0 })
		return s
	}
	sa, sb := sorted(a), sorted(b)
	for i := range sa {
		if !bytes.Equal(sa[i], sb[i]) {
			return false
		}
	}
	return true
}
