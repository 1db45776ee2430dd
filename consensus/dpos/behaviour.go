package dpos

// Behaviour is the consensus action a node takes for a decision
type Behaviour uint8

const (
	// Nothing is selected for nodes that are not miners of the round
	Nothing Behaviour = iota
	InitialConsensus
	UpdateValue
	NextRound
	NextTerm
)

func (b Behaviour) String() string {
	switch b {
	case Nothing:
		return "Nothing"
	case InitialConsensus:
		return "InitialConsensus"
	case UpdateValue:
		return "UpdateValue"
	case NextRound:
		return "NextRound"
	case NextTerm:
		return "NextTerm"
	default:
		return "<unknown>"
	}
}

// Valid is true for the behaviours that produce a block
func (b Behaviour) Valid() bool {
	return b >= InitialConsensus && b <= NextTerm
}

// ConsensusCommand tells the block production scheduler what to do next.
// NextBlockMiningLeft is the wait, in milliseconds, before producing and is
// zero or negative if the node is already due. LimitOfMiningBlock caps the
// time spent producing the block and never exceeds the mining interval.
type ConsensusCommand struct {
	Behaviour           Behaviour
	Hint                Hint
	NextBlockMiningLeft int64
	LimitOfMiningBlock  uint64
	ExpectedMiningTime  uint64
}

// SelectCommand picks the behaviour for nodeID at now. r is the latest
// persisted round, or nil before genesis. ok is false when the node is not a
// miner of the round. That is a legitimate outcome not an error.
func SelectCommand(r *Round, nodeID Hash, now uint64, pred TermPredicate) (ConsensusCommand, bool) {

	if r == nil {
		return ConsensusCommand{
			Behaviour:          InitialConsensus,
			Hint:               Hint{Behaviour: InitialConsensus},
			ExpectedMiningTime: now,
		}, true
	}

	slot := r.Slot(nodeID)
	if slot == nil {
		return ConsensusCommand{Behaviour: Nothing}, false
	}

	t := NewRoundTime(r)
	if pred == nil {
		pred = NeverTerm
	}

	rollover := func(at uint64) ConsensusCommand {
		b := NextRound
		if pred.TermDue(r, at) {
			b = NextTerm
		}
		due := t.RolloverTime(slot.Order)
		return ConsensusCommand{
			Behaviour:           b,
			Hint:                HintFor(b, r),
			NextBlockMiningLeft: left(due, now),
			LimitOfMiningBlock:  t.Interval,
			ExpectedMiningTime:  due,
		}
	}

	if now >= t.Expiry {
		return rollover(now), true
	}

	// Already committed, the next thing this node can do is close the round.
	if slot.Committed() {
		return rollover(t.Expiry), true
	}

	start, end := t.SlotWindow(slot.Order)
	cmd := ConsensusCommand{
		Behaviour:           UpdateValue,
		Hint:                HintFor(UpdateValue, r),
		NextBlockMiningLeft: left(start, now),
		LimitOfMiningBlock:  t.Interval,
		ExpectedMiningTime:  start,
	}
	if now >= start && now < end {
		cmd.LimitOfMiningBlock = end - now
	}
	return cmd, true
}

func left(due, now uint64) int64 {
	return int64(due) - int64(now)
}
