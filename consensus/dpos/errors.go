package dpos

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed consensus transaction. A failure of any kind
// leaves the persisted round untouched.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindRoundNotFound
	KindRoundIDMismatch
	KindUnknownMiner
	KindDuplicateCommit
	KindRoundExpiryNotReached
	KindInvalidMinerSet
	KindInvalidRound
	KindInvalidReveal
	KindInvalidSignature
	KindInvalidTransaction
	KindTermNotDue
	KindTermDue
	KindRoundExpired
)

var (
	ErrRoundNotFound         = &ConsensusError{Kind: KindRoundNotFound, Msg: "round information not found"}
	ErrRoundIDMismatch       = &ConsensusError{Kind: KindRoundIDMismatch, Msg: "round id not matched"}
	ErrUnknownMiner          = &ConsensusError{Kind: KindUnknownMiner, Msg: "sender is not a miner of the round"}
	ErrDuplicateCommit       = &ConsensusError{Kind: KindDuplicateCommit, Msg: "out value already committed for this round"}
	ErrRoundExpiryNotReached = &ConsensusError{Kind: KindRoundExpiryNotReached, Msg: "round has not reached its expiry"}
	ErrInvalidMinerSet       = &ConsensusError{Kind: KindInvalidMinerSet, Msg: "invalid miner set"}
	ErrInvalidRound          = &ConsensusError{Kind: KindInvalidRound, Msg: "proposed round does not match the derived round"}
	ErrInvalidReveal         = &ConsensusError{Kind: KindInvalidReveal, Msg: "revealed in value does not match the previous commitment"}
	ErrInvalidSignature      = &ConsensusError{Kind: KindInvalidSignature, Msg: "round signature not derived from the round seed"}
	ErrInvalidTransaction    = &ConsensusError{Kind: KindInvalidTransaction, Msg: "malformed consensus transaction"}
	ErrTermNotDue            = &ConsensusError{Kind: KindTermNotDue, Msg: "term transition is not due"}
	ErrTermDue               = &ConsensusError{Kind: KindTermDue, Msg: "term is due, the round must roll over to the next term"}
	ErrRoundExpired          = &ConsensusError{Kind: KindRoundExpired, Msg: "round has expired"}

	// ErrRoundConflict is returned by stores when a compare-and-swap finds
	// the round has moved on.
	ErrRoundConflict = errors.New("persisted round changed underneath the swap")
)

// ConsensusError is the typed failure of a consensus transaction.
// errors.Is matches any two ConsensusErrors of the same kind, so callers can
// compare against the Err* values regardless of the detail in Msg.
type ConsensusError struct {
	Kind ErrorKind
	Msg  string
}

func (e *ConsensusError) Error() string {
	return e.Kind.String() + ": " + e.Msg
}

func (e *ConsensusError) Is(target error) bool {
	var t *ConsensusError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// newErr makes a ConsensusError of the given kind with extra detail
func newErr(kind ErrorKind, format string, a ...interface{}) *ConsensusError {
	return &ConsensusError{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

// KindOf returns the ErrorKind of err, or KindUnknown if err is not a
// ConsensusError
func KindOf(err error) ErrorKind {
	var ce *ConsensusError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

func (k ErrorKind) String() string {
	switch k {
	case KindRoundNotFound:
		return "RoundNotFound"
	case KindRoundIDMismatch:
		return "RoundIdMismatch"
	case KindUnknownMiner:
		return "UnknownMiner"
	case KindDuplicateCommit:
		return "DuplicateCommit"
	case KindRoundExpiryNotReached:
		return "RoundExpiryNotReached"
	case KindInvalidMinerSet:
		return "InvalidMinerSet"
	case KindInvalidRound:
		return "InvalidRound"
	case KindInvalidReveal:
		return "InvalidReveal"
	case KindInvalidSignature:
		return "InvalidSignature"
	case KindInvalidTransaction:
		return "InvalidTransaction"
	case KindTermNotDue:
		return "TermNotDue"
	case KindTermDue:
		return "TermDue"
	case KindRoundExpired:
		return "RoundExpired"
	default:
		return "Unknown"
	}
}
