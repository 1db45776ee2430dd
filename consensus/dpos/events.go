package dpos

// TermChangedEvent is sent when a NextTerm transaction is applied, and for
// the genesis term. Reward distribution consumes it.
type TermChangedEvent struct {
	TermNumber uint64
	StartTime  uint64
	Miners     [][]byte
	RoundID    Hash
}
