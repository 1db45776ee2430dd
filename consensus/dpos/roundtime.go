package dpos

import (
	"time"
)

// RoundTime is the time schedule of a round, in unix milliseconds
type RoundTime struct {
	Start    uint64
	Expiry   uint64
	Interval uint64

	// ExtraBlockProducer is the order of the miner that closes the round
	ExtraBlockProducer uint64
}

func NewRoundTime(r *Round) RoundTime {
	return RoundTime{
		Start:              r.StartTime(),
		Expiry:             r.ExpiryTime(),
		Interval:           r.MiningInterval,
		ExtraBlockProducer: r.ExtraBlockProducer(),
	}
}

// SlotWindow returns the [start, end) of the slot for order
func (t RoundTime) SlotWindow(order uint64) (uint64, uint64) {
	start := t.Start + (order-1)*t.Interval
	return start, start + t.Interval
}

// RolloverTime is when the miner with the given order should produce the
// block that moves to the next round. The extra block producer is due at
// expiry, everyone else stands in, in order, if it does not.
func (t RoundTime) RolloverTime(order uint64) uint64 {
	if order == t.ExtraBlockProducer {
		return t.Expiry
	}
	return t.Expiry + order*t.Interval
}

// NextRoundStart is the start of the round built by a rollover at now. The
// block at now occupies one interval.
func (t RoundTime) NextRoundStart(now uint64) uint64 {
	if now < t.Expiry {
		now = t.Expiry
	}
	return now + t.Interval
}

// MiningTimer takes (some) of the sharp edges of go's time.Timer for the
// loop that waits on consensus commands.
type MiningTimer struct {
	// Ticker has to be public, but use Start and Stop. The only
	// legitemate direct use is <-t.Ticker.C in a select case. time.Timer's
	// are tricky. See:
	// https://blogtitle.github.io/go-advanced-concurrency-patterns-part-2-timers/
	Ticker *time.Timer
}

// Start arms the timer for the commands wait. Commands that are already due
// fire immediately.
func (t *MiningTimer) Start(cmd ConsensusCommand) {
	t.Ticker = time.NewTimer(waitFor(cmd))
}

// Stop stops and, if necessary, drains the ticker
func (t *MiningTimer) Stop() {
	if t.Ticker == nil {
		return
	}
	if !t.Ticker.Stop() {
		select {
		case <-t.Ticker.C:
		default:
		}
	}
}

// Reset re-arms for the next command. Call Stop exactly once before this.
func (t *MiningTimer) Reset(cmd ConsensusCommand) {
	t.Ticker.Reset(waitFor(cmd))
}

func waitFor(cmd ConsensusCommand) time.Duration {
	if cmd.NextBlockMiningLeft <= 0 {
		return 0
	}
	return time.Duration(cmd.NextBlockMiningLeft) * time.Millisecond
}

// UnixMilli converts t to the millisecond timestamps used by rounds
func UnixMilli(t time.Time) uint64 {
	return uint64(t.UnixNano() / int64(time.Millisecond))
}
