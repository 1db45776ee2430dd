package dpos

import "sync"

// TermPredicate decides whether a round that has reached its expiry should
// be followed by a new term rather than the next round.
type TermPredicate interface {
	TermDue(r *Round, now uint64) bool
}

// TermPredicateFunc adapts a function to a TermPredicate
type TermPredicateFunc func(r *Round, now uint64) bool

func (f TermPredicateFunc) TermDue(r *Round, now uint64) bool {
	return f(r, now)
}

// NeverTerm keeps the genesis miner set forever
var NeverTerm TermPredicate = TermPredicateFunc(func(*Round, uint64) bool { return false })

// RoundsPerTerm makes a term last n rounds
func RoundsPerTerm(n uint64) TermPredicate {
	return TermPredicateFunc(func(r *Round, now uint64) bool {
		return n != 0 && r.RoundNumber >= n
	})
}

// TermPeriod makes a term last at least period milliseconds from its start
func TermPeriod(period uint64) TermPredicate {
	return TermPredicateFunc(func(r *Round, now uint64) bool {
		return period != 0 && now >= r.TermStartTime && now-r.TermStartTime >= period
	})
}

// AnyTerm is due when any of preds is
func AnyTerm(preds ...TermPredicate) TermPredicate {
	return TermPredicateFunc(func(r *Round, now uint64) bool {
		for _, p := range preds {
			if p.TermDue(r, now) {
				return true
			}
		}
		return false
	})
}

// ElectionSignal is raised by the election collaborator when the result of
// an election is ready to take effect. It is lowered again once the term
// it was raised for has ended.
type ElectionSignal struct {
	mu   sync.RWMutex
	term uint64
	set  bool
}

// Raise marks the election for the term following term as complete
func (s *ElectionSignal) Raise(term uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.term, s.set = term, true
}

// Lower clears the signal
func (s *ElectionSignal) Lower() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = false
}

func (s *ElectionSignal) TermDue(r *Round, now uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set && s.term == r.TermNumber
}
