// Package roundstore contains implementations of dpos.RoundStore.
//
// Every backend archives each swapped in round under its (term, round) so
// earlier rounds stay available to RoundByNumber, and all of them pass the
// compliance suite in roundstoretest.
package roundstore
