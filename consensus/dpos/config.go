package dpos

// Config carries the DPoS consensus configuration. All durations are in
// milliseconds.
type Config struct {
	ChainID        string `toml:",omitempty"` // Mixed into the VRF alpha for in-value triggers
	MiningInterval uint64 `toml:",omitempty"` // Length of each miners time slot
	RoundsPerTerm  uint64 `toml:",omitempty"` // Rounds in a term before NextTerm is due, 0 disables
	TermPeriod     uint64 `toml:",omitempty"` // Elapsed time since the term started before NextTerm is due, 0 disables
	MaxClockSkew   uint64 `toml:",omitempty"` // Tolerance when checking a round has reached its expiry

	InValueCacheSize int `toml:",omitempty"` // Number of (term, round) in-values remembered for reveal
	RoundCacheSize   int `toml:",omitempty"` // Number of historic rounds held by cached stores
}

// DefaultConfig provides the default dpos consensus configuration
var DefaultConfig = &Config{
	ChainID:          "AELF",
	MiningInterval:   4000,
	RoundsPerTerm:    0,
	TermPeriod:       0,
	MaxClockSkew:     0,
	InValueCacheSize: 64,
	RoundCacheSize:   128,
}

// TermPredicate returns the term transition rule implied by the config.
// Without either rule configured terms never change on their own.
func (c *Config) TermPredicate() TermPredicate {
	var preds []TermPredicate
	if c.RoundsPerTerm != 0 {
		preds = append(preds, RoundsPerTerm(c.RoundsPerTerm))
	}
	if c.TermPeriod != 0 {
		preds = append(preds, TermPeriod(c.TermPeriod))
	}
	switch len(preds) {
	case 0:
		return NeverTerm
	case 1:
		return preds[0]
	}
	return AnyTerm(preds...)
}
