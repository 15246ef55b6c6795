package cachingmap

// Strategy selects how the front tier is kept coherent with the back
// tier.
type Strategy int

const (
	// StrategyNone installs no back listener; freshness relies on the
	// front's own expiry and stale reads are possible.
	StrategyNone Strategy = iota
	// StrategyPresent lazily installs a per-key back listener for each
	// key held by the front.
	StrategyPresent
	// StrategyAll installs a single filter listener over every key.
	StrategyAll
	// StrategyAuto starts at present and promotes itself to all once
	// per-key registration cost crosses the promotion threshold.
	StrategyAuto
	// StrategyLogical is all, minus synthetic events: the front
	// tolerates back eviction and expiry but still sees real changes.
	StrategyLogical
)

func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyPresent:
		return "present"
	case StrategyAll:
		return "all"
	case StrategyAuto:
		return "auto"
	case StrategyLogical:
		return "logical"
	default:
		return "unknown"
	}
}

// usesKeyListeners reports whether the strategy registers per-key
// listeners in its current form.
func (s Strategy) usesKeyListeners() bool {
	return s == StrategyPresent || s == StrategyAuto
}

// usesFilterListener reports whether the strategy registers a single
// map-wide filter listener.
func (s Strategy) usesFilterListener() bool {
	return s == StrategyAll || s == StrategyLogical
}
