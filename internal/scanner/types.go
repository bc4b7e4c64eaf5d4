package scanner

import "time"

// Status is the Scanner's exposed runtime snapshot.
type Status struct {
	BotVersion    string
	Running       bool
	Pairs         []string
	Modes         []string
	ActiveSignals int
	Cooldowns     map[string]time.Time
}

// lastSignal is the in-memory dedupe cache entry for one (symbol, mode) key.
type lastSignal struct {
	direction  string
	setupType  string
	entryPrice float64
}
