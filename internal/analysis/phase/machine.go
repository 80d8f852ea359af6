// Package phase implements the sales-conversation phase state machine.
// Transitions are pure functions of the current phase, the number of turns
// spent in it, and the signal flags extracted from the dialogue; the package
// performs no I/O and holds no state of its own.
package phase

// Phase is a named stage of the sales-conversation lifecycle.
type Phase string

const (
	Greeting          Phase = "greeting"
	Discovery         Phase = "discovery"
	Pitch             Phase = "pitch"
	ObjectionHandling Phase = "objection_handling"
	Closing           Phase = "closing"
	Ended             Phase = "ended"
)

// successors maps each phase to the single phase that follows it. Closing has
// no successor: Ended is terminal and reachable only through an explicit end
// request or the turn ceiling, never by dwell time.
var successors = map[Phase]Phase{
	Greeting:          Discovery,
	Discovery:         Pitch,
	Pitch:             ObjectionHandling,
	ObjectionHandling: Closing,
}

// advanceSignals maps a phase to the signal that force-advances it to its
// successor before the minimum turn count is reached. Greeting advances on
// dwell time only.
var advanceSignals = map[Phase]Signal{
	Discovery:         SignalPriceMentioned,
	Pitch:             SignalObjectionRaised,
	ObjectionHandling: SignalCommitment,
}

// Config tunes the transition policy.
type Config struct {
	// MinTurnsPerPhase is the number of turns spent in a phase before the
	// machine advances to the successor phase by default.
	MinTurnsPerPhase int
	// TurnCeiling is the hard cap on total turns; reaching it forces Ended
	// from any phase.
	TurnCeiling int
}

const (
	defaultMinTurnsPerPhase = 3
	defaultTurnCeiling      = 40
)

func (c Config) withDefaults() Config {
	if c.MinTurnsPerPhase <= 0 {
		c.MinTurnsPerPhase = defaultMinTurnsPerPhase
	}
	if c.TurnCeiling <= 0 {
		c.TurnCeiling = defaultTurnCeiling
	}
	return c
}

// Next computes the phase that follows current. It is side-effect free and
// re-entrant: identical inputs always yield identical output. The machine
// never regresses and never skips a phase; the sole exception is
// SignalEndRequested, which reaches Ended from any phase.
func Next(current Phase, turnsInPhase int, signals SignalSet, totalTurns int, cfg Config) Phase {
	cfg = cfg.withDefaults()

	if current == Ended {
		return Ended
	}
	if signals.Has(SignalEndRequested) {
		return Ended
	}
	if totalTurns >= cfg.TurnCeiling {
		return Ended
	}

	next, ok := successors[current]
	if !ok {
		// Closing: hold until an end request or the ceiling.
		return current
	}

	if sig := advanceSignals[current]; sig != 0 && signals.Has(sig) {
		return next
	}
	if turnsInPhase >= cfg.MinTurnsPerPhase {
		return next
	}
	return current
}

// Ordinal returns the position of p in the phase sequence, with Ended last.
// Used by tests to assert the machine never moves backwards.
func Ordinal(p Phase) int {
	switch p {
	case Greeting:
		return 0
	case Discovery:
		return 1
	case Pitch:
		return 2
	case ObjectionHandling:
		return 3
	case Closing:
		return 4
	case Ended:
		return 5
	}
	return -1
}
