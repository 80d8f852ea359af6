package phase

import "strings"

// Signal flags a dialogue cue that influences phase transitions.
type Signal uint8

const (
	// SignalPriceMentioned fires when pricing enters the conversation and
	// force-advances discovery into pitch.
	SignalPriceMentioned Signal = 1 << iota
	// SignalObjectionRaised fires on buyer pushback and force-advances pitch
	// into objection handling.
	SignalObjectionRaised
	// SignalCommitment fires when the buyer leans toward a deal and
	// force-advances objection handling into closing.
	SignalCommitment
	// SignalEndRequested is raised by an explicit end_session frame, never by
	// keyword detection; it reaches Ended from any phase.
	SignalEndRequested
)

// SignalSet accumulates the signals observed while a session sits in one
// phase. The set is cleared on every transition.
type SignalSet uint8

// Has reports whether sig is present in the set.
func (s SignalSet) Has(sig Signal) bool { return uint8(s)&uint8(sig) != 0 }

// Add returns the set with sig raised.
func (s SignalSet) Add(sig Signal) SignalSet { return SignalSet(uint8(s) | uint8(sig)) }

// signalKeywords holds the cue vocabulary per signal. A signal is raised when
// at least two distinct keywords appear in the combined rep and buyer text of
// one exchange.
var signalKeywords = map[Signal][]string{
	SignalPriceMentioned: {
		"price", "pricing", "cost", "budget", "how much", "discount",
		"quote", "per seat", "annual", "expensive",
	},
	SignalObjectionRaised: {
		"concern", "worried", "not sure", "competitor", "expensive",
		"tried before", "didn't work", "too risky", "skeptical", "pushback",
	},
	SignalCommitment: {
		"next steps", "move forward", "sign", "contract", "let's do",
		"sounds good", "proposal", "implement", "start", "onboard",
	},
}

const keywordThreshold = 2

// Detect extracts signal flags from the latest rep and buyer utterances of a
// single exchange.
func Detect(repUtterance, buyerUtterance string) SignalSet {
	combined := strings.ToLower(repUtterance + " " + buyerUtterance)

	var set SignalSet
	for sig, keywords := range signalKeywords {
		matches := 0
		for _, kw := range keywords {
			if strings.Contains(combined, kw) {
				matches++
			}
		}
		if matches >= keywordThreshold {
			set = set.Add(sig)
		}
	}
	return set
}
