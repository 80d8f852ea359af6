package phase

import (
	"math/rand"
	"testing"
)

func TestNextIsPure(t *testing.T) {
	cfg := Config{MinTurnsPerPhase: 3, TurnCeiling: 40}
	for i := 0; i < 100; i++ {
		p := allPhases[rand.Intn(len(allPhases))]
		turns := rand.Intn(6)
		signals := SignalSet(rand.Intn(16))
		total := rand.Intn(45)

		first := Next(p, turns, signals, total, cfg)
		second := Next(p, turns, signals, total, cfg)
		if first != second {
			t.Fatalf("Next not deterministic: %s vs %s for (%s, %d, %b, %d)",
				first, second, p, turns, signals, total)
		}
	}
}

var allPhases = []Phase{Greeting, Discovery, Pitch, ObjectionHandling, Closing, Ended}

func TestNextNeverRegresses(t *testing.T) {
	cfg := Config{MinTurnsPerPhase: 2, TurnCeiling: 40}
	for i := 0; i < 500; i++ {
		p := allPhases[rand.Intn(len(allPhases))]
		next := Next(p, rand.Intn(5), SignalSet(rand.Intn(16)), rand.Intn(39), cfg)
		if Ordinal(next) < Ordinal(p) {
			t.Fatalf("machine regressed: %s -> %s", p, next)
		}
	}
}

func TestNextNeverSkipsPhase(t *testing.T) {
	cfg := Config{}
	for i := 0; i < 500; i++ {
		p := allPhases[rand.Intn(len(allPhases))]
		signals := SignalSet(rand.Intn(8)) // excludes SignalEndRequested
		next := Next(p, rand.Intn(10), signals, rand.Intn(39), cfg)
		if next == Ended && p != Ended {
			t.Fatalf("reached ended without end request or ceiling from %s", p)
		}
		if Ordinal(next)-Ordinal(p) > 1 {
			t.Fatalf("machine skipped a phase: %s -> %s", p, next)
		}
	}
}

func TestDwellTimeAdvance(t *testing.T) {
	cfg := Config{MinTurnsPerPhase: 3, TurnCeiling: 40}

	if got := Next(Greeting, 2, 0, 2, cfg); got != Greeting {
		t.Fatalf("advanced before min turns: %s", got)
	}
	if got := Next(Greeting, 3, 0, 3, cfg); got != Discovery {
		t.Fatalf("expected discovery after dwell, got %s", got)
	}
	if got := Next(Discovery, 3, 0, 6, cfg); got != Pitch {
		t.Fatalf("expected pitch after dwell, got %s", got)
	}
}

func TestSignalForcedAdvance(t *testing.T) {
	cfg := Config{MinTurnsPerPhase: 10, TurnCeiling: 40}

	cases := []struct {
		from Phase
		sig  Signal
		want Phase
	}{
		{Discovery, SignalPriceMentioned, Pitch},
		{Pitch, SignalObjectionRaised, ObjectionHandling},
		{ObjectionHandling, SignalCommitment, Closing},
	}
	for _, tc := range cases {
		got := Next(tc.from, 1, SignalSet(0).Add(tc.sig), 5, cfg)
		if got != tc.want {
			t.Fatalf("%s with %b: got %s want %s", tc.from, tc.sig, got, tc.want)
		}
	}

	// The wrong signal must not advance a phase early.
	if got := Next(Discovery, 1, SignalSet(0).Add(SignalCommitment), 5, cfg); got != Discovery {
		t.Fatalf("commitment signal advanced discovery: %s", got)
	}
}

func TestClosingHoldsWithoutEndSignal(t *testing.T) {
	cfg := Config{MinTurnsPerPhase: 2, TurnCeiling: 40}
	if got := Next(Closing, 20, 0, 30, cfg); got != Closing {
		t.Fatalf("closing advanced without end request: %s", got)
	}
}

func TestEndRequestedFromEveryPhase(t *testing.T) {
	cfg := Config{}
	signals := SignalSet(0).Add(SignalEndRequested)
	for _, p := range allPhases {
		if got := Next(p, 0, signals, 1, cfg); got != Ended {
			t.Fatalf("end request from %s yielded %s", p, got)
		}
	}
}

func TestTurnCeilingForcesEnded(t *testing.T) {
	cfg := Config{MinTurnsPerPhase: 3, TurnCeiling: 10}
	for _, p := range allPhases {
		if got := Next(p, 1, 0, 10, cfg); got != Ended {
			t.Fatalf("ceiling from %s yielded %s", p, got)
		}
	}
}

func TestEndedIsTerminal(t *testing.T) {
	if got := Next(Ended, 0, 0, 0, Config{}); got != Ended {
		t.Fatalf("ended transitioned to %s", got)
	}
}

func TestDetectPriceSignal(t *testing.T) {
	set := Detect("What does the pricing look like for an annual deal?", "Depends on the budget you have in mind.")
	if !set.Has(SignalPriceMentioned) {
		t.Fatal("expected price signal")
	}
}

func TestDetectObjectionSignal(t *testing.T) {
	set := Detect("How does this compare?", "I'm worried, we tried before with a competitor and it flopped.")
	if !set.Has(SignalObjectionRaised) {
		t.Fatal("expected objection signal")
	}
}

func TestDetectRequiresTwoKeywords(t *testing.T) {
	set := Detect("Let's talk about price.", "Sure.")
	if set.Has(SignalPriceMentioned) {
		t.Fatal("single keyword should not raise a signal")
	}
}

func TestDetectNeverRaisesEndRequested(t *testing.T) {
	set := Detect("next steps sign contract move forward", "sounds good let's do it")
	if set.Has(SignalEndRequested) {
		t.Fatal("keyword detection raised the end signal")
	}
}
