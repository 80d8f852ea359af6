package roleplay

import (
	"time"

	"github.com/dealdojo/backend/internal/analysis/phase"
)

// Status is the lifecycle state of a roleplay session.
type Status string

const (
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusAbandoned Status = "abandoned"
)

// Speaker identifies which side of the conversation produced a turn.
type Speaker string

const (
	SpeakerRep   Speaker = "rep"
	SpeakerBuyer Speaker = "buyer"
)

// Turn is one utterance by either participant. Numbers are contiguous per
// session, starting at 1.
type Turn struct {
	Number    int         `json:"number"`
	Speaker   Speaker     `json:"speaker"`
	Content   string      `json:"content"`
	Phase     phase.Phase `json:"phase"`
	CreatedAt time.Time   `json:"createdAt"`
}

// PhaseState tracks where the conversation sits in the phase machine. It is
// persisted with the session but never exposed on the wire protocol.
type PhaseState struct {
	Phase        phase.Phase     `json:"phase"`
	TurnsInPhase int             `json:"turnsInPhase"`
	Signals      phase.SignalSet `json:"signals"`
}

// PhaseVisit records one stretch of the conversation spent in a phase.
type PhaseVisit struct {
	Phase phase.Phase `json:"phase"`
	Turns int         `json:"turns"`
}

// Session is one roleplay conversation between a rep and the AI-played buyer.
// The session store owns every Session for its active lifetime; all mutation
// goes through the store's per-session exclusive Mutate.
type Session struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId"`
	ScenarioID     string       `json:"scenarioId"`
	Status         Status       `json:"status"`
	State          PhaseState   `json:"state"`
	PhaseHistory   []PhaseVisit `json:"phaseHistory"`
	Turns          []Turn       `json:"turns"`
	CreatedAt      time.Time    `json:"createdAt"`
	LastActivityAt time.Time    `json:"lastActivityAt"`

	// ResumeBy is the grace-period deadline after a connection loss. Zero
	// while a connection is bound. A session whose deadline has passed is
	// swept to StatusAbandoned and can no longer be resumed.
	ResumeBy time.Time `json:"resumeBy,omitempty"`
}

// AppendTurn commits an utterance as the next turn and updates the phase
// accounting. Callers must hold the session store's lock for this session.
func (s *Session) AppendTurn(speaker Speaker, content string) Turn {
	turn := Turn{
		Number:    len(s.Turns) + 1,
		Speaker:   speaker,
		Content:   content,
		Phase:     s.State.Phase,
		CreatedAt: time.Now().UTC(),
	}
	s.Turns = append(s.Turns, turn)
	s.State.TurnsInPhase++

	if n := len(s.PhaseHistory); n > 0 && s.PhaseHistory[n-1].Phase == s.State.Phase {
		s.PhaseHistory[n-1].Turns++
	} else {
		s.PhaseHistory = append(s.PhaseHistory, PhaseVisit{Phase: s.State.Phase, Turns: 1})
	}
	return turn
}

// AdvancePhase moves the session into next, resetting the per-phase turn
// count and clearing accumulated signals. A no-op when next equals the
// current phase.
func (s *Session) AdvancePhase(next phase.Phase) {
	if next == s.State.Phase {
		return
	}
	s.State.Phase = next
	s.State.TurnsInPhase = 0
	s.State.Signals = 0
}

// Clone returns a deep copy safe to hand outside the store's lock.
func (s *Session) Clone() Session {
	out := *s
	out.Turns = append([]Turn(nil), s.Turns...)
	out.PhaseHistory = append([]PhaseVisit(nil), s.PhaseHistory...)
	return out
}
