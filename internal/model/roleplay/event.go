package roleplay

import (
	"time"

	"github.com/dealdojo/backend/internal/analysis/phase"
)

// TopicSessionEnded is the topic the evaluation handoff publishes to. The
// downstream scoring pipeline deduplicates by session id, so at-least-once
// delivery is sufficient here.
const TopicSessionEnded = "roleplay.session.ended"

// Summary condenses a finished session for the session_ended frame.
type Summary struct {
	TotalTurns      int            `json:"total_turns"`
	PhasesVisited   map[string]int `json:"phases_visited"`
	FinalPhase      phase.Phase    `json:"final_phase"`
	DurationSeconds int            `json:"duration_seconds"`
}

// SessionEndedEvent is the payload handed off to the external evaluation
// pipeline when a session reaches ended or abandoned.
type SessionEndedEvent struct {
	SessionID    string       `json:"sessionId"`
	UserID       string       `json:"userId"`
	ScenarioID   string       `json:"scenarioId"`
	Status       Status       `json:"status"`
	Turns        []Turn       `json:"turns"`
	PhaseHistory []PhaseVisit `json:"phaseHistory"`
	Summary      Summary      `json:"summary"`
	EndedAt      time.Time    `json:"endedAt"`
}

// Summarize builds the evaluation summary from a finished session snapshot.
func Summarize(s Session) Summary {
	visited := make(map[string]int, len(s.PhaseHistory))
	for _, visit := range s.PhaseHistory {
		visited[string(visit.Phase)] += visit.Turns
	}
	return Summary{
		TotalTurns:      len(s.Turns),
		PhasesVisited:   visited,
		FinalPhase:      s.State.Phase,
		DurationSeconds: int(s.LastActivityAt.Sub(s.CreatedAt).Seconds()),
	}
}
