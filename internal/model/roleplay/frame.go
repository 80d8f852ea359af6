package roleplay

import "github.com/dealdojo/backend/internal/analysis/phase"

// Inbound frame types accepted from the client.
const (
	FrameMessage    = "message"
	FramePing       = "ping"
	FrameEndSession = "end_session"
)

// Outbound frame types emitted by the engine.
const (
	FrameSessionStarted = "session_started"
	FrameTyping         = "typing"
	FrameSessionEnded   = "session_ended"
	FrameHeartbeat      = "heartbeat"
	FrameError          = "error"
)

// ClientFrame is an inbound frame. Unknown types yield an error frame, not a
// connection drop.
type ClientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ServerFrame is an outbound frame, distinguishable by its Type tag.
type ServerFrame struct {
	Type              string      `json:"type"`
	SessionID         string      `json:"session_id,omitempty"`
	Phase             phase.Phase `json:"phase,omitempty"`
	Content           string      `json:"content,omitempty"`
	TurnNumber        int         `json:"turn_number,omitempty"`
	IsTyping          *bool       `json:"is_typing,omitempty"`
	EvaluationSummary *Summary    `json:"evaluation_summary,omitempty"`
	Error             string      `json:"error,omitempty"`
}

// SessionStartedFrame announces a fresh or resumed binding.
func SessionStartedFrame(sessionID string, p phase.Phase) ServerFrame {
	return ServerFrame{Type: FrameSessionStarted, SessionID: sessionID, Phase: p}
}

// TypingFrame signals that buyer-turn generation is in flight.
func TypingFrame(isTyping bool) ServerFrame {
	return ServerFrame{Type: FrameTyping, IsTyping: &isTyping}
}

// MessageFrame carries one buyer turn.
func MessageFrame(turn Turn) ServerFrame {
	return ServerFrame{
		Type:       FrameMessage,
		Content:    turn.Content,
		Phase:      turn.Phase,
		TurnNumber: turn.Number,
	}
}

// SessionEndedFrame carries the evaluation summary on teardown.
func SessionEndedFrame(summary Summary) ServerFrame {
	return ServerFrame{Type: FrameSessionEnded, EvaluationSummary: &summary}
}

// HeartbeatFrame is the periodic liveness frame, also used to acknowledge an
// inbound ping.
func HeartbeatFrame() ServerFrame {
	return ServerFrame{Type: FrameHeartbeat}
}

// ErrorFrame reports a session-scoped failure without dropping the channel.
func ErrorFrame(message string) ServerFrame {
	return ServerFrame{Type: FrameError, Error: message}
}
