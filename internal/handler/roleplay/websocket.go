// Package roleplay exposes the websocket endpoint the rep client talks to.
// The handler owns connection lifecycle only; all session state changes go
// through the roleplay service. One live connection per session: binding a
// new connection atomically closes the previous one.
package roleplay

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dealdojo/backend/internal/analysis/phase"
	"github.com/dealdojo/backend/internal/config"
	"github.com/dealdojo/backend/internal/model/roleplay"
	"github.com/dealdojo/backend/internal/observability"
	"github.com/dealdojo/backend/internal/service/ai"
	roleplaysvc "github.com/dealdojo/backend/internal/service/roleplay"
	"github.com/dealdojo/backend/internal/service/session"
)

// Close code sent to a connection displaced by a newer one for the same
// session.
const closeReplaced = 4001

// Connection lifecycle states. Transitions only move forward; teardown wins
// every race via an atomic swap to stateClosed.
const (
	stateConnecting int32 = iota
	stateBound
	stateActive
	stateClosing
	stateClosed
)

// WebSocketHandler upgrades and drives roleplay connections.
type WebSocketHandler struct {
	svc      *roleplaysvc.Service
	cfg      config.EngineConfig
	upgrader websocket.Upgrader

	mu       sync.Mutex
	bindings map[string]*binding
}

// binding is one live connection bound to a session.
type binding struct {
	sessionID string
	conn      *websocket.Conn
	cancel    context.CancelFunc
	state     atomic.Int32

	// writeMu serializes every write to conn: the read loop, the heartbeat
	// goroutine, and a displacing binding may all write.
	writeMu sync.Mutex
}

// NewWebSocketHandler creates the connection manager.
func NewWebSocketHandler(svc *roleplaysvc.Service, cfg config.EngineConfig) *WebSocketHandler {
	return &WebSocketHandler{
		svc: svc,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		bindings: make(map[string]*binding),
	}
}

// RegisterWebSocketRoutes registers the roleplay websocket endpoints.
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/roleplay", h.handleWebSocket)
	r.Get("/ws/roleplay/{sessionID}", h.handleWebSocket)
}

// handleWebSocket serves one connection for its whole lifetime. Without a
// session id in the path it creates a session from the scenario_id query
// parameter; with one it resumes.
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	scenarioID := r.URL.Query().Get("scenario_id")
	userID := r.URL.Query().Get("user_id")

	if sessionID == "" && scenarioID == "" {
		http.Error(w, "scenario_id is required for a new session", http.StatusBadRequest)
		return
	}

	sess, err := h.svc.CreateOrResume(r.Context(), sessionID, scenarioID, userID)
	if err != nil {
		switch {
		case errors.Is(err, roleplaysvc.ErrScenarioNotFound):
			http.Error(w, "scenario not found", http.StatusNotFound)
		case errors.Is(err, session.ErrInvalidSessionState):
			http.Error(w, "session cannot be resumed", http.StatusGone)
		default:
			http.Error(w, "failed to start session", http.StatusInternalServerError)
		}
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		h.svc.MarkDisconnected(sess.ID)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &binding{sessionID: sess.ID, conn: conn, cancel: cancel}
	b.state.Store(stateConnecting)

	h.bind(b)
	b.state.Store(stateBound)
	observability.OpenConnections.Inc()
	log.Printf("[websocket] connection bound session=%s", sess.ID)

	conn.SetReadDeadline(time.Now().Add(h.cfg.ReadDeadline()))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.cfg.ReadDeadline()))
		return nil
	})

	go h.heartbeatLoop(ctx, b)

	h.writeFrame(b, roleplay.SessionStartedFrame(sess.ID, sess.State.Phase))
	b.state.Store(stateActive)

	h.readLoop(ctx, b)
}

// bind installs b as the session's live connection, displacing any previous
// binding for the same session.
func (h *WebSocketHandler) bind(b *binding) {
	h.mu.Lock()
	previous := h.bindings[b.sessionID]
	h.bindings[b.sessionID] = b
	h.mu.Unlock()

	if previous == nil {
		return
	}
	previous.writeMu.Lock()
	previous.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(closeReplaced, "Replaced by new connection"),
		time.Now().Add(time.Second),
	)
	previous.writeMu.Unlock()
	// Unbind before closing so the old read loop's teardown does not start
	// the grace period for a session that is still connected.
	h.teardown(previous, false)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, b *binding) {
	for {
		select {
		case <-ctx.Done():
			h.teardown(b, false)
			return
		default:
		}

		var frame roleplay.ClientFrame
		if err := b.conn.ReadJSON(&frame); err != nil {
			// A decode failure means the peer sent garbage on a live
			// connection, not that the connection is gone. Answer with an
			// error frame and keep reading.
			if isDecodeError(err) {
				b.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadDeadline()))
				h.writeFrame(b, roleplay.ErrorFrame(roleplaysvc.ErrProtocolViolation.Error()+": malformed frame"))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error session=%s: %v", b.sessionID, err)
			}
			h.teardown(b, true)
			return
		}
		b.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadDeadline()))

		if done := h.handleFrame(ctx, b, frame); done {
			return
		}
	}
}

// handleFrame dispatches one inbound frame. Returns true when the connection
// is finished and the read loop should exit.
func (h *WebSocketHandler) handleFrame(ctx context.Context, b *binding, frame roleplay.ClientFrame) bool {
	switch frame.Type {
	case roleplay.FrameMessage:
		return h.handleMessage(ctx, b, frame.Content)
	case roleplay.FramePing:
		h.writeFrame(b, roleplay.HeartbeatFrame())
		return false
	case roleplay.FrameEndSession:
		h.handleEndSession(ctx, b)
		return true
	default:
		h.writeFrame(b, roleplay.ErrorFrame(roleplaysvc.ErrProtocolViolation.Error()+": unsupported frame type "+frame.Type))
		return false
	}
}

// isDecodeError reports whether a ReadJSON failure came from the JSON decoder
// rather than the transport.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// handleMessage runs one exchange. Returns true when the exchange drove the
// session to its end (turn ceiling) and the connection is finished.
func (h *WebSocketHandler) handleMessage(ctx context.Context, b *binding, content string) bool {
	h.writeFrame(b, roleplay.TypingFrame(true))

	turn, sess, err := h.svc.ProcessMessage(ctx, b.sessionID, content)
	if err != nil {
		h.writeFrame(b, roleplay.TypingFrame(false))
		switch {
		case errors.Is(err, roleplaysvc.ErrEmptyMessage):
			h.writeFrame(b, roleplay.ErrorFrame("message content must not be empty"))
		case errors.Is(err, ai.ErrGenerationUnavailable):
			h.writeFrame(b, roleplay.ErrorFrame("buyer response unavailable, please retry"))
		case errors.Is(err, session.ErrInvalidSessionState):
			h.writeFrame(b, roleplay.ErrorFrame("session is no longer active"))
		default:
			log.Printf("[websocket] process message failed session=%s: %v", b.sessionID, err)
			h.writeFrame(b, roleplay.ErrorFrame("internal error"))
		}
		return false
	}

	h.writeFrame(b, roleplay.TypingFrame(false))
	h.writeFrame(b, roleplay.MessageFrame(turn))

	// The turn ceiling drives the phase machine to ended; finish the session
	// after delivering the buyer's wrap-up line.
	if sess.State.Phase == phase.Ended {
		log.Printf("[websocket] turn ceiling reached session=%s", b.sessionID)
		h.handleEndSession(ctx, b)
		return true
	}
	return false
}

func (h *WebSocketHandler) handleEndSession(ctx context.Context, b *binding) {
	b.state.Store(stateClosing)

	summary, err := h.svc.EndSession(ctx, b.sessionID, roleplay.StatusEnded)
	if err != nil {
		log.Printf("[websocket] end session failed session=%s: %v", b.sessionID, err)
		h.writeFrame(b, roleplay.ErrorFrame("failed to end session"))
		h.teardown(b, true)
		return
	}

	h.writeFrame(b, roleplay.SessionEndedFrame(summary))

	b.writeMu.Lock()
	b.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
		time.Now().Add(time.Second),
	)
	b.writeMu.Unlock()

	// The session is already terminal; no grace period on this teardown.
	h.teardown(b, false)
}

// teardown closes the connection exactly once. markDisconnected starts the
// session's grace period; it is false when the session ended cleanly or the
// connection was displaced by a newer one.
func (h *WebSocketHandler) teardown(b *binding, markDisconnected bool) {
	if b.state.Swap(stateClosed) == stateClosed {
		return
	}

	h.mu.Lock()
	if h.bindings[b.sessionID] == b {
		delete(h.bindings, b.sessionID)
	} else {
		// A newer binding displaced this one; the session stays connected.
		markDisconnected = false
	}
	h.mu.Unlock()

	b.cancel()
	b.conn.Close()
	observability.OpenConnections.Dec()

	if markDisconnected {
		h.svc.MarkDisconnected(b.sessionID)
		log.Printf("[websocket] connection lost session=%s, grace period started", b.sessionID)
	} else {
		log.Printf("[websocket] connection closed session=%s", b.sessionID)
	}
}

// heartbeatLoop emits the application heartbeat frame and a protocol ping on
// a fixed interval until the connection context is cancelled.
func (h *WebSocketHandler) heartbeatLoop(ctx context.Context, b *binding) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !h.writeFrame(b, roleplay.HeartbeatFrame()) {
				return
			}
			b.writeMu.Lock()
			err := b.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			b.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// writeFrame sends one frame under the binding's write lock. Returns false
// when the connection is gone.
func (h *WebSocketHandler) writeFrame(b *binding, frame roleplay.ServerFrame) bool {
	if b.state.Load() == stateClosed {
		return false
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.conn.WriteJSON(frame); err != nil {
		log.Printf("[websocket] write failed session=%s type=%s: %v", b.sessionID, frame.Type, err)
		return false
	}
	return true
}
