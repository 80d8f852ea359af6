package roleplay_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dealdojo/backend/internal/config"
	handler "github.com/dealdojo/backend/internal/handler/roleplay"
	"github.com/dealdojo/backend/internal/messaging"
	model "github.com/dealdojo/backend/internal/model/roleplay"
	"github.com/dealdojo/backend/internal/model/scenario"
	"github.com/dealdojo/backend/internal/service/ai"
	"github.com/dealdojo/backend/internal/service/evaluation"
	roleplaysvc "github.com/dealdojo/backend/internal/service/roleplay"
	"github.com/dealdojo/backend/internal/service/session"
	"github.com/dealdojo/backend/internal/storage"
)

type cannedProvider struct{}

func (cannedProvider) Name() string { return "canned" }

func (cannedProvider) Generate(_ context.Context, _ ai.Prompt) (string, error) {
	return "That sounds interesting, tell me more.", nil
}

func newTestServer(t *testing.T) (*httptest.Server, *messaging.Bus) {
	return newTestServerWithCeiling(t, 40)
}

func newTestServerWithCeiling(t *testing.T, ceiling int) (*httptest.Server, *messaging.Bus) {
	t.Helper()

	cfg := config.EngineConfig{
		HeartbeatInterval: time.Minute,
		HeartbeatMisses:   3,
		GracePeriod:       time.Minute,
		SweepInterval:     time.Minute,
		MinTurnsPerPhase:  3,
		TurnCeiling:       ceiling,
		PublishRetries:    3,
		PublishBaseDelay:  time.Millisecond,
	}

	scenarios := scenario.NewMemoryStore(scenario.Seed())
	store := session.NewStore(storage.NewMemoryStore(scenarios))
	gen := ai.NewGeneratorWithProvider(cannedProvider{}, config.AIConfig{
		Provider:       "mock",
		Timeout:        time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
		HistoryLimit:   10,
	})

	bus := messaging.NewBus()
	t.Cleanup(bus.Close)
	handoff := evaluation.NewHandoff(bus, cfg.PublishRetries, cfg.PublishBaseDelay)
	svc := roleplaysvc.New(store, scenarios, gen, handoff, cfg)

	r := chi.NewRouter()
	handler.NewWebSocketHandler(svc, cfg).RegisterWebSocketRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, bus
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) model.ServerFrame {
	t.Helper()
	var frame model.ServerFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

// readUntil skips frames (typing, heartbeat) until one of the wanted type
// arrives.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) model.ServerFrame {
	t.Helper()
	for i := 0; i < 10; i++ {
		frame := readFrame(t, conn)
		if frame.Type == frameType {
			return frame
		}
	}
	t.Fatalf("no %s frame within 10 frames", frameType)
	return model.ServerFrame{}
}

func TestFullSessionFlow(t *testing.T) {
	srv, bus := newTestServer(t)
	events := bus.Subscribe(model.TopicSessionEnded)

	conn := dial(t, srv, "/ws/roleplay?scenario_id=discovery_basics&user_id=rep-1")

	started := readFrame(t, conn)
	if started.Type != model.FrameSessionStarted {
		t.Fatalf("first frame = %s, want session_started", started.Type)
	}
	if started.SessionID == "" {
		t.Fatal("session_started frame missing session id")
	}
	if started.Phase != "greeting" {
		t.Fatalf("initial phase = %s, want greeting", started.Phase)
	}

	if err := conn.WriteJSON(model.ClientFrame{Type: model.FrameMessage, Content: "Hi, thanks for making time today."}); err != nil {
		t.Fatalf("write message: %v", err)
	}

	typing := readFrame(t, conn)
	if typing.Type != model.FrameTyping || typing.IsTyping == nil || !*typing.IsTyping {
		t.Fatalf("expected typing(true) frame, got %+v", typing)
	}

	message := readUntil(t, conn, model.FrameMessage)
	if message.TurnNumber != 2 {
		t.Fatalf("buyer reply turn_number = %d, want 2", message.TurnNumber)
	}
	if message.Content == "" {
		t.Fatal("buyer reply has no content")
	}

	if err := conn.WriteJSON(model.ClientFrame{Type: model.FrameEndSession}); err != nil {
		t.Fatalf("write end_session: %v", err)
	}

	ended := readUntil(t, conn, model.FrameSessionEnded)
	if ended.EvaluationSummary == nil {
		t.Fatal("session_ended frame missing evaluation summary")
	}
	if ended.EvaluationSummary.TotalTurns != 2 {
		t.Fatalf("summary total_turns = %d, want 2", ended.EvaluationSummary.TotalTurns)
	}

	select {
	case payload := <-events:
		var evt model.SessionEndedEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if evt.SessionID != started.SessionID {
			t.Fatalf("event session id = %s, want %s", evt.SessionID, started.SessionID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no session ended event published")
	}

	select {
	case <-events:
		t.Fatal("session ended event published more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPingAnsweredWithHeartbeat(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "/ws/roleplay?scenario_id=discovery_basics")
	readFrame(t, conn) // session_started

	if err := conn.WriteJSON(model.ClientFrame{Type: model.FramePing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	frame := readUntil(t, conn, model.FrameHeartbeat)
	if frame.Type != model.FrameHeartbeat {
		t.Fatalf("ping answered with %s, want heartbeat", frame.Type)
	}
}

func TestUnknownFrameTypeYieldsErrorNotDisconnect(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "/ws/roleplay?scenario_id=discovery_basics")
	readFrame(t, conn) // session_started

	if err := conn.WriteJSON(model.ClientFrame{Type: "bogus"}); err != nil {
		t.Fatalf("write bogus frame: %v", err)
	}
	frame := readUntil(t, conn, model.FrameError)
	if frame.Error == "" {
		t.Fatal("error frame missing message")
	}

	// Connection must still work.
	if err := conn.WriteJSON(model.ClientFrame{Type: model.FramePing}); err != nil {
		t.Fatalf("write ping after error: %v", err)
	}
	readUntil(t, conn, model.FrameHeartbeat)
}

func TestMalformedFrameYieldsErrorNotDisconnect(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "/ws/roleplay?scenario_id=discovery_basics")
	readFrame(t, conn) // session_started

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write malformed frame: %v", err)
	}
	frame := readUntil(t, conn, model.FrameError)
	if !strings.Contains(frame.Error, "protocol violation") {
		t.Fatalf("unexpected error message: %q", frame.Error)
	}

	// Connection must still work.
	if err := conn.WriteJSON(model.ClientFrame{Type: model.FramePing}); err != nil {
		t.Fatalf("write ping after error: %v", err)
	}
	readUntil(t, conn, model.FrameHeartbeat)
}

func TestEmptyMessageYieldsError(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "/ws/roleplay?scenario_id=discovery_basics")
	readFrame(t, conn) // session_started

	if err := conn.WriteJSON(model.ClientFrame{Type: model.FrameMessage, Content: "  "}); err != nil {
		t.Fatalf("write empty message: %v", err)
	}
	frame := readUntil(t, conn, model.FrameError)
	if !strings.Contains(frame.Error, "empty") {
		t.Fatalf("unexpected error message: %q", frame.Error)
	}
}

func TestReconnectResumesSession(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dial(t, srv, "/ws/roleplay?scenario_id=discovery_basics&user_id=rep-1")
	started := readFrame(t, conn)
	sessionID := started.SessionID

	if err := conn.WriteJSON(model.ClientFrame{Type: model.FrameMessage, Content: "First message before the drop."}); err != nil {
		t.Fatalf("write message: %v", err)
	}
	readUntil(t, conn, model.FrameMessage)

	conn.Close()
	time.Sleep(50 * time.Millisecond) // let the server notice the drop

	resumed := dial(t, srv, "/ws/roleplay/"+sessionID)
	again := readFrame(t, resumed)
	if again.Type != model.FrameSessionStarted {
		t.Fatalf("resume first frame = %s, want session_started", again.Type)
	}
	if again.SessionID != sessionID {
		t.Fatalf("resume bound to %s, want %s", again.SessionID, sessionID)
	}

	if err := resumed.WriteJSON(model.ClientFrame{Type: model.FrameMessage, Content: "Back again, sorry about that."}); err != nil {
		t.Fatalf("write after resume: %v", err)
	}
	message := readUntil(t, resumed, model.FrameMessage)
	if message.TurnNumber != 4 {
		t.Fatalf("turn numbering across reconnect = %d, want 4", message.TurnNumber)
	}
}

func TestSecondConnectionDisplacesFirst(t *testing.T) {
	srv, _ := newTestServer(t)

	first := dial(t, srv, "/ws/roleplay?scenario_id=discovery_basics")
	started := readFrame(t, first)

	second := dial(t, srv, "/ws/roleplay/"+started.SessionID)
	readFrame(t, second) // session_started on the new connection

	// The displaced connection receives a close with the replacement code.
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, 4001) {
				t.Fatalf("displaced close error = %v, want code 4001", err)
			}
			break
		}
	}

	// The new connection owns the session.
	if err := second.WriteJSON(model.ClientFrame{Type: model.FrameMessage, Content: "Still here on the new line."}); err != nil {
		t.Fatalf("write on new connection: %v", err)
	}
	readUntil(t, second, model.FrameMessage)
}

func TestTurnCeilingEndsSession(t *testing.T) {
	srv, _ := newTestServerWithCeiling(t, 4)
	conn := dial(t, srv, "/ws/roleplay?scenario_id=discovery_basics")
	readFrame(t, conn) // session_started

	// Each exchange commits two turns; the third pushes past the ceiling.
	for i := 0; i < 3; i++ {
		if err := conn.WriteJSON(model.ClientFrame{Type: model.FrameMessage, Content: fmt.Sprintf("message %d", i)}); err != nil {
			t.Fatalf("write message %d: %v", i, err)
		}
		readUntil(t, conn, model.FrameMessage)
	}

	ended := readUntil(t, conn, model.FrameSessionEnded)
	if ended.EvaluationSummary == nil {
		t.Fatal("session_ended frame missing evaluation summary")
	}
	if ended.EvaluationSummary.TotalTurns != 6 {
		t.Fatalf("summary total_turns = %d, want 6", ended.EvaluationSummary.TotalTurns)
	}
}

func TestResumeUnknownSessionRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/roleplay/does-not-exist"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown session")
	}
	if resp == nil || resp.StatusCode != 410 {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("status = %d, want 410", status)
	}
}

func TestConcurrentSessionsStayIsolated(t *testing.T) {
	srv, _ := newTestServer(t)

	conns := make([]*websocket.Conn, 3)
	ids := make([]string, 3)
	for i := range conns {
		conns[i] = dial(t, srv, fmt.Sprintf("/ws/roleplay?scenario_id=discovery_basics&user_id=rep-%d", i))
		ids[i] = readFrame(t, conns[i]).SessionID
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1] {
			t.Fatalf("sessions share an id: %s", ids[i])
		}
	}

	for i, conn := range conns {
		if err := conn.WriteJSON(model.ClientFrame{Type: model.FrameMessage, Content: fmt.Sprintf("hello from rep %d", i)}); err != nil {
			t.Fatalf("write on conn %d: %v", i, err)
		}
	}
	for i, conn := range conns {
		message := readUntil(t, conn, model.FrameMessage)
		if message.TurnNumber != 2 {
			t.Fatalf("conn %d buyer turn_number = %d, want 2", i, message.TurnNumber)
		}
	}
}
