// Package roleplay orchestrates one conversation turn end to end: it is the
// only writer of session state, binding the session store, the phase machine,
// and the turn generator together. Outbound frame ordering per session
// follows from the store's per-session exclusivity: no two inbound messages
// for one session are ever processed concurrently.
package roleplay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dealdojo/backend/internal/analysis/phase"
	"github.com/dealdojo/backend/internal/config"
	"github.com/dealdojo/backend/internal/model/roleplay"
	"github.com/dealdojo/backend/internal/model/scenario"
	"github.com/dealdojo/backend/internal/observability"
	"github.com/dealdojo/backend/internal/service/ai"
	"github.com/dealdojo/backend/internal/service/evaluation"
	"github.com/dealdojo/backend/internal/service/session"
)

var (
	// ErrEmptyMessage rejects a message frame without content; surfaced as an
	// error frame, never a disconnect.
	ErrEmptyMessage = errors.New("message content must not be empty")
	// ErrScenarioNotFound rejects session creation against an unknown
	// scenario.
	ErrScenarioNotFound = errors.New("scenario not found")
	// ErrProtocolViolation flags a malformed or unknown inbound frame; the
	// connection layer surfaces it as an error frame and keeps the channel
	// open.
	ErrProtocolViolation = errors.New("protocol violation")
)

// Service is the session protocol handler.
type Service struct {
	store     *session.Store
	scenarios scenario.Store
	generator *ai.Generator
	handoff   *evaluation.Handoff
	cfg       config.EngineConfig
	tracer    trace.Tracer
}

// New wires the protocol handler.
func New(store *session.Store, scenarios scenario.Store, generator *ai.Generator, handoff *evaluation.Handoff, cfg config.EngineConfig) *Service {
	return &Service{
		store:     store,
		scenarios: scenarios,
		generator: generator,
		handoff:   handoff,
		cfg:       cfg,
		tracer:    otel.Tracer("service/roleplay"),
	}
}

// CreateOrResume originates a session or resumes one inside its grace
// period. With a session id it resumes (clearing the grace deadline); with a
// scenario id it creates a fresh session at the greeting phase, committing
// the scenario's opening line as buyer turn 1 when one is configured.
// Resuming an unknown, ended, or grace-expired session fails with
// ErrInvalidSessionState.
func (s *Service) CreateOrResume(ctx context.Context, sessionID, scenarioID, userID string) (roleplay.Session, error) {
	if sessionID != "" {
		return s.resume(ctx, sessionID)
	}

	sc, ok := s.scenarios.FindByID(scenarioID)
	if !ok {
		return roleplay.Session{}, ErrScenarioNotFound
	}

	now := time.Now().UTC()
	sess := &roleplay.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		ScenarioID:     sc.ID,
		Status:         roleplay.StatusActive,
		State:          roleplay.PhaseState{Phase: phase.Greeting},
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if sc.OpeningLine != "" {
		sess.AppendTurn(roleplay.SpeakerBuyer, sc.OpeningLine)
	}

	if err := s.store.Create(sess); err != nil {
		return roleplay.Session{}, err
	}
	observability.ActiveSessions.Inc()
	log.Printf("[roleplay] session created id=%s scenario=%s user=%s", sess.ID, sc.ID, userID)
	return sess.Clone(), nil
}

func (s *Service) resume(_ context.Context, sessionID string) (roleplay.Session, error) {
	now := time.Now().UTC()
	snapshot, err := s.store.Mutate(sessionID, func(sess *roleplay.Session) error {
		if !sess.ResumeBy.IsZero() && now.After(sess.ResumeBy) {
			// Grace period elapsed; the sweep will mark it abandoned.
			return session.ErrInvalidSessionState
		}
		sess.ResumeBy = time.Time{}
		sess.LastActivityAt = now
		return nil
	})
	if err != nil {
		return roleplay.Session{}, err
	}
	log.Printf("[roleplay] session resumed id=%s phase=%s turns=%d", snapshot.ID, snapshot.State.Phase, len(snapshot.Turns))
	return snapshot, nil
}

// ProcessMessage handles one inbound rep message: append the rep turn, run
// the phase machine, generate the buyer turn for the (possibly) new phase,
// and append it, all under the session's exclusive lock. Cancelling ctx
// mid-generation discards everything; no partial turn is committed. The
// returned buyer turn carries the phase it was emitted in.
func (s *Service) ProcessMessage(ctx context.Context, sessionID, content string) (roleplay.Turn, roleplay.Session, error) {
	ctx, span := s.tracer.Start(ctx, "roleplay.process_message", trace.WithAttributes(
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	if strings.TrimSpace(content) == "" {
		return roleplay.Turn{}, roleplay.Session{}, ErrEmptyMessage
	}

	var buyerTurn roleplay.Turn
	snapshot, err := s.store.Mutate(sessionID, func(sess *roleplay.Session) error {
		sc, ok := s.scenarios.FindByID(sess.ScenarioID)
		if !ok {
			return ErrScenarioNotFound
		}

		sess.AppendTurn(roleplay.SpeakerRep, content)

		lastBuyer := lastUtterance(sess.Turns, roleplay.SpeakerBuyer)
		sess.State.Signals |= phase.Detect(content, lastBuyer)

		next := phase.Next(
			sess.State.Phase,
			sess.State.TurnsInPhase,
			sess.State.Signals,
			len(sess.Turns),
			phase.Config{MinTurnsPerPhase: s.cfg.MinTurnsPerPhase, TurnCeiling: s.cfg.TurnCeiling},
		)
		sess.AdvancePhase(next)

		// The rep turn just appended travels as the query, not as history.
		history := sess.Turns[:len(sess.Turns)-1]
		text, err := s.generator.NextBuyerTurn(ctx, sc, next, history, content)
		if err != nil {
			return err
		}

		buyerTurn = sess.AppendTurn(roleplay.SpeakerBuyer, text)
		sess.LastActivityAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		if errors.Is(err, ai.ErrGenerationUnavailable) {
			observability.GenerationFailures.Inc()
		}
		return roleplay.Turn{}, roleplay.Session{}, err
	}

	observability.TurnsTotal.WithLabelValues(string(roleplay.SpeakerRep)).Inc()
	observability.TurnsTotal.WithLabelValues(string(roleplay.SpeakerBuyer)).Inc()
	return buyerTurn, snapshot, nil
}

// EndSession flips the session to the given terminal status, returns the
// evaluation summary, and schedules the handoff event off the teardown path.
func (s *Service) EndSession(ctx context.Context, sessionID string, status roleplay.Status) (roleplay.Summary, error) {
	_, span := s.tracer.Start(ctx, "roleplay.end_session", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("session.status", string(status)),
	))
	defer span.End()

	if status != roleplay.StatusEnded && status != roleplay.StatusAbandoned {
		return roleplay.Summary{}, fmt.Errorf("not a terminal status: %s", status)
	}

	snapshot, err := s.store.Mutate(sessionID, func(sess *roleplay.Session) error {
		sess.Status = status
		sess.AdvancePhase(phase.Ended)
		sess.LastActivityAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return roleplay.Summary{}, err
	}

	observability.ActiveSessions.Dec()
	log.Printf("[roleplay] session %s id=%s turns=%d final_phase=%s", status, snapshot.ID, len(snapshot.Turns), snapshot.State.Phase)

	s.publishAndEvict(snapshot)
	return roleplay.Summarize(snapshot), nil
}

// MarkDisconnected starts the grace period after a connection loss; the
// session stays active and resumable until the deadline.
func (s *Service) MarkDisconnected(sessionID string) {
	_, err := s.store.Mutate(sessionID, func(sess *roleplay.Session) error {
		sess.ResumeBy = time.Now().UTC().Add(s.cfg.GracePeriod)
		return nil
	})
	if err != nil && !errors.Is(err, session.ErrInvalidSessionState) {
		log.Printf("[roleplay] mark disconnected failed session=%s: %v", sessionID, err)
	}
}

// Get returns a session snapshot.
func (s *Service) Get(sessionID string) (roleplay.Session, error) {
	return s.store.Get(sessionID)
}

// Transcript returns the ordered turn history. This is the documented
// recovery path for frames dropped during a disconnect gap; the connection
// layer does not replay them.
func (s *Service) Transcript(sessionID string) ([]roleplay.Turn, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Turns, nil
}

// StartReaper sweeps grace-expired sessions to abandoned on a fixed interval
// until ctx is cancelled, publishing a handoff event for each.
func (s *Service) StartReaper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				for _, sess := range s.store.ExpireAbandoned(now) {
					observability.ActiveSessions.Dec()
					log.Printf("[roleplay] session abandoned id=%s (grace period elapsed)", sess.ID)
					s.publishAndEvict(sess)
				}
			}
		}
	}()
}

// publishAndEvict runs the evaluation handoff in the background and evicts
// the session from the in-memory store once publication has been attempted.
// Teardown never waits on publish success.
func (s *Service) publishAndEvict(snapshot roleplay.Session) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.handoff.PublishEnded(ctx, snapshot); err != nil {
			observability.PublishFailures.Inc()
		}
		s.store.Remove(snapshot.ID)
	}()
}

func lastUtterance(turns []roleplay.Turn, speaker roleplay.Speaker) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Speaker == speaker {
			return turns[i].Content
		}
	}
	return ""
}
