// Package evaluation hands finished sessions off to the external scoring
// pipeline. Publication is at-least-once: the publish call is retried with
// backoff and duplicates are the downstream consumer's problem (it
// deduplicates by session id).
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dealdojo/backend/internal/messaging"
	"github.com/dealdojo/backend/internal/model/roleplay"
)

// Handoff publishes SessionEnded events for ended and abandoned sessions.
type Handoff struct {
	publisher messaging.Publisher
	retries   int
	baseDelay time.Duration
	tracer    trace.Tracer
}

// NewHandoff wires the handoff to a publisher with the given retry budget.
func NewHandoff(publisher messaging.Publisher, retries int, baseDelay time.Duration) *Handoff {
	if retries <= 0 {
		retries = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &Handoff{
		publisher: publisher,
		retries:   retries,
		baseDelay: baseDelay,
		tracer:    otel.Tracer("service/evaluation"),
	}
}

// PublishEnded packages the session transcript and phase history and
// publishes one SessionEnded event. It never blocks connection teardown: the
// caller runs it on its own goroutine with a background context. On retry
// exhaustion the failure is logged and returned; the session is already
// marked ended regardless.
func (h *Handoff) PublishEnded(ctx context.Context, sess roleplay.Session) error {
	ctx, span := h.tracer.Start(ctx, "evaluation.publish_ended", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("session.status", string(sess.Status)),
	))
	defer span.End()

	event := roleplay.SessionEndedEvent{
		SessionID:    sess.ID,
		UserID:       sess.UserID,
		ScenarioID:   sess.ScenarioID,
		Status:       sess.Status,
		Turns:        sess.Turns,
		PhaseHistory: sess.PhaseHistory,
		Summary:      roleplay.Summarize(sess),
		EndedAt:      sess.LastActivityAt,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode session ended event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < h.retries; attempt++ {
		if err := h.publisher.Publish(ctx, roleplay.TopicSessionEnded, payload); err == nil {
			log.Printf("[evaluation] published session ended session=%s turns=%d", sess.ID, len(sess.Turns))
			return nil
		} else {
			lastErr = err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == h.retries-1 {
			break
		}
		select {
		case <-time.After(h.baseDelay << attempt):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Printf("[evaluation] publish failed after %d attempts session=%s: %v", h.retries, sess.ID, lastErr)
	return fmt.Errorf("publish session ended event: %w", lastErr)
}
