// Package ai produces the buyer persona's turns. The text-generation
// capability sits behind the Provider interface; which provider plays the
// buyer is configuration, not inheritance.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dealdojo/backend/internal/analysis/phase"
	"github.com/dealdojo/backend/internal/config"
	"github.com/dealdojo/backend/internal/model/roleplay"
	"github.com/dealdojo/backend/internal/model/scenario"
)

// ErrGenerationUnavailable reports that the provider exhausted its retry
// budget. The protocol layer turns it into an error frame; the session stays
// active so the client may retry.
var ErrGenerationUnavailable = errors.New("generation capability unavailable")

// Prompt is the provider-agnostic input for one buyer turn.
type Prompt struct {
	System  string
	History []*schema.Message
	Query   string
	Phase   phase.Phase
}

// Provider is the opaque text-generation capability.
type Provider interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Streamer is implemented by providers that can emit incremental fragments.
type Streamer interface {
	Stream(ctx context.Context, p Prompt) (*schema.StreamReader[*schema.Message], error)
}

// Generator wraps a Provider with the hard per-call timeout and the bounded
// retry policy (exponential backoff with jitter).
type Generator struct {
	provider Provider
	cfg      config.AIConfig
	tracer   trace.Tracer
}

// NewGenerator builds the generator for the configured provider.
func NewGenerator(ctx context.Context, cfg config.AIConfig) (*Generator, error) {
	var (
		provider Provider
		err      error
	)
	switch cfg.Provider {
	case config.ProviderArk:
		provider, err = newArkProvider(ctx, cfg)
	case config.ProviderOpenAI:
		provider, err = newOpenAIProvider(cfg)
	case config.ProviderMock:
		provider = newMockProvider()
	default:
		err = fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build %s provider: %w", cfg.Provider, err)
	}

	return &Generator{
		provider: provider,
		cfg:      cfg,
		tracer:   otel.Tracer("service/ai"),
	}, nil
}

// NewGeneratorWithProvider wires a caller-supplied provider, used by tests
// and by deployments that inject a custom capability.
func NewGeneratorWithProvider(provider Provider, cfg config.AIConfig) *Generator {
	return &Generator{
		provider: provider,
		cfg:      cfg,
		tracer:   otel.Tracer("service/ai"),
	}
}

// NextBuyerTurn produces the buyer's next utterance for the target phase.
// Cancelling ctx abandons the in-flight call immediately; the caller must
// discard any partial result.
func (g *Generator) NextBuyerTurn(ctx context.Context, sc scenario.Scenario, target phase.Phase, history []roleplay.Turn, repUtterance string) (string, error) {
	ctx, span := g.tracer.Start(ctx, "ai.next_buyer_turn", trace.WithAttributes(
		attribute.String("ai.provider", g.provider.Name()),
		attribute.String("session.phase", string(target)),
	))
	defer span.End()

	p := BuildPrompt(sc, target, history, repUtterance, g.cfg.HistoryLimit)

	retries := g.cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	baseDelay := g.cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		text, err := g.callOnce(ctx, p)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			// Client went away or the session ended: abandon, don't retry.
			return "", ctx.Err()
		}
		lastErr = err
		log.Printf("[ai] generation attempt %d/%d failed: %v", attempt+1, retries, err)

		if attempt == retries-1 {
			break
		}
		delay := backoff(baseDelay, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %v", ErrGenerationUnavailable, retries, lastErr)
}

func (g *Generator) callOnce(ctx context.Context, p Prompt) (string, error) {
	timeout := g.cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if streamer, ok := g.provider.(Streamer); ok && g.cfg.StreamResponse {
		return g.collectStream(callCtx, streamer, p)
	}
	return g.provider.Generate(callCtx, p)
}

// collectStream drains the provider's fragment stream into one utterance.
// The wire protocol carries whole buyer turns, so fragments are concatenated
// here rather than forwarded.
func (g *Generator) collectStream(ctx context.Context, streamer Streamer, p Prompt) (string, error) {
	stream, err := streamer.Stream(ctx, p)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var chunks []*schema.Message
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", fmt.Errorf("stream recv failed: %w", recvErr)
		}
		if chunk != nil {
			chunks = append(chunks, chunk)
		}
	}

	merged, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", fmt.Errorf("concat stream chunks failed: %w", err)
	}
	return merged.Content, nil
}

func backoff(base time.Duration, attempt int) time.Duration {
	delay := base << attempt
	if quarter := int64(base) / 4; quarter > 0 {
		delay += time.Duration(rand.Int63n(quarter))
	}
	return delay
}
