package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dealdojo/backend/internal/config"
	"github.com/dealdojo/backend/internal/handler"
	"github.com/dealdojo/backend/internal/messaging"
	modelroleplay "github.com/dealdojo/backend/internal/model/roleplay"
	"github.com/dealdojo/backend/internal/model/scenario"
	"github.com/dealdojo/backend/internal/observability"
	"github.com/dealdojo/backend/internal/service/ai"
	"github.com/dealdojo/backend/internal/service/evaluation"
	"github.com/dealdojo/backend/internal/service/roleplay"
	"github.com/dealdojo/backend/internal/service/session"
	"github.com/dealdojo/backend/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("warning: tracing shutdown: %v", err)
		}
	}()

	scenarioStore := scenario.NewMemoryStore(scenario.Seed())
	recordStore := storage.NewMemoryStore(scenarioStore)
	sessionStore := session.NewStore(recordStore)

	generator, err := ai.NewGenerator(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("failed to initialize buyer generator: %v", err)
	}
	log.Printf("buyer generator initialized provider=%s", cfg.AI.Provider)

	bus := messaging.NewBus()
	defer bus.Close()

	// Local consumer standing in for the external evaluation pipeline; it
	// logs each handoff so sessions are visible end to end in development.
	go func() {
		for payload := range bus.Subscribe(modelroleplay.TopicSessionEnded) {
			log.Printf("[evaluation] session ended event received (%d bytes)", len(payload))
		}
	}()

	handoff := evaluation.NewHandoff(bus, cfg.Engine.PublishRetries, cfg.Engine.PublishBaseDelay)
	svc := roleplay.New(sessionStore, scenarioStore, generator, handoff, cfg.Engine)
	svc.StartReaper(ctx)

	router := handler.NewRouter(scenarioStore, svc, cfg.Engine)

	startServer(ctx, cfg.Server, router, sessionStore)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, store *session.Store) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("DealDojo engine listening on %s", addr)
	if err := runServer(ctx, srv, store); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server, store *session.Store) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store.Drain(shutdownCtx)
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
