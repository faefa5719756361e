package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/anthropic"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/api"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/config"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/extractor"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/hermes"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/metrics"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/negotiation"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/sessions"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/store"
)

const usage = "usage: negotiator [serve|chat]"

// archive is what both store backends provide.
type archive interface {
	negotiation.Archive
	api.ArchiveReader
}

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	mode := "serve"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	if mode != "serve" && mode != "chat" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	// Keep stdout clean for the conversation in chat mode.
	if mode == "chat" {
		setupLogging(cfg.LogLevel, os.Stderr)
	} else {
		setupLogging(cfg.LogLevel, os.Stdout)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("negotiator starting", "mode", mode, "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Anthropic client
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	llm.SetTemperature(cfg.Temperature)
	gen := negotiation.NewLLMGenerator(llm, cfg.MaxTokens, negotiation.DefaultBreakerConfig(), slog.Default())
	slog.Info("anthropic client ready", "model", llm.Model())

	// Archive (optional)
	arch, closeArchive, err := openArchive(ctx, cfg)
	if err != nil {
		slog.Error("failed to open archive", "error", err)
		os.Exit(1)
	}
	defer closeArchive()

	// NATS/Hermes (optional)
	var hermesClient *hermes.Client
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, negotiation events will not be published")
	}

	m := metrics.New("negotiator")

	opts := negotiation.Options{
		Extractor:  extractor.New(cfg.ExtractorRules()),
		Policy:     cfg.Policy(),
		Acceptance: negotiation.NewAcceptanceMatcher(cfg.AcceptKeywords),
		Generator:  gen,
		Metrics:    m,
		Timeout:    cfg.GeneratorTimeout,
		Logger:     slog.Default(),
	}
	if hermesClient != nil {
		opts.Publisher = hermesClient
	}
	if arch != nil {
		opts.Archive = arch
	}
	orch := negotiation.New(opts)

	if mode == "chat" {
		if err := runChat(ctx, orch, os.Stdin, os.Stdout); err != nil {
			slog.Error("chat session failed", "error", err)
			os.Exit(1)
		}
		return
	}

	registry := sessions.New(cfg.SessionCacheSize, cfg.SessionTTL, slog.Default(), m)

	if hermesClient != nil {
		if err := hermesClient.Subscribe(hermes.SubjectSessionEnd, registry.HandleSessionEnd); err != nil {
			slog.Error("failed to subscribe to session end events", "error", err)
			os.Exit(1)
		}
	}

	// HTTP API
	srvOpts := api.Options{
		Port:         cfg.Port,
		CORSOrigins:  cfg.CORSOrigins,
		Sessions:     registry,
		Orchestrator: orch,
		Metrics:      m,
		Logger:       slog.Default(),
	}
	if arch != nil {
		srvOpts.Archive = arch
	}
	srv := api.NewServer(srvOpts)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	slog.Info("negotiator ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	cancel()
	slog.Info("negotiator stopped")
}

// openArchive picks Postgres when DATABASE_URL is set, then SQLite, then
// nothing. The returned close func is always safe to call.
func openArchive(ctx context.Context, cfg config.Config) (archive, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, func() {}, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, func() {}, err
		}
		slog.Info("database connected", "backend", "postgres")
		return db, db.Close, nil

	case cfg.SQLitePath != "":
		db, err := store.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, func() {}, err
		}
		slog.Info("database connected", "backend", "sqlite", "path", cfg.SQLitePath)
		return db, func() {
			if err := db.Close(); err != nil {
				slog.Warn("failed to close sqlite archive", "error", err)
			}
		}, nil

	default:
		slog.Warn("no archive configured, turns are kept in memory only")
		return nil, func() {}, nil
	}
}

func setupLogging(level string, out io.Writer) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
