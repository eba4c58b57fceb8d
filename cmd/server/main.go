// Command server runs the portfolio AI chat backend.
//
// Startup order: environment → config → logging → tracing → database →
// upstream clients → pipeline → HTTP server. Shutdown drains in-flight
// requests before flushing the trace exporter.
//
// @title        Portfolio AI Backend API
// @version      1.0
// @description  AI chat backend for portfolio management: guarded tool-assisted chat, thread history, and incident review.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/averla/portfolio-ai-backend/docs"
	"github.com/averla/portfolio-ai-backend/internal/config"
	"github.com/averla/portfolio-ai-backend/internal/guardrails"
	httpapi "github.com/averla/portfolio-ai-backend/internal/http"
	"github.com/averla/portfolio-ai-backend/internal/llm"
	"github.com/averla/portfolio-ai-backend/internal/market"
	"github.com/averla/portfolio-ai-backend/internal/memory"
	"github.com/averla/portfolio-ai-backend/internal/observability"
	"github.com/averla/portfolio-ai-backend/internal/orchestrator"
	"github.com/averla/portfolio-ai-backend/internal/portfolio"
	"github.com/averla/portfolio-ai-backend/internal/repo"
	"github.com/averla/portfolio-ai-backend/internal/security"
	"github.com/averla/portfolio-ai-backend/internal/sysutil"
	"github.com/averla/portfolio-ai-backend/internal/tools"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	setupLogging(cfg)

	ctx := context.Background()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	// Upstreams
	chat := llm.NewClient(cfg.ChatModel)
	marketAPI := market.NewClient(cfg.Market)

	// Tool registry: portfolio reads plus market intelligence.
	provider := portfolio.NewDBProvider(db)
	registry := tools.NewRegistry(
		tools.NewHoldingsTool(provider),
		tools.NewPerformanceTool(provider),
		tools.NewComparisonTool(provider),
		tools.NewMarketContextTool(marketAPI),
		tools.NewNewsSearchTool(marketAPI),
		tools.NewSentimentTool(marketAPI),
	)

	mem := memory.NewManager(db, cfg.Memory, memory.NewModelSummarizer(chat))

	pipeline := orchestrator.New(
		db,
		chat,
		registry,
		mem,
		guardrails.NewInputGuardrail(cfg.MaxQueryLen),
		guardrails.NewOutputGuardrail(),
		security.NewSink(db),
		cfg.ChatModel.MaxToolRound,
		cfg.DefaultTitle,
	)

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, pipeline, registry, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	// Retention job: purge inactive threads past the cutoff once a day.
	purgeCtx, stopPurge := context.WithCancel(ctx)
	go runRetentionLoop(purgeCtx, mem)

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")

	stopPurge()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("trace exporter shutdown failed")
	}
	log.Info().Msg("server stopped")
}

// setupLogging configures the global zerolog logger from config.
func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// runRetentionLoop purges expired conversation data daily until ctx is
// canceled. The first pass runs shortly after startup so restarts do not
// postpone retention indefinitely.
func runRetentionLoop(ctx context.Context, mem *memory.Manager) {
	timer := time.NewTimer(time.Minute)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		n, err := mem.PurgeExpired(ctx, time.Now())
		if err != nil {
			log.Error().Err(err).Msg("retention purge failed")
		} else if n > 0 {
			log.Info().Int64("threads", n).Msg("retention purge removed inactive threads")
		}

		timer.Reset(24 * time.Hour)
	}
}
