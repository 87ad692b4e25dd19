// go_podqa: podcast Q&A archive service.
//
// Ingests YouTube episodes whose descriptions list question timestamps,
// slices the transcript into one answer per question, optionally classifies
// each item with an LLM, and serves the archive over a REST API (gin) and
// read-only MCP tools. Ingestion is driven by a Postgres job queue, fed by
// the ingest endpoints or by the optional asynq schedule.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_podqa/internal/api"
	"github.com/anatolykoptev/go_podqa/internal/bootstrap"
	"github.com/anatolykoptev/go_podqa/internal/engine"
	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
	"github.com/anatolykoptev/go_podqa/internal/ingest"
	"github.com/anatolykoptev/go_podqa/internal/qaserver"
	"github.com/anatolykoptev/go_podqa/internal/schedule"
	"github.com/anatolykoptev/go_podqa/internal/store"
)

const defaultPlaylistID = "PLczriqVOY-tll3hzb2O7jHwKaEV1kd2IJ"

var version = "dev"

func main() {
	_ = godotenv.Load()
	bootstrap.InitLogging()
	bootstrap.InitEngine()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	databaseURL := env.Str("DATABASE_URL", "")
	if databaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.Connect(ctx, databaseURL)
	if err != nil {
		slog.Error("database init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	tax := bootstrap.LoadTaxonomy()
	runner := &ingest.Runner{
		Pipeline:    bootstrap.NewPipeline(db, tax),
		Queue:       db,
		Playlist:    youtube.NewClient(),
		PlaylistID:  env.Str("PLAYLIST_ID", defaultPlaylistID),
		SkipIDs:     skipSet(env.List("SKIP_VIDEO_IDS", "4QpzXOyWDrE")),
		MaxAttempts: env.Int("MAX_JOB_ATTEMPTS", store.DefaultMaxAttempts),
		StaleAfter:  env.Duration("STALE_LOCK_AFTER", 30*time.Minute),
		OnIngested:  engine.CacheFlush,
	}

	apiServer := startAPI(db, runner)
	defer shutdownAPI(apiServer)

	if sched := startSchedule(runner); sched != nil {
		defer sched.Shutdown()
	}

	mcpPort := env.Str("MCP_PORT", "8892")
	if mcpPort == "" || mcpPort == "off" {
		slog.Info("mcp server disabled")
		<-ctx.Done()
		return
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_podqa",
		Version: version,
	}, nil)
	qaserver.RegisterTools(server, db, tax)
	slog.Info("tools registered", slog.Int("count", 6))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_podqa",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 120 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("mcp server failed", slog.Any("error", err))
	}
}

func startAPI(db *store.DB, runner *ingest.Runner) *http.Server {
	port := env.Str("API_PORT", "8000")
	router := api.NewRouter(api.Config{
		Name:           "go_podqa",
		Version:        version,
		AdminAPIKey:    env.Str("ADMIN_API_KEY", ""),
		CronSecret:     env.Str("CRON_SECRET", ""),
		CORSOrigins:    env.List("CORS_ORIGINS", ""),
		RateLimitRPS:   env.Float("RATE_LIMIT_RPS", 10),
		RateLimitBurst: env.Int("RATE_LIMIT_BURST", 20),
		BatchSize:      env.Int("BATCH_SIZE", ingest.DefaultBatchSize),
		Debug:          env.Str("LOG_LEVEL", "info") == "debug",
	}, db, runner)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Ingest runs hold the connection for the whole batch.
		WriteTimeout: env.Duration("API_WRITE_TIMEOUT", 15*time.Minute),
	}
	go func() {
		slog.Info("starting api", slog.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()
	return srv
}

func shutdownAPI(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("api shutdown", slog.Any("error", err))
	}
}

// startSchedule runs the asynq schedule when REDIS_URL and at least one
// spec are set.
func startSchedule(runner *ingest.Runner) *schedule.Scheduler {
	cfg := schedule.Config{
		RedisURL:           env.Str("REDIS_URL", ""),
		CheckSpec:          env.Str("SCHEDULE_CHECK", ""),
		BatchSpec:          env.Str("SCHEDULE_BATCH", ""),
		BatchSize:          env.Int("BATCH_SIZE", ingest.DefaultBatchSize),
		SkipClassification: envBool("SCHEDULE_SKIP_CLASSIFICATION"),
		TaskTimeout:        env.Duration("SCHEDULE_TASK_TIMEOUT", 30*time.Minute),
	}
	if cfg.RedisURL == "" || (cfg.CheckSpec == "" && cfg.BatchSpec == "") {
		return nil
	}
	sched, err := schedule.New(cfg, runner)
	if err != nil {
		slog.Warn("schedule init failed", slog.Any("error", err))
		return nil
	}
	if err := sched.Start(); err != nil {
		slog.Warn("schedule start failed", slog.Any("error", err))
		return nil
	}
	slog.Info("schedule started",
		slog.String("check", cfg.CheckSpec),
		slog.String("batch", cfg.BatchSpec))
	return sched
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(env.Str(key, "false"))
	return b
}

func skipSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
