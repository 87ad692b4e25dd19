// Package api serves the public read API and the protected ingest API over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anatolykoptev/go_podqa/internal/ingest"
	"github.com/anatolykoptev/go_podqa/internal/store"
)

// Reader is the read side of the store.
type Reader interface {
	ListVideos(ctx context.Context, titleQuery string, limit, offset int) ([]store.Video, error)
	VideoSummaries(ctx context.Context, limit, offset int) ([]store.VideoSummary, error)
	GetVideo(ctx context.Context, youtubeID string) (*store.Video, error)
	VideoQuestions(ctx context.Context, youtubeID string, f store.QAFilter) ([]store.QAItem, error)
	SearchQuestions(ctx context.Context, f store.QAFilter) (*store.SearchResponse, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*store.QAItem, error)
	Categories(ctx context.Context) ([]string, error)
	Subcategories(ctx context.Context, category string) ([]string, error)
	Tags(ctx context.Context, limit int) ([]string, error)
	Ping(ctx context.Context) error
}

// Ingester drives ingestion.
type Ingester interface {
	CheckPlaylist(ctx context.Context) (*ingest.CheckResult, error)
	RunOne(ctx context.Context, opts ingest.RunOptions) (*ingest.RunResult, error)
	RunBatch(ctx context.Context, maxJobs int, opts ingest.RunOptions) []ingest.RunResult
	Reprocess(ctx context.Context, youtubeID string, opts ingest.RunOptions) (*ingest.RunResult, error)
	Enqueue(ctx context.Context, input string) (string, bool, error)
	QueueStats(ctx context.Context) (store.QueueStats, error)
}

// Config configures the router.
type Config struct {
	Name        string
	Version     string
	AdminAPIKey string
	CronSecret  string
	CORSOrigins []string
	// RateLimitRPS of zero disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int
	// BatchSize is the run-batch default.
	BatchSize int
	Debug     bool
}

// DefaultCORSOrigins are allowed when none are configured.
var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8000",
	"https://keithfoskey.com",
	"https://www.keithfoskey.com",
}

type handler struct {
	cfg    Config
	reader Reader
	ingest Ingester
}

// NewRouter builds the gin engine with logging, recovery, CORS and rate
// limiting on public routes.
func NewRouter(cfg Config, reader Reader, ing Ingester) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = DefaultCORSOrigins
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = ingest.DefaultBatchSize
	}
	h := &handler{cfg: cfg, reader: reader, ingest: ing}

	router := gin.New()
	router.Use(Logger())
	router.Use(gin.Recovery())
	router.Use(CORS(cfg.CORSOrigins))
	router.NoRoute(func(c *gin.Context) { abortDetail(c, http.StatusNotFound, "Not Found") })

	router.GET("/", h.root)
	router.GET("/health", h.health)
	router.GET("/metrics", h.metrics)

	v1 := router.Group("/v1")

	public := v1.Group("")
	if cfg.RateLimitRPS > 0 {
		public.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute))
	}
	{
		public.GET("/videos", h.listVideos)
		public.GET("/videos/summary", h.videoSummaries)
		public.GET("/videos/:youtube_id", h.getVideo)
		public.GET("/videos/:youtube_id/questions", h.videoQuestions)
		public.GET("/questions/search", h.searchQuestions)
		public.GET("/questions/:id", h.getQuestion)
		public.GET("/categories", h.categories)
		public.GET("/subcategories", h.subcategories)
		public.GET("/tags", h.tags)
	}

	admin := v1.Group("/ingest", RequireIngestKey(cfg.AdminAPIKey, cfg.CronSecret))
	{
		admin.GET("/check", h.checkPlaylist)
		admin.POST("/check", h.checkPlaylist)
		admin.POST("/run-one", h.runOne)
		admin.GET("/run-batch", h.runBatch)
		admin.POST("/run-batch", h.runBatch)
		admin.GET("/queue", h.queueStats)
		admin.POST("/reprocess/:youtube_id", h.reprocess)
		admin.POST("/enqueue/:youtube_id", h.enqueue)
	}

	return router
}
