// Package bootstrap wires the engine, the taxonomy and the ingest pipeline
// from environment variables. Shared by the server and the backfill CLI.
package bootstrap

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-kit/llm"

	"github.com/anatolykoptev/go_podqa/internal/engine"
	"github.com/anatolykoptev/go_podqa/internal/engine/qa"
	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
	"github.com/anatolykoptev/go_podqa/internal/ingest"
	"github.com/anatolykoptev/go_podqa/internal/store"
)

// InitLogging installs the default slog handler from LOG_LEVEL and LOG_FORMAT.
func InitLogging() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(env.Str("LOG_LEVEL", "info"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(env.Str("LOG_FORMAT", "text"), "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// InitEngine configures the engine and the response cache.
func InitEngine() {
	c := engine.Config{
		LLMAPIKey:             firstNonEmpty(env.Str("LLM_API_KEY", ""), env.Str("GEMINI_API_KEY", "")),
		LLMAPIKeyFallbacks:    env.List("LLM_API_KEY_FALLBACKS", ""),
		LLMAPIBase:            env.Str("LLM_API_BASE", "https://generativelanguage.googleapis.com/v1beta/openai"),
		LLMModel:              env.Str("LLM_MODEL", "gemini-2.5-flash"),
		LLMTemperature:        env.Float("LLM_TEMPERATURE", 0.1),
		LLMMaxTokens:          env.Int("LLM_MAX_TOKENS", 1024),
		YouTubeAPIKey:         firstNonEmpty(env.Str("YOUTUBE_API_KEY", ""), env.Str("GOOGLE_API_KEY", "")),
		YouTubeAPIKeyFallback: env.Str("YOUTUBE_API_KEY_FALLBACK", ""),
		TranscriptLangs:       env.List("TRANSCRIPT_LANGS", "en"),
		AnswerPreviewLength:   env.Int("ANSWER_PREVIEW_LENGTH", engine.DefaultAnswerPreviewLength),
		ClassifySnippetChars:  env.Int("CLASSIFY_SNIPPET_CHARS", engine.DefaultClassifySnippetChars),
		CacheMaxEntries:       env.Int("CACHE_MAX_ENTRIES", 1000),
		CacheCleanupInterval:  env.Duration("CACHE_CLEANUP_INTERVAL", 300*time.Second),
		HTTPClient: &http.Client{
			Timeout: env.Duration("FETCH_TIMEOUT", 15*time.Second),
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}

	if c.LLMAPIKey != "" {
		c.LLMClient = llm.NewClient(c.LLMAPIBase, c.LLMAPIKey, c.LLMModel,
			llm.WithFallbackKeys(c.LLMAPIKeyFallbacks),
			llm.WithMaxTokens(c.LLMMaxTokens),
			llm.WithTemperature(c.LLMTemperature),
			llm.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
		)
	}

	engine.Init(c)

	cacheTTL := env.Duration("CACHE_TTL", 5*time.Minute)
	engine.InitCache(env.Str("REDIS_URL", ""), cacheTTL, c.CacheMaxEntries, c.CacheCleanupInterval)
}

// LoadTaxonomy reads CATEGORIES_FILE, falling back to the built-in taxonomy.
func LoadTaxonomy() qa.Taxonomy {
	tax, err := qa.LoadTaxonomy(env.Str("CATEGORIES_FILE", "categories.json"))
	if err != nil {
		slog.Warn("taxonomy invalid, using built-in categories", slog.Any("error", err))
		return qa.DefaultTaxonomy()
	}
	return tax
}

// NewPipeline builds the ingest pipeline over db. Classification is wired
// only when an LLM key is configured.
func NewPipeline(db *store.DB, tax qa.Taxonomy) *ingest.Pipeline {
	yt := youtube.NewClient()
	p := &ingest.Pipeline{
		Metadata:      yt,
		Transcripts:   yt,
		Store:         db,
		PreviewLength: engine.Cfg.AnswerPreviewLength,
	}
	if engine.LLMEnabled() {
		p.Classifier = qa.NewClassifier(tax, engine.Cfg.ClassifySnippetChars)
		slog.Info("classifier enabled", slog.String("model", engine.Cfg.LLMModel), slog.Int("categories", len(tax)))
	} else {
		slog.Info("classifier disabled: no LLM API key")
	}
	return p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
