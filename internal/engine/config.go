package engine

import (
	"net/http"
	"time"

	"github.com/anatolykoptev/go-kit/llm"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	LLMAPIKey          string
	LLMAPIKeyFallbacks []string
	LLMAPIBase         string
	LLMModel           string
	LLMTemperature     float64
	LLMMaxTokens       int
	LLMClient          *llm.Client // nil = classification disabled

	YouTubeAPIKey         string
	YouTubeAPIKeyFallback string
	TranscriptLangs       []string

	AnswerPreviewLength  int
	ClassifySnippetChars int

	CacheMaxEntries      int
	CacheCleanupInterval time.Duration
	HTTPClient           *http.Client
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (youtube, qa).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
// Zero-valued limits fall back to their defaults.
func Init(c Config) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if c.AnswerPreviewLength <= 0 {
		c.AnswerPreviewLength = DefaultAnswerPreviewLength
	}
	if c.ClassifySnippetChars <= 0 {
		c.ClassifySnippetChars = DefaultClassifySnippetChars
	}
	if len(c.TranscriptLangs) == 0 {
		c.TranscriptLangs = []string{"en"}
	}
	cfg = c
	Cfg = &cfg
}

// Defaults shared by the ingest pipeline and the CLI.
const (
	DefaultAnswerPreviewLength  = 500
	DefaultClassifySnippetChars = 4000
)

// LLMEnabled reports whether an LLM client with a key is configured.
func LLMEnabled() bool {
	return cfg.LLMClient != nil && cfg.LLMAPIKey != ""
}
