package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	YouTubeMetadataRequests   atomic.Int64
	YouTubeTranscriptRequests atomic.Int64
	YouTubePlaylistRequests   atomic.Int64
	LLMCalls                  atomic.Int64
	LLMErrors                 atomic.Int64
	JobsEnqueued              atomic.Int64
	JobsClaimed               atomic.Int64
	JobsDone                  atomic.Int64
	JobsRetried               atomic.Int64
	JobsFailed                atomic.Int64
	QAItemsSaved              atomic.Int64
}

var metricKeys = []string{
	"youtube_metadata_requests", "youtube_transcript_requests", "youtube_playlist_requests",
	"llm_calls", "llm_errors",
	"jobs_enqueued", "jobs_claimed", "jobs_done", "jobs_retried", "jobs_failed",
	"qa_items_saved",
	"cache_hits", "cache_misses",
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"youtube_metadata_requests":   metrics.YouTubeMetadataRequests.Load(),
		"youtube_transcript_requests": metrics.YouTubeTranscriptRequests.Load(),
		"youtube_playlist_requests":   metrics.YouTubePlaylistRequests.Load(),
		"llm_calls":                   metrics.LLMCalls.Load(),
		"llm_errors":                  metrics.LLMErrors.Load(),
		"jobs_enqueued":               metrics.JobsEnqueued.Load(),
		"jobs_claimed":                metrics.JobsClaimed.Load(),
		"jobs_done":                   metrics.JobsDone.Load(),
		"jobs_retried":                metrics.JobsRetried.Load(),
		"jobs_failed":                 metrics.JobsFailed.Load(),
		"qa_items_saved":              metrics.QAItemsSaved.Load(),
		"cache_hits":                  hits,
		"cache_misses":                misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for the youtube sub-package.
func IncrYouTubeMetadata()   { metrics.YouTubeMetadataRequests.Add(1) }
func IncrYouTubeTranscript() { metrics.YouTubeTranscriptRequests.Add(1) }
func IncrYouTubePlaylist()   { metrics.YouTubePlaylistRequests.Add(1) }

// Incrementors for the ingest runner.
func IncrJobsEnqueued()        { metrics.JobsEnqueued.Add(1) }
func IncrJobsClaimed()         { metrics.JobsClaimed.Add(1) }
func IncrJobsDone()            { metrics.JobsDone.Add(1) }
func IncrJobsRetried()         { metrics.JobsRetried.Add(1) }
func IncrJobsFailed()          { metrics.JobsFailed.Add(1) }
func AddQAItemsSaved(n int)    { metrics.QAItemsSaved.Add(int64(n)) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, threshold time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > threshold {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
