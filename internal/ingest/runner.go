package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_podqa/internal/engine"
	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
	"github.com/anatolykoptev/go_podqa/internal/store"
)

// DefaultBatchSize is the number of jobs RunBatch processes when none is given.
const DefaultBatchSize = 5

// ErrVideoNotFound is returned by Reprocess for videos that were never ingested.
var ErrVideoNotFound = errors.New("ingest: video not found")

// Queue is the job queue and video bookkeeping the runner needs.
type Queue interface {
	EnqueueJob(ctx context.Context, youtubeID string) (bool, error)
	ClaimJob(ctx context.Context) (*store.Job, error)
	CompleteJob(ctx context.Context, jobID uuid.UUID) error
	FailJob(ctx context.Context, jobID uuid.UUID, reason string, permanent bool, maxAttempts int) (string, error)
	RecoverStaleJobs(ctx context.Context, olderThan time.Duration, maxAttempts int) (int64, error)
	QueueStats(ctx context.Context) (store.QueueStats, error)
	ProcessedVideoIDs(ctx context.Context) (map[string]bool, error)
	VideoStatus(ctx context.Context, youtubeID string) (string, error)
}

// RunOptions tune queue-driven processing.
type RunOptions struct {
	SkipClassification bool
}

// RunResult reports one processed job.
type RunResult struct {
	Processed      bool   `json:"processed"`
	YouTubeID      string `json:"youtube_id,omitempty"`
	Title          string `json:"title,omitempty"`
	QuestionsSaved int    `json:"questions_saved"`
	JobStatus      string `json:"job_status,omitempty"`
	Error          string `json:"error,omitempty"`
	Message        string `json:"message"`
}

// CheckResult reports a playlist scan.
type CheckResult struct {
	NewVideosFound int      `json:"new_videos_found"`
	VideoIDs       []string `json:"video_ids"`
	Message        string   `json:"message"`
}

// Runner connects the playlist, the job queue and the pipeline.
type Runner struct {
	Pipeline   *Pipeline
	Queue      Queue
	Playlist   PlaylistLister
	PlaylistID string
	// SkipIDs are never enqueued.
	SkipIDs     map[string]bool
	MaxAttempts int
	// StaleAfter enables stale lock recovery before each claim when positive.
	StaleAfter time.Duration
	// OnIngested runs after a video was saved, e.g. to drop cached responses.
	OnIngested func(ctx context.Context)
}

func (r *Runner) maxAttempts() int {
	if r.MaxAttempts <= 0 {
		return store.DefaultMaxAttempts
	}
	return r.MaxAttempts
}

func (r *Runner) ingested(ctx context.Context) {
	if r.OnIngested != nil {
		r.OnIngested(ctx)
	}
}

// CheckPlaylist enqueues every playlist video that is not processed, not
// skipped and has no live job. Previously failed videos are enqueued again.
func (r *Runner) CheckPlaylist(ctx context.Context) (*CheckResult, error) {
	ids, err := r.Playlist.PlaylistVideoIDs(ctx, r.PlaylistID)
	if err != nil {
		return nil, fmt.Errorf("check playlist: %w", err)
	}
	if len(ids) == 0 {
		return &CheckResult{VideoIDs: []string{}, Message: "No videos found in playlist"}, nil
	}

	processed, err := r.Queue.ProcessedVideoIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("check playlist: %w", err)
	}

	enqueued := []string{}
	for _, id := range ids {
		if r.SkipIDs[id] || processed[id] {
			continue
		}
		ok, err := r.Queue.EnqueueJob(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("check playlist: %w", err)
		}
		if ok {
			engine.IncrJobsEnqueued()
			enqueued = append(enqueued, id)
		}
	}

	slog.Info("ingest: playlist checked",
		slog.String("playlist", r.PlaylistID),
		slog.Int("videos", len(ids)),
		slog.Int("enqueued", len(enqueued)))
	return &CheckResult{
		NewVideosFound: len(enqueued),
		VideoIDs:       enqueued,
		Message:        fmt.Sprintf("Enqueued %d video(s) for processing (new or failed)", len(enqueued)),
	}, nil
}

// Enqueue adds one video by URL or ID. Reports whether a job was created.
func (r *Runner) Enqueue(ctx context.Context, input string) (string, bool, error) {
	id, err := youtube.VideoID(input)
	if err != nil {
		return "", false, err
	}
	ok, err := r.Queue.EnqueueJob(ctx, id)
	if err != nil {
		return id, false, err
	}
	if ok {
		engine.IncrJobsEnqueued()
	}
	return id, ok, nil
}

// RunOne claims and processes a single job. An empty queue is not an error;
// the result then has Processed false.
func (r *Runner) RunOne(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if r.StaleAfter > 0 {
		n, err := r.Queue.RecoverStaleJobs(ctx, r.StaleAfter, r.maxAttempts())
		if err != nil {
			slog.Warn("ingest: stale job recovery failed", slog.Any("error", err))
		} else if n > 0 {
			slog.Info("ingest: recovered stale jobs", slog.Int64("count", n))
		}
	}

	job, err := r.Queue.ClaimJob(ctx)
	if errors.Is(err, store.ErrNoJobs) {
		return &RunResult{Message: "No pending jobs in queue"}, nil
	}
	if err != nil {
		return nil, err
	}
	engine.IncrJobsClaimed()

	res, perr := r.Pipeline.Process(ctx, job.YouTubeID, Options{SkipClassification: opts.SkipClassification})
	out := &RunResult{
		Processed:      true,
		YouTubeID:      job.YouTubeID,
		Title:          res.Title,
		QuestionsSaved: res.QuestionsSaved,
	}

	// Record the outcome even when the caller's context is done.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if perr == nil {
		if err := r.Queue.CompleteJob(bg, job.ID); err != nil {
			return nil, fmt.Errorf("complete job %s: %w", job.ID, err)
		}
		engine.IncrJobsDone()
		r.ingested(bg)
		out.JobStatus = store.JobDone
		out.Message = "Success"
		return out, nil
	}

	status, err := r.Queue.FailJob(bg, job.ID, perr.Error(), IsPermanent(perr), r.maxAttempts())
	if err != nil {
		return nil, fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	if status == store.JobFailed {
		engine.IncrJobsFailed()
	} else {
		engine.IncrJobsRetried()
	}
	out.JobStatus = status
	out.Error = perr.Error()
	out.Message = "Failed: " + perr.Error()
	return out, nil
}

// RunBatch runs up to maxJobs jobs, stopping early when the queue is empty or
// the queue itself errors.
func (r *Runner) RunBatch(ctx context.Context, maxJobs int, opts RunOptions) []RunResult {
	if maxJobs <= 0 {
		maxJobs = DefaultBatchSize
	}
	results := []RunResult{}
	for range maxJobs {
		if ctx.Err() != nil {
			break
		}
		res, err := r.RunOne(ctx, opts)
		if err != nil {
			slog.Error("ingest: batch stopped", slog.Any("error", err))
			results = append(results, RunResult{Error: err.Error(), Message: "Error: " + err.Error()})
			break
		}
		if !res.Processed {
			break
		}
		results = append(results, *res)
	}
	return results
}

// Reprocess re-fetches the transcript of an ingested video and rebuilds its
// Q&A items. The job queue is not involved.
func (r *Runner) Reprocess(ctx context.Context, input string, opts RunOptions) (*RunResult, error) {
	id, err := youtube.VideoID(input)
	if err != nil {
		return nil, err
	}
	if _, err := r.Queue.VideoStatus(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, id)
		}
		return nil, err
	}

	res, perr := r.Pipeline.Process(ctx, id, Options{
		SkipClassification: opts.SkipClassification,
		RefreshTranscript:  true,
	})
	out := &RunResult{
		Processed:      true,
		YouTubeID:      id,
		Title:          res.Title,
		QuestionsSaved: res.QuestionsSaved,
	}
	if perr != nil {
		out.Error = perr.Error()
		out.Message = "Failed: " + perr.Error()
		return out, nil
	}
	r.ingested(ctx)
	out.Message = "Reprocessed successfully"
	return out, nil
}

// QueueStats counts jobs by status.
func (r *Runner) QueueStats(ctx context.Context) (store.QueueStats, error) {
	return r.Queue.QueueStats(ctx)
}
