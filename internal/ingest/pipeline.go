// Package ingest turns a YouTube video into stored Q&A items and drives the
// job queue that feeds it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_podqa/internal/engine"
	"github.com/anatolykoptev/go_podqa/internal/engine/qa"
	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
	"github.com/anatolykoptev/go_podqa/internal/store"
)

// slowVideoThreshold is how long one video may take before it is logged as slow.
const slowVideoThreshold = 2 * time.Minute

// MetadataFetcher loads video details.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, videoID string) (*youtube.Metadata, error)
}

// TranscriptFetcher loads a timed transcript.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, videoID string) ([]youtube.Segment, error)
}

// PlaylistLister lists the videos of a playlist.
type PlaylistLister interface {
	PlaylistVideoIDs(ctx context.Context, playlistID string) ([]string, error)
}

// Classifier assigns a category, subcategory and tags to one Q&A item.
type Classifier interface {
	Classify(ctx context.Context, question, answer string) (*qa.Classification, error)
}

// ResultStore persists pipeline output.
type ResultStore interface {
	SaveVideoResult(ctx context.Context, res store.VideoResult) (uuid.UUID, error)
	GetTranscript(ctx context.Context, youtubeID string) (*store.Transcript, error)
}

// Options tune one Process call.
type Options struct {
	SkipClassification bool
	// RefreshTranscript fetches the transcript even when one is stored.
	RefreshTranscript bool
	// Description, when set, is parsed for timestamps instead of the video
	// description and appended to the stored description.
	Description string
	// DryRun runs every step except the final save.
	DryRun bool
}

// ProcessResult summarizes one Process call.
type ProcessResult struct {
	YouTubeID      string   `json:"youtube_id"`
	Title          string   `json:"title,omitempty"`
	QuestionsFound int      `json:"questions_found"`
	QuestionsSaved int      `json:"questions_saved"`
	Warnings       []string `json:"warnings,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Pipeline processes one video end to end.
type Pipeline struct {
	Metadata    MetadataFetcher
	Transcripts TranscriptFetcher
	// Classifier is optional; nil skips classification.
	Classifier    Classifier
	Store         ResultStore
	PreviewLength int
}

// Process fetches metadata, parses question timestamps, loads the
// transcript, slices answers, classifies them and saves the result.
// The returned ProcessResult is never nil; on failure its Error is set and
// the error is returned as well. Use IsPermanent to decide on retries.
func (p *Pipeline) Process(ctx context.Context, input string, opts Options) (*ProcessResult, error) {
	start := time.Now()
	res := &ProcessResult{YouTubeID: input}

	err := engine.TrackOperation(ctx, "ingest:"+input, slowVideoThreshold, func(ctx context.Context) error {
		return p.process(ctx, input, opts, res)
	})
	if err != nil {
		res.Error = err.Error()
		slog.Warn("ingest: process failed",
			slog.String("video", res.YouTubeID),
			slog.Bool("permanent", IsPermanent(err)),
			slog.Any("error", err))
		return res, err
	}

	slog.Info("ingest: video processed",
		slog.String("video", res.YouTubeID),
		slog.String("title", res.Title),
		slog.Int("found", res.QuestionsFound),
		slog.Int("saved", res.QuestionsSaved),
		slog.Int("warnings", len(res.Warnings)),
		slog.Bool("dry_run", opts.DryRun),
		slog.Duration("took", time.Since(start)))
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, input string, opts Options, res *ProcessResult) error {
	id, err := youtube.VideoID(input)
	if err != nil {
		return err
	}
	res.YouTubeID = id

	md, err := p.Metadata.FetchMetadata(ctx, id)
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	res.Title = md.Title

	source := md.Description
	if opts.Description != "" {
		source = opts.Description
	}
	questions := qa.ParseDescriptionTimestamps(source)
	res.QuestionsFound = len(questions)
	if len(questions) == 0 {
		if opts.Description != "" {
			return fmt.Errorf("%w in manual timestamps for %s", ErrNoTimestamps, id)
		}
		res.Warnings = append(res.Warnings, "no timestamps found in description")
	}

	segments, err := p.transcript(ctx, id, opts.RefreshTranscript)
	if err != nil {
		return fmt.Errorf("transcript: %w", err)
	}

	matches := qa.SliceAnswers(questions, segments, p.PreviewLength)
	end := qa.TranscriptEnd(segments)
	items := make([]store.NewQAItem, 0, len(matches))
	for _, m := range matches {
		if float64(m.Seconds) > end {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("dropped %q at %s: past end of transcript", m.Question, m.Text))
			continue
		}
		items = append(items, store.NewQAItem{
			TimestampText:    m.Text,
			TimestampSeconds: m.Seconds,
			Question:         m.Question,
			Answer:           m.Answer,
			AnswerPreview:    m.Preview,
		})
	}

	if !opts.SkipClassification && p.Classifier != nil {
		if err := p.classify(ctx, items, res); err != nil {
			return err
		}
	}

	if opts.DryRun {
		res.QuestionsSaved = len(items)
		return nil
	}

	stored := *md
	stored.VideoID = id
	if opts.Description != "" {
		stored.Description = md.Description + "\n\n" + opts.Description
	}
	if _, err := p.Store.SaveVideoResult(ctx, store.VideoResult{
		Metadata: stored,
		Segments: segments,
		Items:    items,
	}); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	res.QuestionsSaved = len(items)
	engine.AddQAItemsSaved(len(items))
	return nil
}

// transcript returns the stored transcript unless refresh is set or none is stored.
func (p *Pipeline) transcript(ctx context.Context, id string, refresh bool) ([]youtube.Segment, error) {
	if !refresh {
		t, err := p.Store.GetTranscript(ctx, id)
		switch {
		case err == nil && len(t.Segments) > 0:
			slog.Debug("ingest: using stored transcript", slog.String("video", id), slog.Int("segments", len(t.Segments)))
			return t.Segments, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			slog.Warn("ingest: stored transcript unreadable, refetching", slog.String("video", id), slog.Any("error", err))
		}
	}
	return p.Transcripts.FetchTranscript(ctx, id)
}

// classify fills classifications in place. A failed item stays unclassified
// with a warning so its stored classification is kept.
func (p *Pipeline) classify(ctx context.Context, items []store.NewQAItem, res *ProcessResult) error {
	for i := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		it := &items[i]
		c, err := p.Classifier.Classify(ctx, it.Question, it.Answer)
		if err != nil {
			if errors.Is(err, engine.ErrLLMDisabled) {
				return nil
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("classify %q: %v", it.Question, err))
			continue
		}
		it.Classified = true
		it.Category = c.Category
		it.Subcategory = c.Subcategory
		it.Tags = c.Tags
	}
	return nil
}
