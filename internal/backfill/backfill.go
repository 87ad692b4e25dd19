// Package backfill ingests existing videos from the command line: a file of
// URLs, a directory of manually inferred timestamps, or an export of
// descriptions and transcripts for offline timestamp inference.
package backfill

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
	"github.com/anatolykoptev/go_podqa/internal/ingest"
)

// Ledger sources.
const (
	SourceURLs   = "urls"
	SourceManual = "manual"
)

// Processor runs one video through the ingest pipeline.
type Processor interface {
	Process(ctx context.Context, input string, opts ingest.Options) (*ingest.ProcessResult, error)
}

// Options tune a backfill run.
type Options struct {
	// Limit of zero processes everything.
	Limit              int
	SkipClassification bool
	DryRun             bool
	// Resume skips videos the ledger records as succeeded.
	Resume bool
	// Delay is slept between videos.
	Delay time.Duration
}

// VideoError is one failed video.
type VideoError struct {
	YouTubeID string
	Error     string
}

// Stats summarizes a run.
type Stats struct {
	Total          int
	Processed      int
	Successful     int
	Failed         int
	Skipped        int
	QuestionsSaved int
	Errors         []VideoError
	Interrupted    bool
}

// PrintSummary writes the run summary under title.
func (s *Stats) PrintSummary(w io.Writer, title string) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\n%s\n%s\n", rule, title, rule)
	fmt.Fprintf(w, "Total videos:            %d\n", s.Total)
	fmt.Fprintf(w, "Processed:               %d\n", s.Processed)
	fmt.Fprintf(w, "  Successful:            %d\n", s.Successful)
	fmt.Fprintf(w, "  Failed:                %d\n", s.Failed)
	fmt.Fprintf(w, "Skipped:                 %d\n", s.Skipped)
	fmt.Fprintf(w, "Total Q&A items saved:   %d\n", s.QuestionsSaved)
	if s.Interrupted {
		fmt.Fprintln(w, "Run interrupted before finishing.")
	}
	if len(s.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s: %s\n", e.YouTubeID, e.Error)
		}
	}
}

func (s *Stats) fail(id, reason string) {
	s.Failed++
	s.Errors = append(s.Errors, VideoError{YouTubeID: id, Error: reason})
}

// Backfill processes videos one at a time.
type Backfill struct {
	Processor Processor
	// Ledger is optional; without it nothing is recorded or resumed.
	Ledger   *Ledger
	Exporter *Exporter
	Options  Options
	Out      io.Writer
}

// work is one video to process.
type work struct {
	label       string
	id          string
	description string
	err         error
}

func (b *Backfill) out() io.Writer {
	if b.Out == nil {
		return os.Stdout
	}
	return b.Out
}

// limit trims items to Options.Limit and reports it.
func limit[T any](b *Backfill, items []T) []T {
	if b.Options.Limit > 0 && b.Options.Limit < len(items) {
		fmt.Fprintf(b.out(), "Processing %d of %d videos (limit=%d)\n\n", b.Options.Limit, len(items), b.Options.Limit)
		return items[:b.Options.Limit]
	}
	fmt.Fprintf(b.out(), "Processing %d videos\n\n", len(items))
	return items
}

// RunURLs processes a list of video URLs or IDs. Invalid entries are skipped.
func (b *Backfill) RunURLs(ctx context.Context, urls []string) Stats {
	stats := Stats{Total: len(urls)}
	urls = limit(b, urls)
	items := make([]work, 0, len(urls))
	for _, u := range urls {
		id, err := youtube.VideoID(u)
		items = append(items, work{label: u, id: id, err: err})
	}
	b.run(ctx, SourceURLs, items, &stats)
	return stats
}

// RunManual processes manual timestamp files. Each file's content replaces
// the video description as the timestamp source.
func (b *Backfill) RunManual(ctx context.Context, files []string) Stats {
	stats := Stats{Total: len(files)}
	files = limit(b, files)
	items := make([]work, 0, len(files))
	for _, f := range files {
		w := work{label: f}
		w.id, w.err = ManualVideoID(f)
		if w.err == nil {
			// A named but unreadable file counts as failed, not skipped.
			data, err := os.ReadFile(f)
			switch {
			case err != nil:
				w.err = fmt.Errorf("file read error: %w", err)
			case strings.TrimSpace(string(data)) == "":
				w.err = fmt.Errorf("%w: empty file", ingest.ErrNoTimestamps)
			}
			w.description = string(data)
		}
		items = append(items, w)
	}
	b.run(ctx, SourceManual, items, &stats)
	return stats
}

func (b *Backfill) run(ctx context.Context, source string, items []work, stats *Stats) {
	w := b.out()
	for i, it := range items {
		if ctx.Err() != nil {
			stats.Interrupted = true
			return
		}
		prefix := fmt.Sprintf("[%d/%d]", i+1, len(items))

		if it.id == "" {
			fmt.Fprintf(w, "%s SKIP: %s (%v)\n", prefix, it.label, it.err)
			stats.Skipped++
			continue
		}
		if it.err != nil {
			fmt.Fprintf(w, "%s %s FAILED: %v\n", prefix, it.id, it.err)
			stats.fail(it.id, it.err.Error())
			continue
		}
		if b.Options.Resume && b.Ledger != nil {
			done, err := b.Ledger.Succeeded(ctx, it.id)
			if err != nil {
				slog.Warn("backfill: ledger lookup failed", slog.String("video", it.id), slog.Any("error", err))
			}
			if done {
				fmt.Fprintf(w, "%s %s SKIP: already ingested\n", prefix, it.id)
				stats.Skipped++
				continue
			}
		}

		fmt.Fprintf(w, "%s %s\n", prefix, it.id)
		res, err := b.Processor.Process(ctx, it.id, ingest.Options{
			SkipClassification: b.Options.SkipClassification,
			DryRun:             b.Options.DryRun,
			Description:        it.description,
		})
		if err != nil && ctx.Err() != nil {
			stats.Interrupted = true
			return
		}
		stats.Processed++

		entry := Entry{YouTubeID: it.id, Source: source, Title: res.Title}
		if err != nil {
			fmt.Fprintf(w, "  FAILED: %v\n", err)
			stats.fail(it.id, err.Error())
			entry.Outcome, entry.Error = OutcomeFailed, err.Error()
		} else {
			verb := "saved"
			if b.Options.DryRun {
				verb = "would save"
			}
			fmt.Fprintf(w, "  %s: %d of %d question(s) %s\n", res.Title, res.QuestionsSaved, res.QuestionsFound, verb)
			for _, warn := range res.Warnings {
				fmt.Fprintf(w, "  warning: %s\n", warn)
			}
			stats.Successful++
			stats.QuestionsSaved += res.QuestionsSaved
			entry.Outcome, entry.QuestionsSaved = OutcomeSucceeded, res.QuestionsSaved
		}
		if b.Ledger != nil && !b.Options.DryRun {
			if err := b.Ledger.Record(ctx, entry); err != nil {
				slog.Warn("backfill: ledger record failed", slog.String("video", it.id), slog.Any("error", err))
			}
		}

		if i < len(items)-1 && !b.sleep(ctx) {
			stats.Interrupted = true
			return
		}
	}
}

// RunExport writes description and transcript files for each URL.
func (b *Backfill) RunExport(ctx context.Context, urls []string) Stats {
	stats := Stats{Total: len(urls)}
	urls = limit(b, urls)
	w := b.out()
	for i, u := range urls {
		if ctx.Err() != nil {
			stats.Interrupted = true
			break
		}
		prefix := fmt.Sprintf("[%d/%d]", i+1, len(urls))
		id, err := b.Exporter.Export(ctx, u)
		switch {
		case id == "":
			fmt.Fprintf(w, "%s SKIP: %s (%v)\n", prefix, u, err)
			stats.Skipped++
			continue
		case err != nil:
			fmt.Fprintf(w, "%s %s FAILED: %v\n", prefix, id, err)
			stats.Processed++
			stats.fail(id, err.Error())
		default:
			fmt.Fprintf(w, "%s %s exported to %s\n", prefix, id, b.Exporter.Dir)
			stats.Processed++
			stats.Successful++
		}
		if i < len(urls)-1 && !b.sleep(ctx) {
			stats.Interrupted = true
			break
		}
	}
	return stats
}

// sleep waits Options.Delay and reports false when ctx ends first.
func (b *Backfill) sleep(ctx context.Context) bool {
	if b.Options.Delay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(b.Options.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
