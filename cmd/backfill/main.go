// backfill ingests existing podcast videos from the command line.
//
//	backfill                             # process playlist_videos.txt
//	backfill -file my_videos.txt -limit 5
//	backfill -manual-dir parse-older-videos/inferred-questions
//	backfill -export-dir exports -file missing_qa.txt
//	backfill -resume                     # skip videos already ingested
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/joho/godotenv"

	"github.com/anatolykoptev/go_podqa/internal/backfill"
	"github.com/anatolykoptev/go_podqa/internal/bootstrap"
	"github.com/anatolykoptev/go_podqa/internal/engine"
	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
	"github.com/anatolykoptev/go_podqa/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		file        = flag.String("file", "playlist_videos.txt", "text file with one video URL or ID per line")
		limit       = flag.Int("limit", 0, "maximum number of videos to process (0 = all)")
		skipClass   = flag.Bool("skip-classification", false, "skip LLM classification")
		dryRun      = flag.Bool("dry-run", false, "run every step except saving")
		delay       = flag.Duration("delay", time.Second, "pause between videos")
		manualDir   = flag.String("manual-dir", "", "ingest <id>_description.txt files from this directory instead of -file")
		exportDir   = flag.String("export-dir", "", "write descriptions and transcripts for -file videos to this directory instead of ingesting")
		resume      = flag.Bool("resume", false, "skip videos the local ledger records as ingested")
		ledgerPath  = flag.String("ledger", backfill.DefaultLedgerPath(), "local SQLite ledger path")
		checkConfig = flag.Bool("check-config", false, "print configuration status and exit")
	)
	flag.Parse()

	_ = godotenv.Load()
	bootstrap.InitLogging()
	bootstrap.InitEngine()

	if *checkConfig {
		printConfig()
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := backfill.Options{
		Limit:              *limit,
		SkipClassification: *skipClass,
		DryRun:             *dryRun,
		Resume:             *resume,
		Delay:              *delay,
	}

	if *exportDir != "" {
		urls, err := backfill.ReadURLs(*file)
		if err != nil || len(urls) == 0 {
			fmt.Fprintf(os.Stderr, "No URLs found in %s: %v\n", *file, err)
			return 1
		}
		yt := youtube.NewClient()
		b := &backfill.Backfill{
			Exporter: &backfill.Exporter{Metadata: yt, Transcripts: yt, Dir: *exportDir},
			Options:  opts,
		}
		stats := b.RunExport(ctx, urls)
		stats.PrintSummary(os.Stdout, "EXPORT SUMMARY")
		return exitCode(stats)
	}

	databaseURL := env.Str("DATABASE_URL", "")
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "Configuration error: DATABASE_URL is not set")
		return 1
	}
	db, err := store.Connect(ctx, databaseURL)
	if err != nil {
		slog.Error("database init failed", slog.Any("error", err))
		return 1
	}
	defer db.Close()

	ledger, err := backfill.OpenLedger(*ledgerPath)
	if err != nil {
		slog.Warn("ledger unavailable, outcomes will not be recorded", slog.Any("error", err))
		ledger = nil
	} else {
		defer ledger.Close()
	}

	b := &backfill.Backfill{
		Processor: bootstrap.NewPipeline(db, bootstrap.LoadTaxonomy()),
		Ledger:    ledger,
		Options:   opts,
	}

	var stats backfill.Stats
	title := "BACKFILL SUMMARY"
	if *manualDir != "" {
		files, err := backfill.FindManualFiles(*manualDir)
		if err != nil || len(files) == 0 {
			fmt.Fprintf(os.Stderr, "No timestamp files found in %s: %v\n", *manualDir, err)
			return 1
		}
		stats = b.RunManual(ctx, files)
		title = "MANUAL TIMESTAMP INGEST SUMMARY"
	} else {
		urls, err := backfill.ReadURLs(*file)
		if err != nil || len(urls) == 0 {
			fmt.Fprintf(os.Stderr, "No URLs found in %s: %v\n", *file, err)
			return 1
		}
		stats = b.RunURLs(ctx, urls)
	}
	stats.PrintSummary(os.Stdout, title)
	return exitCode(stats)
}

// exitCode is 130 when interrupted, 1 when any video failed.
func exitCode(s backfill.Stats) int {
	switch {
	case s.Interrupted:
		return 130
	case s.Failed > 0:
		return 1
	}
	return 0
}

func printConfig() {
	set := func(ok bool) string {
		if ok {
			return "set"
		}
		return "not set"
	}
	fmt.Println("Configuration:")
	fmt.Printf("  DATABASE_URL:    %s\n", set(env.Str("DATABASE_URL", "") != ""))
	fmt.Printf("  YOUTUBE_API_KEY: %s\n", set(engine.Cfg.YouTubeAPIKey != ""))
	fmt.Printf("  LLM_API_KEY:     %s\n", set(engine.LLMEnabled()))
}
