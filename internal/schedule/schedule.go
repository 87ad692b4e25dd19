// Package schedule runs periodic playlist checks and ingest batches on asynq.
//
// A scheduler enqueues podqa:check and podqa:run-batch tasks on cron specs.
// A single-worker asynq server executes them through the ingest runner, so
// at most one ingestion unit runs per process.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/anatolykoptev/go_podqa/internal/ingest"
)

// Task types.
const (
	TypeCheck    = "podqa:check"
	TypeRunBatch = "podqa:run-batch"
)

// QueueName is the asynq queue both tasks are enqueued on.
const QueueName = "podqa"

// Ingester is the part of the runner the tasks drive.
type Ingester interface {
	CheckPlaylist(ctx context.Context) (*ingest.CheckResult, error)
	RunBatch(ctx context.Context, maxJobs int, opts ingest.RunOptions) []ingest.RunResult
}

// Config configures the scheduler. An empty spec disables that task.
type Config struct {
	RedisURL  string
	CheckSpec string
	BatchSpec string
	BatchSize int
	// SkipClassification applies to scheduled batches.
	SkipClassification bool
	// TaskTimeout bounds one task run.
	TaskTimeout time.Duration
	Location    *time.Location
}

// BatchPayload is the podqa:run-batch task payload.
type BatchPayload struct {
	MaxJobs            int  `json:"max_jobs"`
	SkipClassification bool `json:"skip_classification"`
}

// Scheduler owns the asynq scheduler and worker server.
type Scheduler struct {
	cfg       Config
	ing       Ingester
	server    *asynq.Server
	scheduler *asynq.Scheduler
}

// New builds a Scheduler. Nothing runs until Start.
func New(cfg Config, ing Ingester) (*Scheduler, error) {
	if cfg.CheckSpec == "" && cfg.BatchSpec == "" {
		return nil, errors.New("schedule: no task schedules configured")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = ingest.DefaultBatchSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("schedule: parse redis url: %w", err)
	}

	logger := slogLogger{}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{QueueName: 1},
		Logger:      logger,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			slog.Error("schedule: task failed", slog.String("type", task.Type()), slog.Any("error", err))
		}),
	})
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: cfg.Location,
		Logger:   logger,
	})

	return &Scheduler{cfg: cfg, ing: ing, server: server, scheduler: scheduler}, nil
}

// Mux routes task types to their handlers.
func (s *Scheduler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCheck, s.handleCheck)
	mux.HandleFunc(TypeRunBatch, s.handleRunBatch)
	return mux
}

// Tasks returns the cron spec and task of each enabled schedule.
func (s *Scheduler) Tasks() (map[string]*asynq.Task, error) {
	tasks := make(map[string]*asynq.Task, 2)
	if s.cfg.CheckSpec != "" {
		tasks[s.cfg.CheckSpec] = asynq.NewTask(TypeCheck, nil)
	}
	if s.cfg.BatchSpec != "" {
		payload, err := json.Marshal(BatchPayload{
			MaxJobs:            s.cfg.BatchSize,
			SkipClassification: s.cfg.SkipClassification,
		})
		if err != nil {
			return nil, err
		}
		if t, ok := tasks[s.cfg.BatchSpec]; ok {
			return nil, fmt.Errorf("schedule: %s and %s share spec %q", t.Type(), TypeRunBatch, s.cfg.BatchSpec)
		}
		tasks[s.cfg.BatchSpec] = asynq.NewTask(TypeRunBatch, payload)
	}
	return tasks, nil
}

// Start registers the schedules and starts the worker and the scheduler
// in the background.
func (s *Scheduler) Start() error {
	tasks, err := s.Tasks()
	if err != nil {
		return err
	}
	for spec, task := range tasks {
		// A task still waiting or running blocks duplicates until it finishes
		// or the uniqueness TTL runs out.
		entryID, err := s.scheduler.Register(spec, task,
			asynq.Queue(QueueName),
			asynq.MaxRetry(0),
			asynq.Timeout(s.cfg.TaskTimeout),
			asynq.Unique(s.cfg.TaskTimeout),
		)
		if err != nil {
			return fmt.Errorf("schedule: register %s: %w", task.Type(), err)
		}
		slog.Info("schedule: registered",
			slog.String("type", task.Type()),
			slog.String("spec", spec),
			slog.String("entry", entryID))
	}

	if err := s.server.Start(s.Mux()); err != nil {
		return fmt.Errorf("schedule: start worker: %w", err)
	}
	if err := s.scheduler.Start(); err != nil {
		s.server.Shutdown()
		return fmt.Errorf("schedule: start scheduler: %w", err)
	}
	return nil
}

// Shutdown stops the scheduler, then waits for the running task.
func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
	s.server.Shutdown()
}

func (s *Scheduler) handleCheck(ctx context.Context, _ *asynq.Task) error {
	res, err := s.ing.CheckPlaylist(ctx)
	if err != nil {
		return err
	}
	slog.Info("schedule: playlist checked", slog.Int("enqueued", res.NewVideosFound))
	return nil
}

func (s *Scheduler) handleRunBatch(ctx context.Context, task *asynq.Task) error {
	p := BatchPayload{MaxJobs: s.cfg.BatchSize}
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return fmt.Errorf("decode %s payload: %w: %w", TypeRunBatch, err, asynq.SkipRetry)
		}
	}
	if p.MaxJobs <= 0 {
		p.MaxJobs = s.cfg.BatchSize
	}

	results := s.ing.RunBatch(ctx, p.MaxJobs, ingest.RunOptions{SkipClassification: p.SkipClassification})
	var ok, failed int
	for _, r := range results {
		switch {
		case !r.Processed:
		case r.Error != "":
			failed++
		default:
			ok++
		}
	}
	slog.Info("schedule: batch done",
		slog.Int("jobs", len(results)),
		slog.Int("succeeded", ok),
		slog.Int("failed", failed))
	return ctx.Err()
}
