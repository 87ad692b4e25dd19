package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_podqa/internal/ingest"
)

type fakeIngester struct {
	checks   int
	checkErr error
	maxJobs  int
	opts     ingest.RunOptions
	results  []ingest.RunResult
}

func (f *fakeIngester) CheckPlaylist(context.Context) (*ingest.CheckResult, error) {
	f.checks++
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	return &ingest.CheckResult{NewVideosFound: 2}, nil
}

func (f *fakeIngester) RunBatch(_ context.Context, maxJobs int, opts ingest.RunOptions) []ingest.RunResult {
	f.maxJobs = maxJobs
	f.opts = opts
	return f.results
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{RedisURL: "redis://localhost:6379/0"}, &fakeIngester{})
	assert.ErrorContains(t, err, "no task schedules")

	_, err = New(Config{RedisURL: "http://localhost", CheckSpec: "@hourly"}, &fakeIngester{})
	assert.ErrorContains(t, err, "parse redis url")
}

func TestTasks(t *testing.T) {
	s := &Scheduler{cfg: Config{CheckSpec: "0 * * * *", BatchSpec: "*/10 * * * *", BatchSize: 3, SkipClassification: true}}
	tasks, err := s.Tasks()
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, TypeCheck, tasks["0 * * * *"].Type())

	batch := tasks["*/10 * * * *"]
	assert.Equal(t, TypeRunBatch, batch.Type())
	var p BatchPayload
	require.NoError(t, json.Unmarshal(batch.Payload(), &p))
	assert.Equal(t, BatchPayload{MaxJobs: 3, SkipClassification: true}, p)
}

func TestTasksSharedSpec(t *testing.T) {
	s := &Scheduler{cfg: Config{CheckSpec: "@hourly", BatchSpec: "@hourly", BatchSize: 5}}
	_, err := s.Tasks()
	assert.ErrorContains(t, err, "share spec")
}

func TestHandleCheck(t *testing.T) {
	ing := &fakeIngester{}
	s := &Scheduler{ing: ing}
	require.NoError(t, s.handleCheck(context.Background(), asynq.NewTask(TypeCheck, nil)))
	assert.Equal(t, 1, ing.checks)

	ing.checkErr = errors.New("quota exceeded")
	assert.ErrorContains(t, s.handleCheck(context.Background(), asynq.NewTask(TypeCheck, nil)), "quota")
}

func TestHandleRunBatch(t *testing.T) {
	ing := &fakeIngester{results: []ingest.RunResult{
		{Processed: true, Message: "Success"},
		{Processed: true, Error: "boom", Message: "Failed: boom"},
		{Processed: false, Message: "No pending jobs in queue"},
	}}
	s := &Scheduler{cfg: Config{BatchSize: 5}, ing: ing}

	payload, _ := json.Marshal(BatchPayload{MaxJobs: 2, SkipClassification: true})
	require.NoError(t, s.handleRunBatch(context.Background(), asynq.NewTask(TypeRunBatch, payload)))
	assert.Equal(t, 2, ing.maxJobs)
	assert.True(t, ing.opts.SkipClassification)

	require.NoError(t, s.handleRunBatch(context.Background(), asynq.NewTask(TypeRunBatch, nil)))
	assert.Equal(t, 5, ing.maxJobs)
	assert.False(t, ing.opts.SkipClassification)
}

func TestHandleRunBatchBadPayload(t *testing.T) {
	s := &Scheduler{cfg: Config{BatchSize: 5}, ing: &fakeIngester{}}
	err := s.handleRunBatch(context.Background(), asynq.NewTask(TypeRunBatch, []byte("{")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleRunBatchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Scheduler{cfg: Config{BatchSize: 5}, ing: &fakeIngester{}}
	assert.ErrorIs(t, s.handleRunBatch(ctx, asynq.NewTask(TypeRunBatch, nil)), context.Canceled)
}

func TestMuxRoutesTasks(t *testing.T) {
	ing := &fakeIngester{}
	s := &Scheduler{cfg: Config{BatchSize: 4}, ing: ing}
	mux := s.Mux()
	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(TypeCheck, nil)))
	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(TypeRunBatch, nil)))
	assert.Equal(t, 1, ing.checks)
	assert.Equal(t, 4, ing.maxJobs)
}
