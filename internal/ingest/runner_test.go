package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
	"github.com/anatolykoptev/go_podqa/internal/store"
)

const vidC = "kJQP7kiw5Fk"

func newRunner(yt *fakeYouTube, st *memStore) *Runner {
	return &Runner{
		Pipeline:    newPipeline(yt, st, nil),
		Queue:       st,
		Playlist:    yt,
		PlaylistID:  "PLtest",
		SkipIDs:     map[string]bool{vidC: true},
		MaxAttempts: 3,
	}
}

func TestCheckPlaylist(t *testing.T) {
	yt := newFakeYouTube()
	yt.playlist = []string{vidA, vidB, vidC}
	st := newMemStore()
	st.videos[vidB] = store.VideoProcessed
	r := newRunner(yt, st)

	res, err := r.CheckPlaylist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewVideosFound)
	assert.Equal(t, []string{vidA}, res.VideoIDs)

	res, err = r.CheckPlaylist(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.NewVideosFound, "live job is not duplicated")
	assert.Empty(t, res.VideoIDs)
}

func TestCheckPlaylistRequeuesFailedVideos(t *testing.T) {
	yt := newFakeYouTube()
	yt.playlist = []string{vidA}
	st := newMemStore()
	st.videos[vidA] = store.VideoFailed
	st.jobs = append(st.jobs, &store.Job{YouTubeID: vidA, Status: store.JobFailed})

	res, err := newRunner(yt, st).CheckPlaylist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{vidA}, res.VideoIDs)
}

func TestCheckPlaylistErrors(t *testing.T) {
	yt := newFakeYouTube()
	yt.playlistErr = errors.New("quota exceeded")
	_, err := newRunner(yt, newMemStore()).CheckPlaylist(context.Background())
	assert.ErrorContains(t, err, "quota exceeded")

	yt.playlistErr = nil
	res, err := newRunner(yt, newMemStore()).CheckPlaylist(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.NewVideosFound)
	assert.NotNil(t, res.VideoIDs)
}

func TestRunOneEmptyQueue(t *testing.T) {
	res, err := newRunner(newFakeYouTube(), newMemStore()).RunOne(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.False(t, res.Processed)
	assert.Equal(t, "No pending jobs in queue", res.Message)
}

func TestRunOneSuccess(t *testing.T) {
	yt := newFakeYouTube()
	yt.add(vidA, "0:00 What is grace?", exampleSegments)
	st := newMemStore()
	r := newRunner(yt, st)
	flushed := 0
	r.OnIngested = func(context.Context) { flushed++ }

	_, _, err := r.Enqueue(context.Background(), vidA)
	require.NoError(t, err)

	res, err := r.RunOne(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.True(t, res.Processed)
	assert.Equal(t, vidA, res.YouTubeID)
	assert.Equal(t, 1, res.QuestionsSaved)
	assert.Equal(t, store.JobDone, res.JobStatus)
	assert.Equal(t, "Success", res.Message)
	assert.Equal(t, 1, flushed)
	assert.Equal(t, store.JobDone, st.jobFor(vidA).Status)
}

func TestRunOneTransientFailureRetriesThenFails(t *testing.T) {
	yt := newFakeYouTube()
	yt.add(vidA, "0:00 Q", nil)
	yt.transcriptErr[vidA] = youtube.ErrNoTranscript
	st := newMemStore()
	r := newRunner(yt, st)

	ok, err := st.EnqueueJob(context.Background(), vidA)
	require.NoError(t, err)
	require.True(t, ok)

	want := []string{store.JobPending, store.JobPending, store.JobFailed}
	for i, status := range want {
		res, err := r.RunOne(context.Background(), RunOptions{})
		require.NoError(t, err)
		assert.True(t, res.Processed)
		assert.Equal(t, status, res.JobStatus, "attempt %d", i+1)
		assert.NotEmpty(t, res.Error)
	}

	res, err := r.RunOne(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.False(t, res.Processed, "failed job is not retried")

	assert.Equal(t, 3, st.jobFor(vidA).Attempts)
	assert.Equal(t, store.VideoFailed, st.videos[vidA])
}

func TestRunOnePermanentFailure(t *testing.T) {
	st := newMemStore()
	r := newRunner(newFakeYouTube(), st)
	_, err := st.EnqueueJob(context.Background(), vidB)
	require.NoError(t, err)

	res, err := r.RunOne(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, store.JobFailed, res.JobStatus)
	assert.Equal(t, 1, st.jobFor(vidB).Attempts)
	assert.Equal(t, store.VideoFailed, st.videos[vidB])
}

func TestRunOneRecoversStaleJobs(t *testing.T) {
	yt := newFakeYouTube()
	yt.add(vidA, "0:00 What is grace?", exampleSegments)
	st := newMemStore()
	r := newRunner(yt, st)
	r.StaleAfter = time.Minute

	_, err := st.EnqueueJob(context.Background(), vidA)
	require.NoError(t, err)
	job, err := st.ClaimJob(context.Background())
	require.NoError(t, err)
	old := time.Now().Add(-time.Hour)
	st.jobs[0].LockedAt = &old

	res, err := r.RunOne(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, job.YouTubeID, res.YouTubeID)
	assert.Equal(t, store.JobDone, res.JobStatus)
	assert.Equal(t, 1, st.jobFor(vidA).Attempts)
}

func TestRunBatch(t *testing.T) {
	yt := newFakeYouTube()
	yt.add(vidA, "0:00 What is grace?", exampleSegments)
	yt.add(vidB, "0:00 Why baptize?", exampleSegments)
	st := newMemStore()
	r := newRunner(yt, st)
	for _, id := range []string{vidA, vidB} {
		_, err := st.EnqueueJob(context.Background(), id)
		require.NoError(t, err)
	}

	results := r.RunBatch(context.Background(), 5, RunOptions{})
	require.Len(t, results, 2)
	assert.Equal(t, vidA, results[0].YouTubeID)
	assert.Equal(t, vidB, results[1].YouTubeID)

	stats, err := r.QueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.QueueStats{Done: 2, Total: 2}, stats)

	assert.Empty(t, r.RunBatch(context.Background(), 0, RunOptions{}))
}

func TestRunBatchRespectsMax(t *testing.T) {
	yt := newFakeYouTube()
	yt.add(vidA, "0:00 Q", exampleSegments)
	yt.add(vidB, "0:00 Q", exampleSegments)
	st := newMemStore()
	for _, id := range []string{vidA, vidB} {
		_, err := st.EnqueueJob(context.Background(), id)
		require.NoError(t, err)
	}
	assert.Len(t, newRunner(yt, st).RunBatch(context.Background(), 1, RunOptions{}), 1)
}

func TestReprocess(t *testing.T) {
	yt := newFakeYouTube()
	yt.add(vidA, "0:00 What is grace?", exampleSegments)
	st := newMemStore()
	r := newRunner(yt, st)

	_, err := r.Reprocess(context.Background(), vidA, RunOptions{})
	assert.ErrorIs(t, err, ErrVideoNotFound)

	st.videos[vidA] = store.VideoProcessed
	st.transcripts[vidA] = []youtube.Segment{{Start: 0, Duration: 1, Text: "old"}}

	res, err := r.Reprocess(context.Background(), vidA, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Reprocessed successfully", res.Message)
	assert.Equal(t, 1, yt.transcriptCalls, "transcript is refetched")
	assert.Equal(t, "a b c", st.saved[vidA].Items[0].Answer)

	_, err = r.Reprocess(context.Background(), "bad id", RunOptions{})
	assert.ErrorIs(t, err, youtube.ErrInvalidVideoID)
}

func TestEnqueue(t *testing.T) {
	st := newMemStore()
	r := newRunner(newFakeYouTube(), st)

	id, ok, err := r.Enqueue(context.Background(), "https://youtu.be/"+vidA)
	require.NoError(t, err)
	assert.Equal(t, vidA, id)
	assert.True(t, ok)

	_, ok, err = r.Enqueue(context.Background(), vidA)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = r.Enqueue(context.Background(), "nope")
	assert.ErrorIs(t, err, youtube.ErrInvalidVideoID)
}
