package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_podqa/internal/engine/qa"
	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
	"github.com/anatolykoptev/go_podqa/internal/store"
)

// memStore is an in-memory ResultStore and Queue.
type memStore struct {
	mu          sync.Mutex
	videos      map[string]string
	videoErrors map[string]string
	saved       map[string]store.VideoResult
	saves       int
	transcripts map[string][]youtube.Segment
	jobs        []*store.Job
	saveErr     error
}

func newMemStore() *memStore {
	return &memStore{
		videos:      map[string]string{},
		videoErrors: map[string]string{},
		saved:       map[string]store.VideoResult{},
		transcripts: map[string][]youtube.Segment{},
	}
}

func (m *memStore) SaveVideoResult(_ context.Context, res store.VideoResult) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return uuid.Nil, m.saveErr
	}
	id := res.Metadata.VideoID
	m.videos[id] = store.VideoProcessed
	m.saved[id] = res
	m.transcripts[id] = res.Segments
	m.saves++
	return uuid.New(), nil
}

func (m *memStore) GetTranscript(_ context.Context, youtubeID string) (*store.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	segs, ok := m.transcripts[youtubeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.Transcript{YouTubeID: youtubeID, Segments: segs}, nil
}

func (m *memStore) EnqueueJob(_ context.Context, youtubeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.videos[youtubeID] == store.VideoProcessed {
		return false, nil
	}
	for _, j := range m.jobs {
		if j.YouTubeID == youtubeID && (j.Status == store.JobPending || j.Status == store.JobProcessing) {
			return false, nil
		}
	}
	m.jobs = append(m.jobs, &store.Job{
		ID: uuid.New(), YouTubeID: youtubeID, Status: store.JobPending, CreatedAt: time.Now(),
	})
	return true, nil
}

func (m *memStore) ClaimJob(_ context.Context) (*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Status == store.JobPending {
			now := time.Now()
			j.Status = store.JobProcessing
			j.LockedAt = &now
			cp := *j
			return &cp, nil
		}
	}
	return nil, store.ErrNoJobs
}

func (m *memStore) job(id uuid.UUID) (*store.Job, error) {
	for _, j := range m.jobs {
		if j.ID == id && j.Status == store.JobProcessing {
			return j, nil
		}
	}
	return nil, fmt.Errorf("job %s: %w", id, store.ErrNotFound)
}

func (m *memStore) CompleteJob(_ context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.job(jobID)
	if err != nil {
		return err
	}
	j.Status = store.JobDone
	j.LockedAt = nil
	m.videos[j.YouTubeID] = store.VideoProcessed
	return nil
}

func (m *memStore) FailJob(_ context.Context, jobID uuid.UUID, reason string, permanent bool, maxAttempts int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, err := m.job(jobID)
	if err != nil {
		return "", err
	}
	j.Attempts++
	j.LastError = reason
	j.LockedAt = nil
	j.Status = store.FailureStatus(j.Attempts, maxAttempts, permanent)
	if j.Status == store.JobFailed {
		m.videos[j.YouTubeID] = store.VideoFailed
		m.videoErrors[j.YouTubeID] = reason
	}
	return j.Status, nil
}

func (m *memStore) RecoverStaleJobs(_ context.Context, olderThan time.Duration, maxAttempts int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.Status == store.JobProcessing && j.LockedAt != nil && time.Since(*j.LockedAt) > olderThan {
			j.Attempts++
			j.LockedAt = nil
			j.Status = store.FailureStatus(j.Attempts, maxAttempts, false)
			n++
		}
	}
	return n, nil
}

func (m *memStore) QueueStats(_ context.Context) (store.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s store.QueueStats
	for _, j := range m.jobs {
		switch j.Status {
		case store.JobPending:
			s.Pending++
		case store.JobProcessing:
			s.Processing++
		case store.JobDone:
			s.Done++
		case store.JobFailed:
			s.Failed++
		}
		s.Total++
	}
	return s, nil
}

func (m *memStore) ProcessedVideoIDs(_ context.Context) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]bool{}
	for id, status := range m.videos {
		if status == store.VideoProcessed {
			out[id] = true
		}
	}
	return out, nil
}

func (m *memStore) VideoStatus(_ context.Context, youtubeID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.videos[youtubeID]
	if !ok {
		return "", store.ErrNotFound
	}
	return status, nil
}

func (m *memStore) jobFor(youtubeID string) *store.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.jobs) - 1; i >= 0; i-- {
		if m.jobs[i].YouTubeID == youtubeID {
			cp := *m.jobs[i]
			return &cp
		}
	}
	return nil
}

// fakeYouTube serves canned metadata, transcripts and playlists.
type fakeYouTube struct {
	mu              sync.Mutex
	metadata        map[string]*youtube.Metadata
	metadataErr     map[string]error
	transcripts     map[string][]youtube.Segment
	transcriptErr   map[string]error
	transcriptCalls int
	playlist        []string
	playlistErr     error
}

func newFakeYouTube() *fakeYouTube {
	return &fakeYouTube{
		metadata:      map[string]*youtube.Metadata{},
		metadataErr:   map[string]error{},
		transcripts:   map[string][]youtube.Segment{},
		transcriptErr: map[string]error{},
	}
}

func (f *fakeYouTube) add(id, description string, segs []youtube.Segment) {
	f.metadata[id] = &youtube.Metadata{VideoID: id, Title: "Video " + id, Description: description}
	f.transcripts[id] = segs
}

func (f *fakeYouTube) FetchMetadata(_ context.Context, id string) (*youtube.Metadata, error) {
	if err := f.metadataErr[id]; err != nil {
		return nil, err
	}
	md, ok := f.metadata[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", youtube.ErrVideoUnavailable, id)
	}
	cp := *md
	return &cp, nil
}

func (f *fakeYouTube) FetchTranscript(_ context.Context, id string) ([]youtube.Segment, error) {
	f.mu.Lock()
	f.transcriptCalls++
	f.mu.Unlock()
	if err := f.transcriptErr[id]; err != nil {
		return nil, err
	}
	segs, ok := f.transcripts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", youtube.ErrNoTranscript, id)
	}
	return segs, nil
}

func (f *fakeYouTube) PlaylistVideoIDs(_ context.Context, _ string) ([]string, error) {
	return f.playlist, f.playlistErr
}

// fakeClassifier classifies every question into Theology unless it is listed in fail.
type fakeClassifier struct {
	fail  map[string]bool
	calls int
}

func (f *fakeClassifier) Classify(_ context.Context, question, _ string) (*qa.Classification, error) {
	f.calls++
	if f.fail[question] {
		return nil, qa.ErrUnknownCategory
	}
	return &qa.Classification{Category: "Theology", Subcategory: "Salvation", Tags: []string{"grace"}}, nil
}
