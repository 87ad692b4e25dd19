package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
)

// Video statuses.
const (
	VideoPending   = "pending"
	VideoProcessed = "processed"
	VideoFailed    = "failed"
)

// Job statuses.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobDone       = "done"
	JobFailed     = "failed"
)

// Video is a stored video. Description and ChannelID are only loaded by GetVideo.
type Video struct {
	ID           uuid.UUID  `json:"-"`
	YouTubeID    string     `json:"youtube_id"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	ChannelID    string     `json:"channel_id,omitempty"`
	ChannelTitle string     `json:"channel_title"`
	PublishedAt  *time.Time `json:"published_at"`
	Description  string     `json:"description,omitempty"`
	Status       string     `json:"status"`
	Error        string     `json:"error,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at"`
	QACount      int        `json:"qa_count"`
}

// VideoSummary aggregates a processed video's Q&A taxonomy.
type VideoSummary struct {
	YouTubeID     string     `json:"youtube_id"`
	Title         string     `json:"title"`
	ChannelTitle  string     `json:"channel_title"`
	PublishedAt   *time.Time `json:"published_at"`
	QACount       int        `json:"qa_count"`
	Categories    []string   `json:"categories"`
	Subcategories []string   `json:"subcategories"`
	Tags          []string   `json:"tags"`
}

// QAItem is one question and the transcript slice answering it.
// Answer, VideoYouTubeID and VideoTitle are filled by GetQuestion only.
type QAItem struct {
	ID               uuid.UUID `json:"id"`
	TimestampText    string    `json:"timestamp_text"`
	TimestampSeconds int       `json:"timestamp_seconds"`
	Question         string    `json:"question"`
	Category         *string   `json:"category"`
	Subcategory      *string   `json:"subcategory"`
	AnswerPreview    string    `json:"answer_preview"`
	Answer           string    `json:"answer,omitempty"`
	Tags             []string  `json:"tags"`
	VideoYouTubeID   string    `json:"video_youtube_id,omitempty"`
	VideoTitle       string    `json:"video_title,omitempty"`
}

// SearchResult is a ranked full-text hit.
type SearchResult struct {
	ID               uuid.UUID `json:"id"`
	YouTubeID        string    `json:"youtube_id"`
	VideoTitle       string    `json:"video_title"`
	TimestampText    string    `json:"timestamp_text"`
	TimestampSeconds int       `json:"timestamp_seconds"`
	Question         string    `json:"question"`
	AnswerPreview    string    `json:"answer_preview"`
	Category         *string   `json:"category"`
	Subcategory      *string   `json:"subcategory"`
	Tags             []string  `json:"tags"`
	Rank             float64   `json:"rank"`
}

// SearchResponse is a page of search results plus the unpaged total.
type SearchResponse struct {
	Query   string         `json:"query"`
	Total   int            `json:"total"`
	Results []SearchResult `json:"results"`
}

// Transcript is the stored timed transcript of a video.
type Transcript struct {
	YouTubeID string            `json:"youtube_id"`
	Segments  []youtube.Segment `json:"segments"`
	FullText  string            `json:"full_text"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Job is one ingest queue entry.
type Job struct {
	ID        uuid.UUID  `json:"id"`
	YouTubeID string     `json:"youtube_id"`
	Status    string     `json:"status"`
	Attempts  int        `json:"attempts"`
	LockedAt  *time.Time `json:"locked_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// QueueStats counts jobs by status.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// VideoResult is everything one successful ingest run writes.
type VideoResult struct {
	Metadata youtube.Metadata
	Segments []youtube.Segment
	Items    []NewQAItem
}

// NewQAItem is a Q&A item to upsert. When Classified is false the stored
// category, subcategory and tags are left as they are.
type NewQAItem struct {
	TimestampText    string
	TimestampSeconds int
	Question         string
	Answer           string
	AnswerPreview    string
	Classified       bool
	Category         string
	Subcategory      string
	Tags             []string
}

// QAFilter narrows Q&A listings and searches. Empty fields do not filter.
type QAFilter struct {
	Category    string
	Subcategory string
	Tag         string
	Query       string
	Limit       int
	Offset      int
}
