// Package qaserver exposes the Q&A archive as read-only MCP tools.
package qaserver

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_podqa/internal/engine/qa"
	"github.com/anatolykoptev/go_podqa/internal/store"
)

// Reader is the subset of the store the tools query.
type Reader interface {
	ListVideos(ctx context.Context, titleQuery string, limit, offset int) ([]store.Video, error)
	VideoQuestions(ctx context.Context, youtubeID string, f store.QAFilter) ([]store.QAItem, error)
	SearchQuestions(ctx context.Context, f store.QAFilter) (*store.SearchResponse, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*store.QAItem, error)
	Categories(ctx context.Context) ([]string, error)
	Subcategories(ctx context.Context, category string) ([]string, error)
	Tags(ctx context.Context, limit int) ([]string, error)
	QueueStats(ctx context.Context) (store.QueueStats, error)
}

// tools binds tool handlers to their dependencies.
type tools struct {
	reader   Reader
	taxonomy qa.Taxonomy
}

// RegisterTools registers the Q&A tools on the given MCP server:
// qa_search, qa_get, video_list, video_questions, qa_taxonomy, ingest_queue_stats.
func RegisterTools(server *mcp.Server, reader Reader, taxonomy qa.Taxonomy) {
	t := &tools{reader: reader, taxonomy: taxonomy}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "qa_search",
		Description: "Full-text search over podcast questions and answers. Returns ranked matches with the video, timestamp, answer preview and taxonomy. Filter by category, subcategory or tag.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.search)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "qa_get",
		Description: "Get one Q&A item by ID with the full answer text and the video it came from. Get IDs from qa_search or video_questions.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.get)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_list",
		Description: "List processed podcast episodes, newest first, with their Q&A counts. Optionally filter by a title substring.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.listVideos)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_questions",
		Description: "List the questions answered in one episode in timestamp order. Accepts a YouTube video ID or URL. Filter by category, subcategory, tag or a search query.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.videoQuestions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "qa_taxonomy",
		Description: "Show the configured category taxonomy, the categories and subcategories actually in use, and the most used tags.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.taxonomyInfo)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_queue_stats",
		Description: "Count ingest jobs by status: pending, processing, done, failed.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.queueStats)
}

// QuestionView is a Q&A item as returned by the tools.
type QuestionView struct {
	ID               string   `json:"id"`
	YouTubeID        string   `json:"youtube_id,omitempty"`
	VideoTitle       string   `json:"video_title,omitempty"`
	URL              string   `json:"url,omitempty"`
	TimestampText    string   `json:"timestamp_text"`
	TimestampSeconds int      `json:"timestamp_seconds"`
	Question         string   `json:"question"`
	AnswerPreview    string   `json:"answer_preview,omitempty"`
	Answer           string   `json:"answer,omitempty"`
	Category         string   `json:"category,omitempty"`
	Subcategory      string   `json:"subcategory,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Rank             float64  `json:"rank,omitempty"`
}

// VideoView is a processed episode as returned by the tools.
type VideoView struct {
	YouTubeID    string `json:"youtube_id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	ChannelTitle string `json:"channel_title,omitempty"`
	PublishedAt  string `json:"published_at,omitempty"`
	QACount      int    `json:"qa_count"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
