package qaserver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_podqa/internal/engine"
	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
	"github.com/anatolykoptev/go_podqa/internal/store"
	"github.com/anatolykoptev/go_podqa/internal/toolutil"
)

// SearchInput is the qa_search input.
type SearchInput struct {
	Query       string `json:"query" jsonschema:"Search words matched against questions and answers (min 2 characters)"`
	Category    string `json:"category,omitempty" jsonschema:"Only items in this category"`
	Subcategory string `json:"subcategory,omitempty" jsonschema:"Only items in this subcategory"`
	Tag         string `json:"tag,omitempty" jsonschema:"Only items with this tag"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Max results (default 20, max 100)"`
	Offset      int    `json:"offset,omitempty" jsonschema:"Results to skip for paging"`
}

// SearchOutput is the qa_search result.
type SearchOutput struct {
	Query   string         `json:"query"`
	Total   int            `json:"total"`
	Results []QuestionView `json:"results"`
}

func (t *tools) search(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, *SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if utf8.RuneCountInString(query) < toolutil.MinQueryLen {
		return nil, nil, fmt.Errorf("query must be at least %d characters", toolutil.MinQueryLen)
	}
	f := store.QAFilter{
		Query:       query,
		Category:    input.Category,
		Subcategory: input.Subcategory,
		Tag:         input.Tag,
		Limit:       toolutil.ClampLimit(input.Limit, toolutil.DefaultSearchLimit, toolutil.MaxSearchLimit),
		Offset:      toolutil.ClampOffset(input.Offset),
	}

	key := engine.CacheKey("mcp_search", f.Query, f.Category, f.Subcategory, f.Tag,
		strconv.Itoa(f.Limit), strconv.Itoa(f.Offset))
	out, err := toolutil.Cached(ctx, key, func() (SearchOutput, error) {
		resp, err := t.reader.SearchQuestions(ctx, f)
		if err != nil {
			return SearchOutput{}, err
		}
		out := SearchOutput{Query: resp.Query, Total: resp.Total, Results: make([]QuestionView, 0, len(resp.Results))}
		for _, r := range resp.Results {
			out.Results = append(out.Results, QuestionView{
				ID:               r.ID.String(),
				YouTubeID:        r.YouTubeID,
				VideoTitle:       r.VideoTitle,
				URL:              timestampURL(r.YouTubeID, r.TimestampSeconds),
				TimestampText:    r.TimestampText,
				TimestampSeconds: r.TimestampSeconds,
				Question:         r.Question,
				AnswerPreview:    r.AnswerPreview,
				Category:         deref(r.Category),
				Subcategory:      deref(r.Subcategory),
				Tags:             r.Tags,
				Rank:             r.Rank,
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("search questions: %w", err)
	}
	return nil, &out, nil
}

// GetInput is the qa_get input.
type GetInput struct {
	ID string `json:"id" jsonschema:"Q&A item ID (UUID)"`
}

func (t *tools) get(ctx context.Context, _ *mcp.CallToolRequest, input GetInput) (*mcp.CallToolResult, *QuestionView, error) {
	if strings.TrimSpace(input.ID) == "" {
		return nil, nil, errors.New("id is required")
	}
	id, err := uuid.Parse(strings.TrimSpace(input.ID))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid id %q", input.ID)
	}
	item, err := t.reader.GetQuestion(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("question %s not found", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get question: %w", err)
	}
	v := questionView(*item)
	v.YouTubeID = item.VideoYouTubeID
	v.VideoTitle = item.VideoTitle
	v.URL = timestampURL(item.VideoYouTubeID, item.TimestampSeconds)
	v.Answer = item.Answer
	return nil, &v, nil
}

func questionView(q store.QAItem) QuestionView {
	return QuestionView{
		ID:               q.ID.String(),
		TimestampText:    q.TimestampText,
		TimestampSeconds: q.TimestampSeconds,
		Question:         q.Question,
		AnswerPreview:    q.AnswerPreview,
		Category:         deref(q.Category),
		Subcategory:      deref(q.Subcategory),
		Tags:             q.Tags,
	}
}

// timestampURL links to the moment the question is asked.
func timestampURL(youtubeID string, seconds int) string {
	if youtubeID == "" {
		return ""
	}
	return youtube.VideoURL(youtubeID) + "&t=" + strconv.Itoa(seconds) + "s"
}
