package qaserver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_podqa/internal/engine"
	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
	"github.com/anatolykoptev/go_podqa/internal/store"
	"github.com/anatolykoptev/go_podqa/internal/toolutil"
)

// VideoListInput is the video_list input.
type VideoListInput struct {
	Query  string `json:"query,omitempty" jsonschema:"Case-insensitive title substring"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Max videos (default 50, max 100)"`
	Offset int    `json:"offset,omitempty" jsonschema:"Videos to skip for paging"`
}

// VideoListOutput is the video_list result.
type VideoListOutput struct {
	Videos []VideoView `json:"videos"`
}

func (t *tools) listVideos(ctx context.Context, _ *mcp.CallToolRequest, input VideoListInput) (*mcp.CallToolResult, *VideoListOutput, error) {
	query := strings.TrimSpace(input.Query)
	limit := toolutil.ClampLimit(input.Limit, toolutil.DefaultVideoLimit, toolutil.MaxVideoLimit)
	offset := toolutil.ClampOffset(input.Offset)

	key := engine.CacheKey("mcp_videos", query, strconv.Itoa(limit), strconv.Itoa(offset))
	out, err := toolutil.Cached(ctx, key, func() (VideoListOutput, error) {
		videos, err := t.reader.ListVideos(ctx, query, limit, offset)
		if err != nil {
			return VideoListOutput{}, err
		}
		out := VideoListOutput{Videos: make([]VideoView, 0, len(videos))}
		for _, v := range videos {
			out.Videos = append(out.Videos, VideoView{
				YouTubeID:    v.YouTubeID,
				Title:        v.Title,
				URL:          youtube.VideoURL(v.YouTubeID),
				ChannelTitle: v.ChannelTitle,
				PublishedAt:  formatTime(v.PublishedAt),
				QACount:      v.QACount,
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list videos: %w", err)
	}
	return nil, &out, nil
}

// VideoQuestionsInput is the video_questions input.
type VideoQuestionsInput struct {
	Video       string `json:"video" jsonschema:"YouTube video ID or URL"`
	Category    string `json:"category,omitempty" jsonschema:"Only items in this category"`
	Subcategory string `json:"subcategory,omitempty" jsonschema:"Only items in this subcategory"`
	Tag         string `json:"tag,omitempty" jsonschema:"Only items with this tag"`
	Query       string `json:"query,omitempty" jsonschema:"Full-text filter over questions and answers"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Max items (default 50, max 100)"`
	Offset      int    `json:"offset,omitempty" jsonschema:"Items to skip for paging"`
}

// VideoQuestionsOutput is the video_questions result.
type VideoQuestionsOutput struct {
	YouTubeID string         `json:"youtube_id"`
	Questions []QuestionView `json:"questions"`
}

func (t *tools) videoQuestions(ctx context.Context, _ *mcp.CallToolRequest, input VideoQuestionsInput) (*mcp.CallToolResult, *VideoQuestionsOutput, error) {
	if strings.TrimSpace(input.Video) == "" {
		return nil, nil, errors.New("video is required")
	}
	id, err := youtube.VideoID(input.Video)
	if err != nil {
		return nil, nil, err
	}
	f := store.QAFilter{
		Category:    input.Category,
		Subcategory: input.Subcategory,
		Tag:         input.Tag,
		Query:       strings.TrimSpace(input.Query),
		Limit:       toolutil.ClampLimit(input.Limit, toolutil.DefaultVideoLimit, toolutil.MaxVideoLimit),
		Offset:      toolutil.ClampOffset(input.Offset),
	}
	items, err := t.reader.VideoQuestions(ctx, id, f)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("video %s not found", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("list video questions: %w", err)
	}
	out := &VideoQuestionsOutput{YouTubeID: id, Questions: make([]QuestionView, 0, len(items))}
	for _, q := range items {
		v := questionView(q)
		v.URL = timestampURL(id, q.TimestampSeconds)
		out.Questions = append(out.Questions, v)
	}
	return nil, out, nil
}
