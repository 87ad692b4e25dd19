package qaserver

import (
	"context"
	"fmt"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_podqa/internal/engine"
	"github.com/anatolykoptev/go_podqa/internal/store"
	"github.com/anatolykoptev/go_podqa/internal/toolutil"
)

// TaxonomyInput is the qa_taxonomy input.
type TaxonomyInput struct {
	TagLimit int `json:"tag_limit,omitempty" jsonschema:"Max tags to list, most used first (default 100, max 500)"`
}

// CategoryUsage lists the subcategories stored under one category.
type CategoryUsage struct {
	Category      string   `json:"category"`
	Subcategories []string `json:"subcategories"`
}

// TaxonomyOutput is the qa_taxonomy result.
type TaxonomyOutput struct {
	Configured map[string][]string `json:"configured"`
	InUse      []CategoryUsage     `json:"in_use"`
	Tags       []string            `json:"tags"`
}

func (t *tools) taxonomyInfo(ctx context.Context, _ *mcp.CallToolRequest, input TaxonomyInput) (*mcp.CallToolResult, *TaxonomyOutput, error) {
	limit := toolutil.ClampLimit(input.TagLimit, toolutil.DefaultTagLimit, toolutil.MaxTagLimit)

	out, err := toolutil.Cached(ctx, engine.CacheKey("mcp_taxonomy", strconv.Itoa(limit)), func() (TaxonomyOutput, error) {
		cats, err := t.reader.Categories(ctx)
		if err != nil {
			return TaxonomyOutput{}, err
		}
		out := TaxonomyOutput{Configured: t.taxonomy, InUse: make([]CategoryUsage, 0, len(cats))}
		for _, c := range cats {
			subs, err := t.reader.Subcategories(ctx, c)
			if err != nil {
				return TaxonomyOutput{}, err
			}
			out.InUse = append(out.InUse, CategoryUsage{Category: c, Subcategories: subs})
		}
		if out.Tags, err = t.reader.Tags(ctx, limit); err != nil {
			return TaxonomyOutput{}, err
		}
		return out, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load taxonomy: %w", err)
	}
	return nil, &out, nil
}

// QueueStatsInput is the ingest_queue_stats input.
type QueueStatsInput struct{}

func (t *tools) queueStats(ctx context.Context, _ *mcp.CallToolRequest, _ QueueStatsInput) (*mcp.CallToolResult, *store.QueueStats, error) {
	stats, err := t.reader.QueueStats(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("queue stats: %w", err)
	}
	return nil, &stats, nil
}
