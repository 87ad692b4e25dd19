package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// whereBuilder collects AND-ed conditions with positional arguments.
// A "?" in a condition is replaced with the next $n placeholder.
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(w.args)), 1))
}

// addRaw adds a condition without arguments.
func (w *whereBuilder) addRaw(cond string) {
	w.conds = append(w.conds, cond)
}

// arg appends an argument and returns its placeholder.
func (w *whereBuilder) arg(v any) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *whereBuilder) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

// addQAFilters adds category, subcategory and tag filters on alias q.
func (w *whereBuilder) addQAFilters(f QAFilter) {
	if f.Category != "" {
		w.add("q.category = ?", f.Category)
	}
	if f.Subcategory != "" {
		w.add("q.subcategory = ?", f.Subcategory)
	}
	if f.Tag != "" {
		w.add(`EXISTS (
			SELECT 1 FROM qa_item_tags qt JOIN tags t ON t.id = qt.tag_id
			WHERE qt.qa_item_id = q.id AND t.name = ?)`, f.Tag)
	}
}

// escapeLike escapes LIKE metacharacters.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// tagsExpr aggregates an item's tag names in name order.
const tagsExpr = `COALESCE((
	SELECT ARRAY_AGG(t.name ORDER BY t.name)
	FROM qa_item_tags qt JOIN tags t ON t.id = qt.tag_id
	WHERE qt.qa_item_id = q.id), '{}')`

// ListVideos returns processed videos, newest first. A non-empty titleQuery
// matches titles case-insensitively.
func (db *DB) ListVideos(ctx context.Context, titleQuery string, limit, offset int) ([]Video, error) {
	w := &whereBuilder{}
	w.addRaw("v.status = 'processed'")
	if titleQuery != "" {
		w.add("v.title ILIKE ?", "%"+escapeLike(titleQuery)+"%")
	}
	query := `
		SELECT v.id, v.youtube_id, v.url, COALESCE(v.title, ''), COALESCE(v.channel_title, ''),
		       v.published_at, v.status, v.processed_at,
		       (SELECT COUNT(*) FROM qa_items q WHERE q.video_id = v.id)
		FROM videos v
		` + w.sql() + `
		ORDER BY v.published_at DESC NULLS LAST, v.created_at DESC
		LIMIT ` + w.arg(limit) + ` OFFSET ` + w.arg(offset)

	rows, err := db.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	videos := []Video{}
	for rows.Next() {
		var v Video
		if err := rows.Scan(&v.ID, &v.YouTubeID, &v.URL, &v.Title, &v.ChannelTitle,
			&v.PublishedAt, &v.Status, &v.ProcessedAt, &v.QACount); err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// VideoSummaries returns processed videos with their Q&A count and the
// distinct categories, subcategories and tags of their items.
func (db *DB) VideoSummaries(ctx context.Context, limit, offset int) ([]VideoSummary, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT v.youtube_id, COALESCE(v.title, ''), COALESCE(v.channel_title, ''), v.published_at,
		       COUNT(DISTINCT q.id),
		       COALESCE(ARRAY_AGG(DISTINCT q.category) FILTER (WHERE q.category IS NOT NULL), '{}'),
		       COALESCE(ARRAY_AGG(DISTINCT q.subcategory) FILTER (WHERE q.subcategory IS NOT NULL), '{}'),
		       COALESCE(ARRAY_AGG(DISTINCT t.name) FILTER (WHERE t.name IS NOT NULL), '{}')
		FROM videos v
		LEFT JOIN qa_items q ON q.video_id = v.id
		LEFT JOIN qa_item_tags qt ON qt.qa_item_id = q.id
		LEFT JOIN tags t ON t.id = qt.tag_id
		WHERE v.status = 'processed'
		GROUP BY v.id
		ORDER BY v.published_at DESC NULLS LAST, v.created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("video summaries: %w", err)
	}
	defer rows.Close()

	out := []VideoSummary{}
	for rows.Next() {
		var s VideoSummary
		if err := rows.Scan(&s.YouTubeID, &s.Title, &s.ChannelTitle, &s.PublishedAt,
			&s.QACount, &s.Categories, &s.Subcategories, &s.Tags); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// VideoQuestions returns the Q&A items of a video in timestamp order.
// Returns ErrNotFound when the video does not exist.
func (db *DB) VideoQuestions(ctx context.Context, youtubeID string, f QAFilter) ([]QAItem, error) {
	var videoID uuid.UUID
	if err := db.pool.QueryRow(ctx, `SELECT id FROM videos WHERE youtube_id = $1`, youtubeID).Scan(&videoID); err != nil {
		return nil, notFound(err)
	}

	w := &whereBuilder{}
	w.add("q.video_id = ?", videoID)
	w.addQAFilters(f)
	if f.Query != "" {
		w.add("q.search_tsv @@ plainto_tsquery('english', ?)", f.Query)
	}
	query := `
		SELECT q.id, COALESCE(q.timestamp_text, ''), q.timestamp_seconds, q.question,
		       COALESCE(q.answer_preview, ''), q.category, q.subcategory, ` + tagsExpr + `
		FROM qa_items q
		` + w.sql() + `
		ORDER BY q.timestamp_seconds
		LIMIT ` + w.arg(f.Limit) + ` OFFSET ` + w.arg(f.Offset)

	rows, err := db.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("video questions: %w", err)
	}
	defer rows.Close()

	items := []QAItem{}
	for rows.Next() {
		var it QAItem
		if err := rows.Scan(&it.ID, &it.TimestampText, &it.TimestampSeconds, &it.Question,
			&it.AnswerPreview, &it.Category, &it.Subcategory, &it.Tags); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SearchQuestions ranks Q&A items of processed videos against f.Query.
// Question text weighs more than answer text.
func (db *DB) SearchQuestions(ctx context.Context, f QAFilter) (*SearchResponse, error) {
	w := &whereBuilder{}
	w.add("q.search_tsv @@ plainto_tsquery('english', ?)", f.Query)
	w.addRaw("v.status = 'processed'")
	w.addQAFilters(f)
	where := w.sql()

	var total int
	err := db.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM qa_items q
		JOIN videos v ON v.id = q.video_id
		`+where, w.args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count search results: %w", err)
	}

	query := `
		SELECT q.id, v.youtube_id, COALESCE(v.title, ''), COALESCE(q.timestamp_text, ''),
		       q.timestamp_seconds, q.question, COALESCE(q.answer_preview, ''),
		       q.category, q.subcategory, ` + tagsExpr + `,
		       ts_rank(q.search_tsv, plainto_tsquery('english', $1))::float8 AS rank
		FROM qa_items q
		JOIN videos v ON v.id = q.video_id
		` + where + `
		ORDER BY rank DESC, q.id
		LIMIT ` + w.arg(f.Limit) + ` OFFSET ` + w.arg(f.Offset)

	rows, err := db.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("search questions: %w", err)
	}
	defer rows.Close()

	resp := &SearchResponse{Query: f.Query, Total: total, Results: []SearchResult{}}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.YouTubeID, &r.VideoTitle, &r.TimestampText,
			&r.TimestampSeconds, &r.Question, &r.AnswerPreview,
			&r.Category, &r.Subcategory, &r.Tags, &r.Rank); err != nil {
			return nil, err
		}
		resp.Results = append(resp.Results, r)
	}
	return resp, rows.Err()
}

// GetQuestion returns one Q&A item with its full answer and video.
func (db *DB) GetQuestion(ctx context.Context, id uuid.UUID) (*QAItem, error) {
	var it QAItem
	err := db.pool.QueryRow(ctx, `
		SELECT q.id, COALESCE(q.timestamp_text, ''), q.timestamp_seconds, q.question,
		       COALESCE(q.answer, ''), COALESCE(q.answer_preview, ''), q.category, q.subcategory,
		       `+tagsExpr+`, v.youtube_id, COALESCE(v.title, '')
		FROM qa_items q
		JOIN videos v ON v.id = q.video_id
		WHERE q.id = $1`, id,
	).Scan(&it.ID, &it.TimestampText, &it.TimestampSeconds, &it.Question,
		&it.Answer, &it.AnswerPreview, &it.Category, &it.Subcategory,
		&it.Tags, &it.VideoYouTubeID, &it.VideoTitle)
	if err != nil {
		return nil, notFound(err)
	}
	return &it, nil
}

// Categories returns the distinct categories in use, sorted.
func (db *DB) Categories(ctx context.Context) ([]string, error) {
	return db.stringColumn(ctx, `
		SELECT DISTINCT category FROM qa_items
		WHERE category IS NOT NULL
		ORDER BY category`)
}

// Subcategories returns the distinct subcategories in use, sorted,
// optionally restricted to one category.
func (db *DB) Subcategories(ctx context.Context, category string) ([]string, error) {
	if category == "" {
		return db.stringColumn(ctx, `
			SELECT DISTINCT subcategory FROM qa_items
			WHERE subcategory IS NOT NULL
			ORDER BY subcategory`)
	}
	return db.stringColumn(ctx, `
		SELECT DISTINCT subcategory FROM qa_items
		WHERE subcategory IS NOT NULL AND category = $1
		ORDER BY subcategory`, category)
}

// Tags returns tag names ordered by how many items use them.
func (db *DB) Tags(ctx context.Context, limit int) ([]string, error) {
	return db.stringColumn(ctx, `
		SELECT t.name
		FROM tags t
		JOIN qa_item_tags qt ON qt.tag_id = t.id
		GROUP BY t.id, t.name
		ORDER BY COUNT(*) DESC, t.name
		LIMIT $1`, limit)
}

func (db *DB) stringColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
