package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
)

// SaveVideoResult writes a processed video, its transcript and Q&A items in
// one transaction. Items are keyed by (video, timestamp seconds); items of
// the video that are not in res.Items are removed.
func (db *DB) SaveVideoResult(ctx context.Context, res VideoResult) (uuid.UUID, error) {
	md := res.Metadata
	if !youtube.IsValidVideoID(md.VideoID) {
		return uuid.Nil, fmt.Errorf("save video: %w: %q", youtube.ErrInvalidVideoID, md.VideoID)
	}
	raw, err := json.Marshal(nonNilSegments(res.Segments))
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal transcript: %w", err)
	}

	var videoID uuid.UUID
	err = db.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO videos (youtube_id, url, title, channel_id, channel_title, published_at,
			                    description, status, error, processed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'processed', NULL, now())
			ON CONFLICT (youtube_id) DO UPDATE SET
				url = EXCLUDED.url,
				title = EXCLUDED.title,
				channel_id = EXCLUDED.channel_id,
				channel_title = EXCLUDED.channel_title,
				published_at = COALESCE(EXCLUDED.published_at, videos.published_at),
				description = EXCLUDED.description,
				status = 'processed',
				error = NULL,
				processed_at = now()
			RETURNING id`,
			md.VideoID, youtube.VideoURL(md.VideoID), md.Title, md.ChannelID, md.ChannelTitle,
			md.PublishedAt, md.Description,
		).Scan(&videoID)
		if err != nil {
			return fmt.Errorf("upsert video: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO transcripts (video_id, raw_data, full_text)
			VALUES ($1, $2, $3)
			ON CONFLICT (video_id) DO UPDATE SET
				raw_data = EXCLUDED.raw_data,
				full_text = EXCLUDED.full_text,
				updated_at = now()`,
			videoID, raw, youtube.FullText(res.Segments),
		)
		if err != nil {
			return fmt.Errorf("upsert transcript: %w", err)
		}

		keep := make([]int32, 0, len(res.Items))
		for _, it := range res.Items {
			if err := upsertQAItem(ctx, tx, videoID, it); err != nil {
				return err
			}
			keep = append(keep, int32(it.TimestampSeconds))
		}

		_, err = tx.Exec(ctx, `
			DELETE FROM qa_items
			WHERE video_id = $1 AND timestamp_seconds <> ALL($2::int[])`,
			videoID, keep,
		)
		if err != nil {
			return fmt.Errorf("delete stale qa items: %w", err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return videoID, nil
}

func upsertQAItem(ctx context.Context, tx pgx.Tx, videoID uuid.UUID, it NewQAItem) error {
	var category, subcategory *string
	if it.Classified {
		category = nullable(it.Category)
		subcategory = nullable(it.Subcategory)
	}

	var itemID uuid.UUID
	err := tx.QueryRow(ctx, `
		INSERT INTO qa_items (video_id, timestamp_text, timestamp_seconds, question, answer,
		                      answer_preview, category, subcategory)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (video_id, timestamp_seconds) DO UPDATE SET
			timestamp_text = EXCLUDED.timestamp_text,
			question = EXCLUDED.question,
			answer = EXCLUDED.answer,
			answer_preview = EXCLUDED.answer_preview,
			category = CASE WHEN $9::boolean THEN EXCLUDED.category ELSE qa_items.category END,
			subcategory = CASE WHEN $9::boolean THEN EXCLUDED.subcategory ELSE qa_items.subcategory END
		RETURNING id`,
		videoID, it.TimestampText, it.TimestampSeconds, it.Question, it.Answer,
		it.AnswerPreview, category, subcategory, it.Classified,
	).Scan(&itemID)
	if err != nil {
		return fmt.Errorf("upsert qa item at %ds: %w", it.TimestampSeconds, err)
	}

	if !it.Classified {
		return nil
	}
	if _, err := tx.Exec(ctx, `DELETE FROM qa_item_tags WHERE qa_item_id = $1`, itemID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for _, name := range it.Tags {
		var tagID uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO tags (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, name,
		).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("upsert tag %q: %w", name, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO qa_item_tags (qa_item_id, tag_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, itemID, tagID)
		if err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}
	return nil
}

// MarkVideoFailed records a terminal ingest failure for a video.
func (db *DB) MarkVideoFailed(ctx context.Context, youtubeID, reason string) error {
	return markVideoFailed(ctx, db.pool, youtubeID, reason)
}

func markVideoFailed(ctx context.Context, q querier, youtubeID, reason string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO videos (youtube_id, url, status, error)
		VALUES ($1, $2, 'failed', $3)
		ON CONFLICT (youtube_id) DO UPDATE SET status = 'failed', error = EXCLUDED.error`,
		youtubeID, youtube.VideoURL(youtubeID), reason,
	)
	if err != nil {
		return fmt.Errorf("mark video %s failed: %w", youtubeID, err)
	}
	return nil
}

// GetVideo returns a video in any status with its description and Q&A count.
func (db *DB) GetVideo(ctx context.Context, youtubeID string) (*Video, error) {
	var v Video
	err := db.pool.QueryRow(ctx, `
		SELECT v.id, v.youtube_id, v.url, COALESCE(v.title, ''), COALESCE(v.channel_id, ''),
		       COALESCE(v.channel_title, ''), v.published_at, COALESCE(v.description, ''),
		       v.status, COALESCE(v.error, ''), v.processed_at,
		       (SELECT COUNT(*) FROM qa_items q WHERE q.video_id = v.id)
		FROM videos v
		WHERE v.youtube_id = $1`, youtubeID,
	).Scan(&v.ID, &v.YouTubeID, &v.URL, &v.Title, &v.ChannelID,
		&v.ChannelTitle, &v.PublishedAt, &v.Description,
		&v.Status, &v.Error, &v.ProcessedAt, &v.QACount)
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// VideoStatus returns the status of a video, or ErrNotFound.
func (db *DB) VideoStatus(ctx context.Context, youtubeID string) (string, error) {
	var status string
	err := db.pool.QueryRow(ctx, `SELECT status FROM videos WHERE youtube_id = $1`, youtubeID).Scan(&status)
	if err != nil {
		return "", notFound(err)
	}
	return status, nil
}

// ProcessedVideoIDs returns the YouTube IDs of every processed video.
func (db *DB) ProcessedVideoIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := db.pool.Query(ctx, `SELECT youtube_id FROM videos WHERE status = 'processed'`)
	if err != nil {
		return nil, fmt.Errorf("list processed videos: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// GetTranscript returns the stored transcript of a video.
func (db *DB) GetTranscript(ctx context.Context, youtubeID string) (*Transcript, error) {
	var (
		t   Transcript
		raw []byte
	)
	err := db.pool.QueryRow(ctx, `
		SELECT v.youtube_id, t.raw_data, t.full_text, t.updated_at
		FROM transcripts t
		JOIN videos v ON v.id = t.video_id
		WHERE v.youtube_id = $1`, youtubeID,
	).Scan(&t.YouTubeID, &raw, &t.FullText, &t.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(raw, &t.Segments); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", youtubeID, err)
	}
	return &t, nil
}

func nonNilSegments(segs []youtube.Segment) []youtube.Segment {
	if segs == nil {
		return []youtube.Segment{}
	}
	return segs
}

func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
