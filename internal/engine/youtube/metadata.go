package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/anatolykoptev/go_podqa/internal/engine"
)

// Metadata is the subset of video details the pipeline stores.
type Metadata struct {
	VideoID      string     `json:"video_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	ChannelID    string     `json:"channel_id"`
	ChannelTitle string     `json:"channel_title"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
}

type videosListResp struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			ChannelID    string `json:"channelId"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

// FetchMetadata returns title, description, channel and publish time.
// Uses YouTube Data API v3 when a key is configured; otherwise scrapes the watch page.
// A video the API does not return is reported as ErrVideoUnavailable.
func (c *Client) FetchMetadata(ctx context.Context, videoID string) (*Metadata, error) {
	engine.IncrYouTubeMetadata()
	if !IsValidVideoID(videoID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVideoID, videoID)
	}
	if len(c.apiKeys()) == 0 {
		return metadataFromWatchPage(ctx, videoID)
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("id", videoID)

	var resp videosListResp
	if err := c.dataAPIGet(ctx, "videos", params, &resp); err != nil {
		return nil, fmt.Errorf("fetch metadata %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: %s: not returned by videos.list", ErrVideoUnavailable, videoID)
	}

	sn := resp.Items[0].Snippet
	return &Metadata{
		VideoID:      videoID,
		Title:        sn.Title,
		Description:  sn.Description,
		ChannelID:    sn.ChannelID,
		ChannelTitle: sn.ChannelTitle,
		PublishedAt:  parsePublished(sn.PublishedAt),
	}, nil
}

func metadataFromWatchPage(ctx context.Context, videoID string) (*Metadata, error) {
	pr, err := fetchWatchPage(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata %s: %w", videoID, err)
	}
	if pr.VideoDetails == nil {
		return nil, errors.New("fetch metadata: videoDetails missing from watch page")
	}
	md := &Metadata{
		VideoID:      videoID,
		Title:        pr.VideoDetails.Title,
		Description:  pr.VideoDetails.ShortDescription,
		ChannelID:    pr.VideoDetails.ChannelID,
		ChannelTitle: pr.VideoDetails.Author,
	}
	if pr.Microformat != nil {
		mf := pr.Microformat.PlayerMicroformatRenderer
		md.PublishedAt = parsePublished(mf.PublishDate)
		if md.PublishedAt == nil {
			md.PublishedAt = parsePublished(mf.UploadDate)
		}
	}
	return md, nil
}

// parsePublished accepts RFC 3339 timestamps and bare dates.
func parsePublished(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
