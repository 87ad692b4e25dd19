package youtube

import (
	"context"
	"fmt"
	"net/url"

	"github.com/anatolykoptev/go_podqa/internal/engine"
)

// maxPlaylistPages bounds paging in case the API keeps returning tokens.
const maxPlaylistPages = 200

type playlistItemsResp struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// PlaylistVideoIDs lists every video ID in a playlist, in playlist order,
// following nextPageToken until exhausted. Duplicates are dropped.
func (c *Client) PlaylistVideoIDs(ctx context.Context, playlistID string) ([]string, error) {
	engine.IncrYouTubePlaylist()
	if playlistID == "" {
		return nil, fmt.Errorf("list playlist: empty playlist id")
	}

	var ids []string
	seen := make(map[string]bool)
	pageToken := ""
	for range maxPlaylistPages {
		params := url.Values{}
		params.Set("part", "contentDetails")
		params.Set("playlistId", playlistID)
		params.Set("maxResults", "50")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var resp playlistItemsResp
		if err := c.dataAPIGet(ctx, "playlistItems", params, &resp); err != nil {
			return nil, fmt.Errorf("list playlist %s: %w", playlistID, err)
		}
		for _, item := range resp.Items {
			id := item.ContentDetails.VideoID
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
		if resp.NextPageToken == "" {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
	return ids, nil
}
