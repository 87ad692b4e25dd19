package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/anatolykoptev/go_podqa/internal/engine"
)

// Client fetches metadata, playlists and transcripts.
// Zero-valued fields fall back to engine.Cfg.
type Client struct {
	APIKey      string
	FallbackKey string
	Langs       []string
}

// NewClient returns a Client configured from engine.Cfg.
func NewClient() *Client {
	return &Client{
		APIKey:      engine.Cfg.YouTubeAPIKey,
		FallbackKey: engine.Cfg.YouTubeAPIKeyFallback,
		Langs:       engine.Cfg.TranscriptLangs,
	}
}

func (c *Client) apiKeys() []string {
	var keys []string
	if c.APIKey != "" {
		keys = append(keys, c.APIKey)
	}
	if c.FallbackKey != "" && c.FallbackKey != c.APIKey {
		keys = append(keys, c.FallbackKey)
	}
	return keys
}

func (c *Client) langs() []string {
	if len(c.Langs) == 0 {
		return []string{"en"}
	}
	return c.Langs
}

// errNoAPIKey is returned by Data API calls when no key is configured.
var errNoAPIKey = errors.New("youtube: data API key not configured")

// apiStatusError is a non-2xx Data API response.
type apiStatusError struct {
	Status int
	Body   string
}

func (e *apiStatusError) Error() string {
	return fmt.Sprintf("youtube data API %d: %s", e.Status, e.Body)
}

// keyRelated reports whether another key might succeed (quota, invalid key, rate limit).
func (e *apiStatusError) keyRelated() bool {
	return e.Status == http.StatusBadRequest || e.Status == http.StatusForbidden || e.Status == http.StatusTooManyRequests
}

// dataAPIGet calls a Data API v3 endpoint and decodes the JSON body into out.
// Automatically falls back to the secondary key on quota or key errors.
func (c *Client) dataAPIGet(ctx context.Context, endpoint string, params url.Values, out any) error {
	keys := c.apiKeys()
	if len(keys) == 0 {
		return errNoAPIKey
	}
	var lastErr error
	for _, key := range keys {
		p := url.Values{}
		for k, v := range params {
			p[k] = v
		}
		p.Set("key", key)
		err := doDataAPIGet(ctx, dataAPIBase+"/"+endpoint+"?"+p.Encode(), out)
		if err == nil {
			return nil
		}
		lastErr = err
		var se *apiStatusError
		if !errors.As(err, &se) || !se.keyRelated() {
			return err
		}
		slog.Debug("youtube data API key failed, trying fallback", slog.String("endpoint", endpoint), slog.Any("error", err))
	}
	return lastErr
}

func doDataAPIGet(ctx context.Context, apiURL string, out any) error {
	resp, err := engine.GetWithRetry(ctx, apiURL, map[string]string{"User-Agent": engine.UserAgentBot})
	if err != nil {
		return fmt.Errorf("youtube data API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &apiStatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode youtube data API: %w", err)
	}
	return nil
}

// ytInitialPlayerResponseMarker marks the start of the player response JSON in watch page HTML.
const ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "

// fetchWatchPage scrapes the watch page and decodes ytInitialPlayerResponse.
// A page whose player reports the video as gone yields ErrVideoUnavailable.
func fetchWatchPage(ctx context.Context, videoID string) (*playerResponse, error) {
	resp, err := engine.GetWithRetry(ctx, watchBase+videoID, map[string]string{
		"User-Agent":      engine.RandomUserAgent(),
		"Accept-Language": "en-US,en;q=0.9",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	})
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s: watch page 404", ErrVideoUnavailable, videoID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("watch page: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 6*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read watch page: %w", err)
	}

	idx := strings.Index(string(body), ytInitialPlayerResponseMarker)
	if idx < 0 {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	jsonData := extractJSON(body[idx+len(ytInitialPlayerResponseMarker):])
	if jsonData == nil {
		return nil, errors.New("failed to extract ytInitialPlayerResponse JSON")
	}

	var pr playerResponse
	if err := json.Unmarshal(jsonData, &pr); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	if unavailable(&pr) {
		return nil, fmt.Errorf("%w: %s: %s", ErrVideoUnavailable, videoID, pr.reason())
	}
	return &pr, nil
}

// unavailable reports whether the player status means the video is gone.
// LOGIN_REQUIRED is only terminal for private videos; bot checks are transient.
func unavailable(pr *playerResponse) bool {
	if pr.PlayabilityStatus == nil {
		return false
	}
	switch pr.PlayabilityStatus.Status {
	case "ERROR":
		return true
	case "LOGIN_REQUIRED":
		return strings.Contains(strings.ToLower(pr.PlayabilityStatus.Reason), "private")
	}
	return false
}

// extractJSON extracts a complete JSON object starting at b[0] == '{' by tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr, escaped := false, false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}
