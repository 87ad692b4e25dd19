package youtube

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_podqa/internal/engine"
)

// YouTube transcript fetching.
// Primary:  watch page ytInitialPlayerResponse → caption track XML  (works from any IP)
// Fallback: /next → engagement panel → /get_transcript              (works from datacenter IPs)
// Fallback: ANDROID Innertube /player → captionTracks                (works from non-blocked IPs)

// Segment is one timed caption line. Start and Duration are in seconds.
type Segment struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// End returns the time the segment stops being spoken.
func (s Segment) End() float64 { return s.Start + s.Duration }

// FullText joins segment texts with single spaces.
func FullText(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}

// FetchTranscript returns the timed transcript of a video ordered by start.
// Returns ErrVideoUnavailable when the player reports the video gone and
// ErrNoTranscript when every strategy fails.
func (c *Client) FetchTranscript(ctx context.Context, videoID string) ([]Segment, error) {
	engine.IncrYouTubeTranscript()
	if !IsValidVideoID(videoID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVideoID, videoID)
	}
	langs := c.langs()

	segs, errPage := transcriptViaPageScrape(ctx, videoID, langs)
	if errPage == nil {
		return segs, nil
	}
	if errors.Is(errPage, ErrVideoUnavailable) {
		return nil, errPage
	}
	slog.Warn("youtube: page scrape failed, trying engagement panel",
		slog.String("id", videoID), slog.Any("error", errPage))

	segs, errPanel := transcriptViaEngagementPanel(ctx, videoID)
	if errPanel == nil {
		return segs, nil
	}
	slog.Warn("youtube: engagement panel failed, trying player",
		slog.String("id", videoID), slog.Any("error", errPanel))

	segs, errPlayer := transcriptViaPlayer(ctx, videoID, langs)
	if errPlayer == nil {
		return segs, nil
	}
	if errors.Is(errPlayer, ErrVideoUnavailable) {
		return nil, errPlayer
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrNoTranscript, videoID, errors.Join(errPage, errPanel, errPlayer))
}

// transcriptViaPageScrape reads caption tracks from the watch page player response.
func transcriptViaPageScrape(ctx context.Context, videoID string, langs []string) ([]Segment, error) {
	pr, err := fetchWatchPage(ctx, videoID)
	if err != nil {
		return nil, err
	}
	tracks := pr.tracks()
	if len(tracks) == 0 {
		return nil, errors.New("no caption tracks in watch page")
	}
	track, ok := pickBestTrack(tracks, langs)
	if !ok {
		return nil, errors.New("all tracks require PoToken")
	}
	return fetchTimedText(ctx, track.BaseURL)
}

// getTranscriptRE extracts the continuation token from a raw /next JSON response.
var getTranscriptRE = regexp.MustCompile(`"getTranscriptEndpoint":\{"params":"([^"]+)"`)

func extractTranscriptToken(data []byte) (string, error) {
	if m := getTranscriptRE.FindSubmatch(data); len(m) >= 2 {
		// The params value in the /next JSON response is URL-encoded;
		// /get_transcript expects the decoded (raw base64) form.
		decoded, err := url.QueryUnescape(string(m[1]))
		if err != nil {
			return string(m[1]), nil
		}
		return decoded, nil
	}
	return "", errors.New("getTranscriptEndpoint not found in engagement panels")
}

// parseTranscriptSegments extracts timed segments from a /get_transcript response.
func parseTranscriptSegments(resp ytGetTranscriptResp) []Segment {
	var segs []Segment
	for _, action := range resp.Actions {
		if action.UpdateEngagementPanelAction == nil {
			continue
		}
		items := action.UpdateEngagementPanelAction.Content.
			TranscriptRenderer.Content.
			TranscriptSearchPanelRenderer.Body.
			TranscriptSegmentListRenderer.InitialSegments
		for _, item := range items {
			r := item.TranscriptSegmentRenderer
			if r == nil {
				continue
			}
			var sb strings.Builder
			for _, run := range r.Snippet.Runs {
				sb.WriteString(run.Text)
			}
			text := engine.NormalizeSpace(sb.String())
			if text == "" {
				continue
			}
			startMs, _ := strconv.ParseInt(r.StartMs, 10, 64)
			endMs, _ := strconv.ParseInt(r.EndMs, 10, 64)
			seg := Segment{Start: float64(startMs) / 1000, Text: text}
			if endMs > startMs {
				seg.Duration = float64(endMs-startMs) / 1000
			}
			segs = append(segs, seg)
		}
	}
	sortSegments(segs)
	return segs
}

// transcriptViaEngagementPanel fetches a transcript via:
//  1. POST /next → engagementPanels containing the transcript continuation token
//  2. POST /get_transcript with the token → JSON segments
//
// Works from datacenter IPs where /player returns LOGIN_REQUIRED.
func transcriptViaEngagementPanel(ctx context.Context, videoID string) ([]Segment, error) {
	visitorData := generateVisitorData()

	nextData, err := postInnerTube(ctx, "/next", map[string]any{
		"videoId": videoID,
		"context": ytWebContext(visitorData),
	}, webHeaders(visitorData))
	if err != nil {
		return nil, fmt.Errorf("/next: %w", err)
	}

	token, err := extractTranscriptToken(nextData)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}

	transcriptData, err := postInnerTube(ctx, "/get_transcript", map[string]any{
		"params": token,
		"context": map[string]any{
			"client": ytWebClientCtx{
				ClientName:    "WEB",
				ClientVersion: ytWebVersion,
				VisitorData:   visitorData,
				Hl:            "en",
				Gl:            "US",
			},
		},
	}, webHeaders(visitorData))
	if err != nil {
		return nil, fmt.Errorf("/get_transcript: %w", err)
	}

	var resp ytGetTranscriptResp
	if err := json.Unmarshal(transcriptData, &resp); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}

	segs := parseTranscriptSegments(resp)
	if len(segs) == 0 {
		return nil, errors.New("empty transcript segments")
	}
	return segs, nil
}

// needsPoToken reports whether a caption track URL requires a PoToken (browser-only).
// Tracks with &exp=xpe cannot be fetched server-side.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickBestTrack selects the best usable caption track for the given language preferences.
// Skips tracks that require PoToken; those only work in a browser.
func pickBestTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}
	// 1. Manual track in preferred language
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t, true
			}
		}
	}
	// 2. Auto-generated track in preferred language
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang {
				return t, true
			}
		}
	}
	// 3. Any English track
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return usable[0], true
}

// fetchTimedText fetches and parses a timedtext XML caption URL.
func fetchTimedText(ctx context.Context, baseURL string) ([]Segment, error) {
	resp, err := engine.GetWithRetry(ctx, baseURL, map[string]string{"User-Agent": engine.UserAgentBot})
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch timedtext: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, err
	}
	segs, err := parseTimedText(body)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, errors.New("empty timedtext")
	}
	return segs, nil
}

// parseTimedText decodes timedtext XML in either the default or format 3 layout.
func parseTimedText(body []byte) ([]Segment, error) {
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}

	segs := make([]Segment, 0, len(tt.Lines)+len(tt.Paras))
	for _, line := range tt.Lines {
		if text := engine.CleanHTML(line.Text); text != "" {
			segs = append(segs, Segment{Start: line.Start, Duration: line.Dur, Text: text})
		}
	}
	for _, p := range tt.Paras {
		if text := engine.CleanHTML(p.Text); text != "" {
			segs = append(segs, Segment{Start: float64(p.T) / 1000, Duration: float64(p.D) / 1000, Text: text})
		}
	}
	sortSegments(segs)
	return segs, nil
}

// transcriptViaPlayer uses the ANDROID Innertube /player endpoint.
func transcriptViaPlayer(ctx context.Context, videoID string, langs []string) ([]Segment, error) {
	data, err := postInnerTube(ctx, "/player", innertubeReq{
		VideoID: videoID,
		Context: innertubeCtx{
			Client: innertubeClient{
				ClientName:        "ANDROID",
				ClientVersion:     ytAndroidVersion,
				AndroidSdkVersion: 30,
				Hl:                "en",
				Gl:                "US",
			},
		},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	}, androidHeaders())
	if err != nil {
		return nil, fmt.Errorf("android innertube: %w", err)
	}

	var pr playerResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("decode player: %w", err)
	}
	if unavailable(&pr) {
		return nil, fmt.Errorf("%w: %s: %s", ErrVideoUnavailable, videoID, pr.reason())
	}
	tracks := pr.tracks()
	if len(tracks) == 0 {
		if reason := pr.reason(); reason != "" {
			return nil, fmt.Errorf("captions unavailable: %s", reason)
		}
		return nil, errors.New("no caption tracks in player response")
	}
	track, ok := pickBestTrack(tracks, langs)
	if !ok {
		return nil, errors.New("all caption tracks require PoToken")
	}
	return fetchTimedText(ctx, track.BaseURL)
}

func sortSegments(segs []Segment) {
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
}
