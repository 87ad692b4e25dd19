// Package youtube fetches video metadata, playlist contents and timed
// transcripts from YouTube.
package youtube

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidVideoID is returned when no 11-char video ID can be found in the input.
	ErrInvalidVideoID = errors.New("youtube: invalid video id")
	// ErrVideoUnavailable means the video is deleted, private or otherwise gone for good.
	ErrVideoUnavailable = errors.New("youtube: video unavailable")
	// ErrNoTranscript means no caption track could be fetched right now.
	ErrNoTranscript = errors.New("youtube: no transcript")
)

var (
	videoIDRE = regexp.MustCompile(`(?:[?&]v=|/live/|/shorts/|/embed/|youtu\.be/)([0-9A-Za-z_-]{11})`)
	bareIDRE  = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
)

// VideoID pulls the 11-char video ID from a watch, youtu.be, live, shorts or
// embed URL, or accepts a bare ID.
func VideoID(input string) (string, error) {
	s := strings.TrimSpace(input)
	if bareIDRE.MatchString(s) {
		return s, nil
	}
	if m := videoIDRE.FindStringSubmatch(s); len(m) >= 2 {
		return m[1], nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidVideoID, input)
}

// IsValidVideoID reports whether id is a bare 11-char video ID.
func IsValidVideoID(id string) bool {
	return bareIDRE.MatchString(id)
}

// VideoURL returns the canonical watch URL for id.
func VideoURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
