package ingest

import (
	"errors"

	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
)

// ErrNoTimestamps is returned when manual timestamps contain no questions.
var ErrNoTimestamps = errors.New("ingest: no timestamps found")

// IsPermanent reports whether retrying err cannot succeed: the video ID is
// malformed, or the video is private, removed or unplayable. Missing
// captions and network failures are transient.
func IsPermanent(err error) bool {
	return errors.Is(err, youtube.ErrInvalidVideoID) ||
		errors.Is(err, youtube.ErrVideoUnavailable) ||
		errors.Is(err, ErrNoTimestamps)
}
