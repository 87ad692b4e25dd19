// Package qa turns video descriptions and transcripts into question/answer
// items: timestamp parsing, answer slicing, previews and classification.
package qa

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_podqa/internal/engine"
)

// Timestamp is one "time + question" line parsed from a description.
type Timestamp struct {
	Text     string `json:"timestamp_text"` // as written, e.g. "1:23:45"
	Seconds  int    `json:"timestamp_seconds"`
	Question string `json:"question"`
}

const timePattern = `(\d{1,2}:\d{2}(?::\d{2})?)`

var (
	leadingTimeRE  = regexp.MustCompile(`^` + timePattern)
	trailingTimeRE = regexp.MustCompile(timePattern + `$`)
)

// questionTrim are the separators stripped around question text.
const questionTrim = " -|.:"

// ParseDescriptionTimestamps extracts timestamped questions from a description.
//
// Accepted line shapes:
//
//	04:20 Question text
//	04:20 - Question text
//	1:23:45 | Question text
//	Question text 04:20
//
// Lines without question text are skipped. The result is ordered by time with
// duplicate times collapsed to their first occurrence, so seconds are strictly
// increasing.
func ParseDescriptionTimestamps(description string) []Timestamp {
	var out []Timestamp
	for _, line := range strings.Split(description, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var ts, text string
		if m := leadingTimeRE.FindStringSubmatchIndex(line); m != nil {
			ts, text = line[m[2]:m[3]], line[m[1]:]
		} else if m := trailingTimeRE.FindStringSubmatchIndex(line); m != nil {
			ts, text = line[m[2]:m[3]], line[:m[0]]
		} else {
			continue
		}

		text = strings.Trim(engine.NormalizeSpace(text), questionTrim)
		if text == "" {
			continue
		}
		out = append(out, Timestamp{Text: ts, Seconds: TimeToSeconds(ts), Question: text})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Seconds < out[j].Seconds })
	return dedupeSeconds(out)
}

// dedupeSeconds drops entries whose seconds equal the previous entry's.
// Input must be sorted by seconds.
func dedupeSeconds(in []Timestamp) []Timestamp {
	if len(in) < 2 {
		return in
	}
	out := in[:1]
	for _, t := range in[1:] {
		if t.Seconds == out[len(out)-1].Seconds {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TimeToSeconds converts "M:SS", "MM:SS" or "H:MM:SS" to seconds.
// Anything else yields 0.
func TimeToSeconds(s string) int {
	parts := strings.Split(s, ":")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0
		}
		nums[i] = n
	}
	switch len(nums) {
	case 3:
		return nums[0]*3600 + nums[1]*60 + nums[2]
	case 2:
		return nums[0]*60 + nums[1]
	}
	return 0
}

// FormatSeconds renders seconds as "H:MM:SS" when an hour or longer, else "M:SS".
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
