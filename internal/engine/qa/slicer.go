package qa

import (
	"math"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/anatolykoptev/go_podqa/internal/engine"
	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
)

// Match pairs a parsed question with the transcript text spoken in its window.
type Match struct {
	Timestamp
	Answer  string `json:"answer"`
	Preview string `json:"answer_preview"`
}

// SliceAnswers assigns transcript segments to questions.
//
// The window of question i is [t_i, t_i+1); the last window runs to the end
// of the transcript. A segment belongs to the window its start falls in, so a
// segment starting exactly on a boundary goes to the later question. Texts
// are joined with single spaces in segment order. One Match is returned per
// question, in time order; questions past the end of the transcript (or with
// an empty transcript) get an empty answer.
func SliceAnswers(questions []Timestamp, segments []youtube.Segment, previewLen int) []Match {
	qs := slices.Clone(questions)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Seconds < qs[j].Seconds })
	segs := slices.Clone(segments)
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	out := make([]Match, 0, len(qs))
	for i, q := range qs {
		start := float64(q.Seconds)
		end := math.Inf(1)
		if i+1 < len(qs) {
			end = float64(qs[i+1].Seconds)
		}

		lo := sort.Search(len(segs), func(k int) bool { return segs[k].Start >= start })
		var parts []string
		for k := lo; k < len(segs) && segs[k].Start < end; k++ {
			if text := strings.TrimSpace(segs[k].Text); text != "" {
				parts = append(parts, text)
			}
		}
		answer := engine.NormalizeSpace(strings.Join(parts, " "))
		out = append(out, Match{Timestamp: q, Answer: answer, Preview: AnswerPreview(answer, previewLen)})
	}
	return out
}

// TranscriptEnd returns the time the last segment ends, or 0 for no segments.
func TranscriptEnd(segments []youtube.Segment) float64 {
	var end float64
	for _, s := range segments {
		end = max(end, s.End())
	}
	return end
}

// AnswerPreview bounds answer to maxLen runes for list views. Longer answers
// are cut at the last space when that keeps more than 70% of the limit, then
// trailing punctuation is trimmed and "..." appended.
func AnswerPreview(answer string, maxLen int) string {
	if answer == "" {
		return ""
	}
	if maxLen <= 0 {
		maxLen = engine.DefaultAnswerPreviewLength
	}
	if utf8.RuneCountInString(answer) <= maxLen {
		return answer
	}

	truncated := string([]rune(answer)[:maxLen])
	if i := strings.LastIndexByte(truncated, ' '); i >= 0 && float64(utf8.RuneCountInString(truncated[:i])) > float64(maxLen)*0.7 {
		truncated = truncated[:i]
	}
	return strings.TrimRight(truncated, ".,;:!? ") + "..."
}
