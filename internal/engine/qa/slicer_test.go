package qa

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
)

func ts(seconds ...int) []Timestamp {
	out := make([]Timestamp, len(seconds))
	for i, s := range seconds {
		out[i] = Timestamp{Text: FormatSeconds(s), Seconds: s, Question: "q" + FormatSeconds(s)}
	}
	return out
}

func answers(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Answer
	}
	return out
}

func TestSliceAnswersExample(t *testing.T) {
	segs := []youtube.Segment{{Start: 0, Text: "a"}, {Start: 60, Text: "b"}, {Start: 120, Text: "c"}}
	got := SliceAnswers(ts(0, 120), segs, 500)
	assert.Equal(t, []string{"a b", "c"}, answers(got))
}

func TestSliceAnswersBoundaryBelongsToLaterWindow(t *testing.T) {
	segs := []youtube.Segment{{Start: 59.9, Text: "before"}, {Start: 60, Text: "boundary"}}
	got := SliceAnswers(ts(0, 60), segs, 500)
	assert.Equal(t, []string{"before", "boundary"}, answers(got))
}

func TestSliceAnswersIdempotent(t *testing.T) {
	segs := []youtube.Segment{
		{Start: 5, Duration: 2, Text: "grace  alone"},
		{Start: 1, Duration: 2, Text: "intro"},
		{Start: 40, Duration: 3, Text: "faith alone"},
	}
	qs := ts(30, 0)
	first := SliceAnswers(qs, segs, 10)
	second := SliceAnswers(qs, segs, 10)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"intro grace alone", "faith alone"}, answers(first))
	assert.Equal(t, 0, first[0].Seconds, "output is in time order")
}

func TestSliceAnswersEmptyTranscript(t *testing.T) {
	got := SliceAnswers(ts(0, 60), nil, 500)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"", ""}, answers(got))
}

func TestSliceAnswersPastEnd(t *testing.T) {
	segs := []youtube.Segment{{Start: 0, Duration: 10, Text: "only"}}
	got := SliceAnswers(ts(0, 500), segs, 500)
	assert.Equal(t, []string{"only", ""}, answers(got))
}

func TestSliceAnswersNoQuestions(t *testing.T) {
	assert.Empty(t, SliceAnswers(nil, []youtube.Segment{{Start: 0, Text: "x"}}, 500))
}

func TestSliceAnswersDoesNotMutateInput(t *testing.T) {
	qs := ts(60, 0)
	segs := []youtube.Segment{{Start: 70, Text: "b"}, {Start: 0, Text: "a"}}
	SliceAnswers(qs, segs, 500)
	assert.Equal(t, 60, qs[0].Seconds)
	assert.Equal(t, "b", segs[0].Text)
}

func TestSliceAnswersSetsPreview(t *testing.T) {
	segs := []youtube.Segment{{Start: 0, Text: strings.Repeat("word ", 50)}}
	got := SliceAnswers(ts(0), segs, 20)
	require.Len(t, got, 1)
	assert.True(t, strings.HasSuffix(got[0].Preview, "..."))
	assert.LessOrEqual(t, len([]rune(got[0].Preview)), 23)
}

func TestTranscriptEnd(t *testing.T) {
	assert.Equal(t, 0.0, TranscriptEnd(nil))
	segs := []youtube.Segment{{Start: 0, Duration: 5}, {Start: 100, Duration: 2.5}, {Start: 50, Duration: 1}}
	assert.Equal(t, 102.5, TranscriptEnd(segs))
}

func TestAnswerPreview(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		max    int
		want   string
	}{
		{"empty", "", 10, ""},
		{"short", "short answer", 20, "short answer"},
		{"exact", "0123456789", 10, "0123456789"},
		{"word boundary", "the quick brown fox jumps", 18, "the quick brown..."},
		{"boundary too early", "a bcdefghijklmnopqrstuvwxyz", 10, "a bcdefghi..."},
		{"trailing punctuation", "one two three, four five six", 15, "one two three..."},
		{"runes", "ééééé ééééé ééééé", 14, "ééééé ééééé..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnswerPreview(tt.answer, tt.max))
		})
	}
}
