package qa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anatolykoptev/go_podqa/internal/engine"
)

// MaxTags caps the tags kept per item.
const MaxTags = 5

const maxTagRunes = 64

// Classification is the topic assigned to one Q&A item.
type Classification struct {
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Tags        []string `json:"tags"`
}

// CompleteFunc sends a prompt to a language model and returns its reply.
type CompleteFunc func(ctx context.Context, prompt string) (string, error)

// ErrUnknownCategory is returned when the model picks a category outside the taxonomy.
var ErrUnknownCategory = errors.New("classify: unknown category")

// Classifier assigns category, subcategory and tags from a fixed taxonomy.
type Classifier struct {
	taxonomy     Taxonomy
	snippetChars int
	complete     CompleteFunc
}

// NewClassifier returns a Classifier backed by the engine LLM client.
func NewClassifier(taxonomy Taxonomy, snippetChars int) *Classifier {
	return NewClassifierWith(taxonomy, snippetChars, func(ctx context.Context, prompt string) (string, error) {
		return engine.CallLLM(ctx, prompt, 0.1, 512)
	})
}

// NewClassifierWith returns a Classifier that sends prompts through fn.
func NewClassifierWith(taxonomy Taxonomy, snippetChars int, fn CompleteFunc) *Classifier {
	if snippetChars <= 0 {
		snippetChars = engine.DefaultClassifySnippetChars
	}
	return &Classifier{taxonomy: taxonomy, snippetChars: snippetChars, complete: fn}
}

// Taxonomy returns the categories the classifier picks from.
func (c *Classifier) Taxonomy() Taxonomy { return c.taxonomy }

// Classify asks the model for a category, subcategory and 2-5 tags.
func (c *Classifier) Classify(ctx context.Context, question, answer string) (*Classification, error) {
	prompt := fmt.Sprintf(classifyPrompt,
		c.taxonomy.JSON(),
		question,
		engine.TruncateRunes(answer, c.snippetChars, ""),
	)
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	var out Classification
	if err := json.Unmarshal([]byte(engine.ExtractJSONObject(raw)), &out); err != nil {
		return nil, fmt.Errorf("classify: parse failed on %q: %w", engine.Truncate(raw, 200), err)
	}

	cat, sub, ok := c.taxonomy.Canonical(out.Category, out.Subcategory)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, out.Category)
	}
	return &Classification{Category: cat, Subcategory: sub, Tags: NormalizeTags(out.Tags)}, nil
}

// NormalizeTags trims and collapses whitespace, drops empty and overlong
// tags, removes case-insensitive duplicates and keeps at most MaxTags.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, min(len(tags), MaxTags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = engine.NormalizeSpace(t)
		if t == "" || len([]rune(t)) > maxTagRunes {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}

const classifyPrompt = `You classify questions answered on a live Q&A podcast hosted by a Reformed Baptist pastor.

The answer comes from auto-generated captions. Ignore sponsor reads, live chat and super chat shout-outs, banter between the hosts, and the recurring gospel segment unless the question is about it. Classify the substance of the answer.

Categories and subcategories (use names EXACTLY as written):
%s

Return ONLY a JSON object:
{"category": "<category>", "subcategory": "<subcategory of that category>", "tags": ["2-5 short searchable topics: doctrines, people, Bible books or passages, practical topics"]}

If the content is mostly sponsor material, banter or off-topic, use "Non-Biblical Questions" when that category exists.

Question:
%s

Answer:
%s`
