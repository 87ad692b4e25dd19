package qa

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubLLM(reply string, err error) (CompleteFunc, *string) {
	var seen string
	return func(_ context.Context, prompt string) (string, error) {
		seen = prompt
		return reply, err
	}, &seen
}

func TestClassify(t *testing.T) {
	fn, prompt := stubLLM("```json\n{\"category\":\"theology\",\"subcategory\":\"SOTERIOLOGY\",\"tags\":[\"election\",\" Election \",\"John Calvin\",\"\"]}\n```", nil)
	c := NewClassifierWith(DefaultTaxonomy(), 20, fn)

	got, err := c.Classify(context.Background(), "Is election unconditional?", strings.Repeat("x", 100))
	require.NoError(t, err)
	assert.Equal(t, "Theology", got.Category)
	assert.Equal(t, "Soteriology", got.Subcategory)
	assert.Equal(t, []string{"election", "John Calvin"}, got.Tags)

	assert.Contains(t, *prompt, "Is election unconditional?")
	assert.Contains(t, *prompt, strings.Repeat("x", 20))
	assert.NotContains(t, *prompt, strings.Repeat("x", 21), "answer snippet is bounded")
	assert.Contains(t, *prompt, `"Church Practices"`)
}

func TestClassifyUnknownCategory(t *testing.T) {
	fn, _ := stubLLM(`{"category":"Cooking","subcategory":"Baking","tags":[]}`, nil)
	_, err := NewClassifierWith(DefaultTaxonomy(), 0, fn).Classify(context.Background(), "q", "a")
	assert.True(t, errors.Is(err, ErrUnknownCategory))
}

func TestClassifyUnknownSubcategoryDropped(t *testing.T) {
	fn, _ := stubLLM(`{"category":"Church Practices","subcategory":"Soteriology","tags":["x"]}`, nil)
	got, err := NewClassifierWith(DefaultTaxonomy(), 0, fn).Classify(context.Background(), "q", "a")
	require.NoError(t, err)
	assert.Equal(t, "Church Practices", got.Category)
	assert.Empty(t, got.Subcategory)
}

func TestClassifyErrors(t *testing.T) {
	fn, _ := stubLLM("", errors.New("boom"))
	_, err := NewClassifierWith(DefaultTaxonomy(), 0, fn).Classify(context.Background(), "q", "a")
	assert.ErrorContains(t, err, "boom")

	fn, _ = stubLLM("I cannot answer that", nil)
	_, err = NewClassifierWith(DefaultTaxonomy(), 0, fn).Classify(context.Background(), "q", "a")
	assert.ErrorContains(t, err, "parse failed")
}

func TestNormalizeTags(t *testing.T) {
	in := []string{"a", "B", "b", "  c  d ", "", "e", "f", "g", strings.Repeat("z", 70)}
	assert.Equal(t, []string{"a", "B", "c d", "e", "f"}, NormalizeTags(in))
	assert.Empty(t, NormalizeTags(nil))
}

func TestLoadTaxonomy(t *testing.T) {
	dir := t.TempDir()

	t.Run("list layout", func(t *testing.T) {
		p := filepath.Join(dir, "list.json")
		require.NoError(t, os.WriteFile(p, []byte(`{"A":["a1","a2"],"B":[]}`), 0o644))
		tax, err := LoadTaxonomy(p)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, tax.Categories())
		assert.Equal(t, []string{"a1", "a2"}, tax["A"])
	})

	t.Run("object layout", func(t *testing.T) {
		p := filepath.Join(dir, "obj.json")
		require.NoError(t, os.WriteFile(p, []byte(`{"A":{"description":"x","subcategories":["a1"]}}`), 0o644))
		tax, err := LoadTaxonomy(p)
		require.NoError(t, err)
		assert.Equal(t, []string{"a1"}, tax["A"])
	})

	t.Run("missing file uses built-in", func(t *testing.T) {
		tax, err := LoadTaxonomy(filepath.Join(dir, "nope.json"))
		require.NoError(t, err)
		assert.Contains(t, tax.Categories(), "Theology")
	})

	t.Run("malformed", func(t *testing.T) {
		p := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(p, []byte(`{"A":7}`), 0o644))
		_, err := LoadTaxonomy(p)
		assert.Error(t, err)
	})
}

func TestCanonicalEmptyTaxonomy(t *testing.T) {
	cat, sub, ok := Taxonomy{}.Canonical(" Anything ", "Goes")
	assert.True(t, ok)
	assert.Equal(t, "Anything", cat)
	assert.Equal(t, "Goes", sub)
}
