package qa

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
)

//go:embed taxonomy.json
var defaultTaxonomy []byte

// Taxonomy maps each category to its allowed subcategories.
type Taxonomy map[string][]string

// LoadTaxonomy reads a category file. A missing file falls back to the
// built-in taxonomy with a warning.
//
// Both layouts are accepted:
//
//	{"Theology": ["Soteriology", ...]}
//	{"Theology": {"subcategories": ["Soteriology", ...]}}
func LoadTaxonomy(path string) (Taxonomy, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) || path == "" {
		slog.Warn("taxonomy: file not found, using built-in categories", slog.String("path", path))
		return ParseTaxonomy(defaultTaxonomy)
	}
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return ParseTaxonomy(data)
}

// DefaultTaxonomy returns the built-in taxonomy.
func DefaultTaxonomy() Taxonomy {
	t, err := ParseTaxonomy(defaultTaxonomy)
	if err != nil {
		panic("qa: built-in taxonomy is invalid: " + err.Error())
	}
	return t
}

// ParseTaxonomy decodes taxonomy JSON.
func ParseTaxonomy(data []byte) (Taxonomy, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	t := make(Taxonomy, len(raw))
	for cat, v := range raw {
		var subs []string
		if err := json.Unmarshal(v, &subs); err != nil {
			var obj struct {
				Subcategories []string `json:"subcategories"`
			}
			if err := json.Unmarshal(v, &obj); err != nil {
				return nil, fmt.Errorf("parse taxonomy: category %q: %w", cat, err)
			}
			subs = obj.Subcategories
		}
		t[cat] = subs
	}
	return t, nil
}

// Categories returns category names in sorted order.
func (t Taxonomy) Categories() []string {
	out := make([]string, 0, len(t))
	for c := range t {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Canonical resolves category and subcategory case-insensitively to their
// spelling in the taxonomy. An unknown category fails; an unknown or
// mismatched subcategory resolves to "". An empty taxonomy accepts anything.
func (t Taxonomy) Canonical(category, subcategory string) (string, string, bool) {
	category, subcategory = strings.TrimSpace(category), strings.TrimSpace(subcategory)
	if len(t) == 0 {
		return category, subcategory, category != ""
	}
	for cat, subs := range t {
		if !strings.EqualFold(cat, category) {
			continue
		}
		for _, s := range subs {
			if strings.EqualFold(s, subcategory) {
				return cat, s, true
			}
		}
		return cat, "", true
	}
	return "", "", false
}

// JSON renders the taxonomy for prompts.
func (t Taxonomy) JSON() string {
	data, _ := json.MarshalIndent(t, "", "  ")
	return string(data)
}
