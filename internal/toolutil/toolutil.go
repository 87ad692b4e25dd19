// Package toolutil holds helpers shared by the HTTP API and the MCP tools.
package toolutil

import (
	"context"

	"github.com/anatolykoptev/go_podqa/internal/engine"
)

// Page size bounds for read endpoints.
const (
	DefaultVideoLimit  = 50
	MaxVideoLimit      = 100
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
	DefaultTagLimit    = 100
	MaxTagLimit        = 500
	// MinQueryLen is the shortest accepted search query, in runes.
	MinQueryLen = 2
)

// ClampLimit returns def for non-positive v and hi for v above hi.
func ClampLimit(v, def, hi int) int {
	if v <= 0 {
		return def
	}
	return min(v, hi)
}

// ClampOffset maps negative offsets to zero.
func ClampOffset(v int) int {
	return max(v, 0)
}

// Cached returns the cached value for key, or calls fn and caches its result.
// Errors are not cached.
func Cached[T any](ctx context.Context, key string, fn func() (T, error)) (T, error) {
	if v, ok := engine.CacheLoadJSON[T](ctx, key); ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	engine.CacheStoreJSON(ctx, key, v)
	return v, nil
}
