package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anatolykoptev/go_podqa/internal/engine"
	"github.com/anatolykoptev/go_podqa/internal/store"
	"github.com/anatolykoptev/go_podqa/internal/toolutil"
)

func (h *handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    h.cfg.Name,
		"version": h.cfg.Version,
		"status":  "healthy",
	})
}

func (h *handler) health(c *gin.Context) {
	if err := h.reader.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) metrics(c *gin.Context) {
	c.String(http.StatusOK, engine.FormatMetrics())
}

func (h *handler) listVideos(c *gin.Context) {
	limit, err := intQuery(c, "limit", toolutil.DefaultVideoLimit, 1, toolutil.MaxVideoLimit)
	if err != nil {
		return
	}
	offset, err := offsetQuery(c)
	if err != nil {
		return
	}
	videos, err := h.reader.ListVideos(c.Request.Context(), c.Query("q"), limit, offset)
	if err != nil {
		internalError(c, "listing videos", err)
		return
	}
	c.JSON(http.StatusOK, videos)
}

func (h *handler) videoSummaries(c *gin.Context) {
	limit, err := intQuery(c, "limit", toolutil.DefaultVideoLimit, 1, toolutil.MaxVideoLimit)
	if err != nil {
		return
	}
	offset, err := offsetQuery(c)
	if err != nil {
		return
	}
	ctx := c.Request.Context()
	key := engine.CacheKey("summary", strconv.Itoa(limit), strconv.Itoa(offset))
	out, err := toolutil.Cached(ctx, key, func() ([]store.VideoSummary, error) {
		return h.reader.VideoSummaries(ctx, limit, offset)
	})
	if err != nil {
		internalError(c, "summarizing videos", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) getVideo(c *gin.Context) {
	id := c.Param("youtube_id")
	v, err := h.reader.GetVideo(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		abortDetail(c, http.StatusNotFound, "Video not found: "+id)
		return
	}
	if err != nil {
		internalError(c, "loading video", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// qaFilter reads category, subcategory and tag filters.
func qaFilter(c *gin.Context) store.QAFilter {
	return store.QAFilter{
		Category:    c.Query("category"),
		Subcategory: c.Query("subcategory"),
		Tag:         c.Query("tag"),
	}
}

func (h *handler) videoQuestions(c *gin.Context) {
	id := c.Param("youtube_id")
	f := qaFilter(c)
	f.Query = c.Query("q")
	var err error
	if f.Limit, err = intQuery(c, "limit", toolutil.DefaultVideoLimit, 1, toolutil.MaxVideoLimit); err != nil {
		return
	}
	if f.Offset, err = offsetQuery(c); err != nil {
		return
	}

	items, err := h.reader.VideoQuestions(c.Request.Context(), id, f)
	if errors.Is(err, store.ErrNotFound) {
		abortDetail(c, http.StatusNotFound, "Video not found: "+id)
		return
	}
	if err != nil {
		internalError(c, "listing questions", err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *handler) searchQuestions(c *gin.Context) {
	f := qaFilter(c)
	f.Query = c.Query("q")
	if utf8.RuneCountInString(f.Query) < toolutil.MinQueryLen {
		abortDetail(c, http.StatusUnprocessableEntity,
			fmt.Sprintf("q: must be at least %d characters", toolutil.MinQueryLen))
		return
	}
	var err error
	if f.Limit, err = intQuery(c, "limit", toolutil.DefaultSearchLimit, 1, toolutil.MaxSearchLimit); err != nil {
		return
	}
	if f.Offset, err = offsetQuery(c); err != nil {
		return
	}

	resp, err := h.reader.SearchQuestions(c.Request.Context(), f)
	if err != nil {
		internalError(c, "searching questions", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) getQuestion(c *gin.Context) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		abortDetail(c, http.StatusNotFound, "Question not found: "+raw)
		return
	}
	item, err := h.reader.GetQuestion(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		abortDetail(c, http.StatusNotFound, "Question not found: "+raw)
		return
	}
	if err != nil {
		internalError(c, "loading question", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *handler) categories(c *gin.Context) {
	h.cachedStrings(c, "listing categories", engine.CacheKey("categories"), h.reader.Categories)
}

func (h *handler) subcategories(c *gin.Context) {
	category := c.Query("category")
	h.cachedStrings(c, "listing subcategories", engine.CacheKey("subcategories", category),
		func(ctx context.Context) ([]string, error) { return h.reader.Subcategories(ctx, category) })
}

func (h *handler) tags(c *gin.Context) {
	limit, err := intQuery(c, "limit", toolutil.DefaultTagLimit, 1, toolutil.MaxTagLimit)
	if err != nil {
		return
	}
	h.cachedStrings(c, "listing tags", engine.CacheKey("tags", strconv.Itoa(limit)),
		func(ctx context.Context) ([]string, error) { return h.reader.Tags(ctx, limit) })
}

func (h *handler) cachedStrings(c *gin.Context, op, key string, fn func(context.Context) ([]string, error)) {
	ctx := c.Request.Context()
	out, err := toolutil.Cached(ctx, key, func() ([]string, error) { return fn(ctx) })
	if err != nil {
		internalError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
