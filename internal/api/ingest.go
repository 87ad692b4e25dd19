package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
	"github.com/anatolykoptev/go_podqa/internal/ingest"
)

func (h *handler) runOptions(c *gin.Context) (ingest.RunOptions, error) {
	skip, err := boolQuery(c, "skip_classification")
	return ingest.RunOptions{SkipClassification: skip}, err
}

func (h *handler) checkPlaylist(c *gin.Context) {
	res, err := h.ingest.CheckPlaylist(c.Request.Context())
	if err != nil {
		internalError(c, "checking playlist", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) runOne(c *gin.Context) {
	opts, err := h.runOptions(c)
	if err != nil {
		return
	}
	res, err := h.ingest.RunOne(c.Request.Context(), opts)
	if err != nil {
		internalError(c, "processing job", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) runBatch(c *gin.Context) {
	opts, err := h.runOptions(c)
	if err != nil {
		return
	}
	maxJobs, err := intQuery(c, "max_jobs", h.cfg.BatchSize, 1, 100)
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, h.ingest.RunBatch(c.Request.Context(), maxJobs, opts))
}

func (h *handler) queueStats(c *gin.Context) {
	stats, err := h.ingest.QueueStats(c.Request.Context())
	if err != nil {
		internalError(c, "reading queue", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handler) reprocess(c *gin.Context) {
	opts, err := h.runOptions(c)
	if err != nil {
		return
	}
	id := c.Param("youtube_id")
	res, err := h.ingest.Reprocess(c.Request.Context(), id, opts)
	switch {
	case errors.Is(err, ingest.ErrVideoNotFound):
		abortDetail(c, http.StatusNotFound, "Video not found: "+id)
		return
	case errors.Is(err, youtube.ErrInvalidVideoID):
		abortDetail(c, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		internalError(c, "reprocessing video", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type enqueueResponse struct {
	YouTubeID string `json:"youtube_id"`
	Enqueued  bool   `json:"enqueued"`
	Message   string `json:"message"`
}

func (h *handler) enqueue(c *gin.Context) {
	id, ok, err := h.ingest.Enqueue(c.Request.Context(), c.Param("youtube_id"))
	if errors.Is(err, youtube.ErrInvalidVideoID) {
		abortDetail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		internalError(c, "enqueueing video", err)
		return
	}
	msg := "Enqueued"
	if !ok {
		msg = "Already processed or queued"
	}
	c.JSON(http.StatusOK, enqueueResponse{YouTubeID: id, Enqueued: ok, Message: msg})
}
