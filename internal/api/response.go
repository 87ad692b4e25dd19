package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Detail string `json:"detail"`
}

func abortDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, errorBody{Detail: detail})
}

// internalError logs err and answers 500 with a generic prefix.
func internalError(c *gin.Context, op string, err error) {
	slog.Error("api: "+op+" failed", slog.String("path", c.Request.URL.Path), slog.Any("error", err))
	abortDetail(c, http.StatusInternalServerError, fmt.Sprintf("Error %s: %v", op, err))
}

var errValidation = errors.New("validation failed")

// intQuery parses an optional integer query parameter within [lo, hi].
// It writes a 422 response and returns errValidation on bad input.
func intQuery(c *gin.Context, name string, def, lo, hi int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		abortDetail(c, http.StatusUnprocessableEntity, fmt.Sprintf("%s: must be an integer", name))
		return 0, errValidation
	}
	if v < lo || v > hi {
		abortDetail(c, http.StatusUnprocessableEntity, fmt.Sprintf("%s: must be between %d and %d", name, lo, hi))
		return 0, errValidation
	}
	return v, nil
}

// offsetQuery parses a non-negative offset.
func offsetQuery(c *gin.Context) (int, error) {
	return intQuery(c, "offset", 0, 0, 1<<31-1)
}

// boolQuery parses an optional boolean query parameter.
func boolQuery(c *gin.Context, name string) (bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return false, nil
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	abortDetail(c, http.StatusUnprocessableEntity, fmt.Sprintf("%s: must be a boolean", name))
	return false, errValidation
}
