// Package api holds the REST handlers. Every handler is a thin adapter over
// a service; errors are mapped to a status and a code in one place.
package api

import (
	"errors"
	"net/http"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gin-gonic/gin"

	"github.com/peterje/forge/internal/commands"
	"github.com/peterje/forge/internal/files"
	"github.com/peterje/forge/internal/store"
)

// CodeConflict is returned when a destination already exists.
const CodeConflict = "conflict"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

func badRequest(c *gin.Context, msg string) {
	writeError(c, http.StatusBadRequest, commands.CodeBadRequest, msg)
}

func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	writeError(c, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, files.ErrNotExist), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, commands.CodeNotFound
	case errors.Is(err, files.ErrExist):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, files.ErrNotDirectory),
		errors.Is(err, files.ErrIsDirectory),
		errors.Is(err, doublestar.ErrBadPattern):
		return http.StatusBadRequest, commands.CodeInvalid
	}
	code, status := commands.Classify(err)
	return status, code
}

// queryPath reads the required path query parameter.
func queryPath(c *gin.Context) (string, bool) {
	p := c.Query("path")
	if p == "" {
		badRequest(c, "path is required")
		return "", false
	}
	return p, true
}
