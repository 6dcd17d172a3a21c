package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peterje/forge/internal/commands"
	"github.com/peterje/forge/internal/models"
	"github.com/peterje/forge/internal/preflight"
	"github.com/peterje/forge/internal/pty"
)

type HealthHandler struct {
	resolver pty.ShellResolver
	svc      *commands.Service
}

func NewHealthHandler(resolver pty.ShellResolver, svc *commands.Service) *HealthHandler {
	return &HealthHandler{resolver: resolver, svc: svc}
}

// HandleHealth reports the shells available to new terminals and the number
// of live terminals.
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	shells, def := preflight.CheckShells(h.resolver)
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:       "ok",
		DefaultShell: def,
		Shells:       shells,
		Terminals:    len(h.svc.ListTerminals()),
	})
}
