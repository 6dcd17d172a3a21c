package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peterje/forge/internal/models"
)

// EditorStore persists editor sessions.
type EditorStore interface {
	SaveEditorSession(ctx context.Context, es models.EditorSession) error
	LoadEditorSession(ctx context.Context, id string) (models.EditorSession, error)
	ListEditorSessions(ctx context.Context) ([]models.EditorSession, error)
}

type EditorHandler struct {
	store EditorStore
}

func NewEditorHandler(store EditorStore) *EditorHandler {
	return &EditorHandler{store: store}
}

func (h *EditorHandler) Register(r gin.IRouter) {
	r.GET("/editor-sessions", h.HandleList)
	r.GET("/editor-sessions/:id", h.HandleGet)
	r.PUT("/editor-sessions/:id", h.HandleSave)
}

func (h *EditorHandler) HandleList(c *gin.Context) {
	sessions, err := h.store.ListEditorSessions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if sessions == nil {
		sessions = []models.EditorSession{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *EditorHandler) HandleGet(c *gin.Context) {
	es, err := h.store.LoadEditorSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, es)
}

// HandleSave stores the session named in the path, replacing any previous
// file list.
func (h *EditorHandler) HandleSave(c *gin.Context) {
	var es models.EditorSession
	if err := c.ShouldBindJSON(&es); err != nil {
		badRequest(c, "invalid JSON")
		return
	}
	es.ID = c.Param("id")
	if err := h.store.SaveEditorSession(c.Request.Context(), es); err != nil {
		respondError(c, err)
		return
	}
	saved, err := h.store.LoadEditorSession(c.Request.Context(), es.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}
