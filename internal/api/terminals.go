package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/peterje/forge/internal/commands"
	"github.com/peterje/forge/internal/models"
	"github.com/peterje/forge/internal/pty"
)

// RecordStore is the read side of the terminal records.
type RecordStore interface {
	GetTerminal(ctx context.Context, id string) (models.Terminal, error)
	ListTerminals(ctx context.Context, limit int) ([]models.Terminal, error)
}

const defaultRecordLimit = 100

type TerminalsHandler struct {
	svc     *commands.Service
	records RecordStore
}

func NewTerminalsHandler(svc *commands.Service, records RecordStore) *TerminalsHandler {
	return &TerminalsHandler{svc: svc, records: records}
}

// Register mounts the terminal routes on r.
func (h *TerminalsHandler) Register(r gin.IRouter) {
	r.POST("/terminals", h.HandleCreate)
	r.GET("/terminals", h.HandleList)
	r.GET("/terminals/:id", h.HandleGet)
	r.GET("/terminals/:id/history", h.HandleHistory)
	r.GET("/terminals/:id/cwd", h.HandleCwd)
	r.GET("/terminals/:id/replay", h.HandleReplay)
	r.POST("/terminals/:id/input", h.HandleInput)
	r.POST("/terminals/:id/resize", h.HandleResize)
	r.DELETE("/terminals/:id", h.HandleClose)

	if h.records != nil {
		r.GET("/terminal-records", h.HandleListRecords)
		r.GET("/terminal-records/:id", h.HandleGetRecord)
	}
}

// HandleCreate starts a terminal. An empty body uses the configured defaults.
func (h *TerminalsHandler) HandleCreate(c *gin.Context) {
	var opts pty.Options
	if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid JSON")
		return
	}
	id, err := h.svc.CreateTerminal(c.Request.Context(), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"terminal_id": id})
}

func (h *TerminalsHandler) HandleList(c *gin.Context) {
	list := h.svc.ListTerminals()
	if list == nil {
		list = []pty.Info{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *TerminalsHandler) HandleGet(c *gin.Context) {
	info, err := h.svc.TerminalInfo(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *TerminalsHandler) HandleHistory(c *gin.Context) {
	id := c.Param("id")
	lines, err := h.svc.TerminalHistory(id)
	if err != nil {
		respondError(c, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"terminal_id": id, "history": lines})
}

func (h *TerminalsHandler) HandleCwd(c *gin.Context) {
	id := c.Param("id")
	cwd, err := h.svc.TerminalCwd(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"terminal_id": id, "cwd": cwd})
}

// HandleReplay returns the retained output of a terminal, base64 encoded.
func (h *TerminalsHandler) HandleReplay(c *gin.Context) {
	id := c.Param("id")
	data, err := h.svc.TerminalReplay(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"terminal_id": id, "data": data})
}

func (h *TerminalsHandler) HandleInput(c *gin.Context) {
	var body struct {
		Data string `json:"data"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid JSON")
		return
	}
	if err := h.svc.WriteToTerminal(c.Param("id"), []byte(body.Data)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TerminalsHandler) HandleResize(c *gin.Context) {
	var size pty.Size
	if err := c.ShouldBindJSON(&size); err != nil {
		badRequest(c, "invalid JSON")
		return
	}
	if err := h.svc.ResizeTerminal(c.Param("id"), size); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TerminalsHandler) HandleClose(c *gin.Context) {
	if err := h.svc.CloseTerminal(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleListRecords lists persisted terminal records, newest first.
func (h *TerminalsHandler) HandleListRecords(c *gin.Context) {
	limit := defaultRecordLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := h.records.ListTerminals(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if recs == nil {
		recs = []models.Terminal{}
	}
	c.JSON(http.StatusOK, recs)
}

func (h *TerminalsHandler) HandleGetRecord(c *gin.Context) {
	rec, err := h.records.GetTerminal(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
