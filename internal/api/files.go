package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/peterje/forge/internal/files"
)

type FilesHandler struct {
	files   *files.Service
	watcher *files.Watcher
}

func NewFilesHandler(svc *files.Service, watcher *files.Watcher) *FilesHandler {
	return &FilesHandler{files: svc, watcher: watcher}
}

type pathBody struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

type moveBody struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

type restoreBody struct {
	Backup   string `json:"backup" binding:"required"`
	Original string `json:"original" binding:"required"`
}

// Register mounts the file routes on r. Paths travel in the query string
// for reads and in the JSON body for writes.
func (h *FilesHandler) Register(r gin.IRouter) {
	g := r.Group("/files")
	g.GET("/content", h.HandleRead)
	g.PUT("/content", h.HandleWrite)
	g.GET("/exists", h.HandleExists)
	g.GET("/metadata", h.HandleMetadata)
	g.GET("/list", h.HandleList)
	g.GET("/glob", h.HandleGlob)
	g.POST("", h.HandleCreate)
	g.DELETE("", h.HandleDelete)
	g.POST("/rename", h.HandleRename)
	g.POST("/copy", h.HandleCopy)
	g.POST("/backup", h.HandleBackup)
	g.POST("/restore", h.HandleRestore)

	if h.watcher != nil {
		g.GET("/watch", h.HandleWatched)
		g.POST("/watch", h.HandleWatch)
		g.DELETE("/watch", h.HandleUnwatch)
	}
}

func (h *FilesHandler) HandleRead(c *gin.Context) {
	p, ok := queryPath(c)
	if !ok {
		return
	}
	data, err := h.files.Read(p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": p, "content": string(data)})
}

func (h *FilesHandler) HandleWrite(c *gin.Context) {
	var body pathBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.files.Write(body.Path, []byte(body.Content)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FilesHandler) HandleExists(c *gin.Context) {
	p, ok := queryPath(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": p, "exists": h.files.Exists(p)})
}

func (h *FilesHandler) HandleMetadata(c *gin.Context) {
	p, ok := queryPath(c)
	if !ok {
		return
	}
	md, err := h.files.Metadata(p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, md)
}

func (h *FilesHandler) HandleList(c *gin.Context) {
	p, ok := queryPath(c)
	if !ok {
		return
	}
	entries, err := h.files.List(p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *FilesHandler) HandleGlob(c *gin.Context) {
	p, ok := queryPath(c)
	if !ok {
		return
	}
	pattern := c.Query("pattern")
	if pattern == "" {
		badRequest(c, "pattern is required")
		return
	}
	matches, err := h.files.Glob(p, pattern)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": p, "pattern": pattern, "matches": matches})
}

func (h *FilesHandler) HandleCreate(c *gin.Context) {
	var body pathBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.files.Create(body.Path, []byte(body.Content)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (h *FilesHandler) HandleDelete(c *gin.Context) {
	p, ok := queryPath(c)
	if !ok {
		return
	}
	if err := h.files.Delete(p); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FilesHandler) HandleRename(c *gin.Context) {
	var body moveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.files.Rename(body.From, body.To); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FilesHandler) HandleCopy(c *gin.Context) {
	var body moveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.files.Copy(body.From, body.To); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FilesHandler) HandleBackup(c *gin.Context) {
	var body pathBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	backup, err := h.files.Backup(body.Path)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"path": body.Path, "backup": backup})
}

func (h *FilesHandler) HandleRestore(c *gin.Context) {
	var body restoreBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.files.Restore(body.Backup, body.Original); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FilesHandler) HandleWatched(c *gin.Context) {
	paths := h.watcher.Watched()
	sort.Strings(paths)
	c.JSON(http.StatusOK, gin.H{"paths": paths})
}

// HandleWatch starts reporting changes of a path as file-changed events on
// the websocket.
func (h *FilesHandler) HandleWatch(c *gin.Context) {
	var body pathBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.watcher.Watch(body.Path); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FilesHandler) HandleUnwatch(c *gin.Context) {
	p, ok := queryPath(c)
	if !ok {
		return
	}
	h.watcher.Unwatch(p)
	c.Status(http.StatusNoContent)
}
