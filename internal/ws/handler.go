package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/peterje/forge/internal/commands"
	"github.com/peterje/forge/internal/pty"
)

// originChecker accepts requests without an Origin header and those whose
// origin is listed. An empty list or "*" accepts every origin.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}

// Command types accepted from clients.
const (
	CommandCreate = "create"
	CommandWrite  = "write"
	CommandResize = "resize"
	CommandClose  = "close"
	CommandPing   = "ping"
)

// Reply types sent back for a command.
const (
	ReplyResult = "result"
	ReplyError  = "error"
	ReplyPong   = "pong"
)

// Command is a client request. ID is echoed in the reply so clients can
// match them up.
type Command struct {
	Type       string       `json:"type"`
	ID         string       `json:"id,omitempty"`
	TerminalID string       `json:"terminal_id,omitempty"`
	Options    *pty.Options `json:"options,omitempty"`
	Data       string       `json:"data,omitempty"`
	Size       *pty.Size    `json:"size,omitempty"`
}

type Reply struct {
	Type       string `json:"type"`
	ID         string `json:"id,omitempty"`
	TerminalID string `json:"terminal_id,omitempty"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"`
}

// Handler serves the websocket endpoint.
type Handler struct {
	hub      *Hub
	svc      *commands.Service
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler returns a Handler that upgrades requests from the allowed
// origins, matched the same way as the REST CORS policy.
func NewHandler(hub *Hub, svc *commands.Service, origins []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub: hub,
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(origins),
		},
		logger: logger,
	}
}

// HandleConnection upgrades the request and serves commands until the
// client goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := newClient(conn, c.Request.RemoteAddr, sendBuffer)
	h.hub.register(cl)
	defer h.hub.unregister(cl)
	go cl.writePump()

	h.logger.Info("websocket client connected", zap.String("remote", cl.remote))
	defer h.logger.Info("websocket client disconnected", zap.String("remote", cl.remote))

	conn.SetReadLimit(maxReadSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := c.Request.Context()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var cmd Command
		var reply Reply
		if err := json.Unmarshal(raw, &cmd); err != nil {
			reply = Reply{Type: ReplyError, Error: "invalid JSON", Code: commands.CodeBadRequest}
		} else {
			h.hub.observer.MessageReceived(cmd.Type)
			reply = h.dispatch(ctx, cmd)
		}

		data, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		if !cl.enqueue(data) {
			h.logger.Warn("websocket client queue full", zap.String("remote", cl.remote))
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, cmd Command) Reply {
	switch cmd.Type {
	case CommandPing:
		return Reply{Type: ReplyPong, ID: cmd.ID}

	case CommandCreate:
		var opts pty.Options
		if cmd.Options != nil {
			opts = *cmd.Options
		}
		id, err := h.svc.CreateTerminal(ctx, opts)
		if err != nil {
			return errorReply(cmd, err)
		}
		return Reply{Type: ReplyResult, ID: cmd.ID, TerminalID: id}

	case CommandWrite:
		if err := h.svc.WriteToTerminal(cmd.TerminalID, []byte(cmd.Data)); err != nil {
			return errorReply(cmd, err)
		}

	case CommandResize:
		if cmd.Size == nil {
			return Reply{Type: ReplyError, ID: cmd.ID, TerminalID: cmd.TerminalID, Error: "size is required", Code: commands.CodeBadRequest}
		}
		if err := h.svc.ResizeTerminal(cmd.TerminalID, *cmd.Size); err != nil {
			return errorReply(cmd, err)
		}

	case CommandClose:
		if err := h.svc.CloseTerminal(ctx, cmd.TerminalID); err != nil {
			return errorReply(cmd, err)
		}

	default:
		return Reply{Type: ReplyError, ID: cmd.ID, Error: "unknown command type: " + cmd.Type, Code: commands.CodeBadRequest}
	}
	return Reply{Type: ReplyResult, ID: cmd.ID, TerminalID: cmd.TerminalID}
}

func errorReply(cmd Command, err error) Reply {
	code, _ := commands.Classify(err)
	return Reply{Type: ReplyError, ID: cmd.ID, TerminalID: cmd.TerminalID, Error: err.Error(), Code: code}
}
