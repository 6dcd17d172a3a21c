package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/peterje/forge/internal/models"
	"github.com/peterje/forge/internal/pty"
)

// EventFileChanged is the event name of file watcher notifications.
const EventFileChanged = "file-changed"

// Message is a server to client event.
type Message struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Observer is notified of connection and message activity.
type Observer interface {
	ClientConnected()
	ClientDisconnected()
	MessageReceived(kind string)
	MessageSent(kind string)
}

type nopObserver struct{}

func (nopObserver) ClientConnected()       {}
func (nopObserver) ClientDisconnected()    {}
func (nopObserver) MessageReceived(string) {}
func (nopObserver) MessageSent(string)     {}

// Hub is the single consumer of the terminal event channel. It fans every
// event out to all connected clients.
type Hub struct {
	events   <-chan pty.Event
	onFinal  func(context.Context, pty.Event)
	logger   *zap.Logger
	observer Observer

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type HubOption func(*Hub)

// OnFinal registers fn to run for every final terminal event before it is
// broadcast.
func OnFinal(fn func(context.Context, pty.Event)) HubOption {
	return func(h *Hub) { h.onFinal = fn }
}

func WithHubLogger(l *zap.Logger) HubOption { return func(h *Hub) { h.logger = l } }

func WithObserver(o Observer) HubOption { return func(h *Hub) { h.observer = o } }

func NewHub(events <-chan pty.Event, opts ...HubOption) *Hub {
	h := &Hub{
		events:   events,
		logger:   zap.NewNop(),
		observer: nopObserver{},
		clients:  make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run drains the event channel until ctx is done or the channel is closed,
// then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-h.events:
			if !ok {
				return nil
			}
			if ev.Final() && h.onFinal != nil {
				h.onFinal(ctx, ev)
			}
			h.broadcast(Message{Event: string(ev.Type), Payload: ev.Payload()})
		}
	}
}

// PublishFileChange broadcasts a file watcher notification.
func (h *Hub) PublishFileChange(c models.FileChange) {
	h.broadcast(Message{Event: EventFileChanged, Payload: c})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", msg.Event), zap.Error(err))
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if c.enqueue(data) {
			h.observer.MessageSent(msg.Event)
		} else {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", zap.String("remote", c.remote))
		h.unregister(c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.observer.ClientConnected()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
	if ok {
		h.observer.ClientDisconnected()
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.unregister(c)
	}
}
