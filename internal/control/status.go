package control

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/NodePath81/pingbar/internal/present"
	"github.com/NodePath81/pingbar/internal/threshold"
	"github.com/google/uuid"
)

type statusMessage struct {
	SchemaVersion int                   `json:"schema_version"`
	Type          string                `json:"type"`
	Timestamp     int64                 `json:"timestamp,omitempty"`
	View          *present.View         `json:"view,omitempty"`
	Mode          string                `json:"mode,omitempty"`
	PlaneMode     *bool                 `json:"plane_mode,omitempty"`
	Thresholds    *threshold.Thresholds `json:"thresholds,omitempty"`
	Code          string                `json:"code,omitempty"`
	Message       string                `json:"message,omitempty"`
}

// StatusHub fans broadcast messages out to every connected websocket client.
// Slow clients drop messages rather than block the hub.
type StatusHub struct {
	mu        sync.Mutex
	clients   map[*statusClient]struct{}
	broadcast chan statusMessage
	ctxDone   <-chan struct{}
}

type statusClient struct {
	id   string
	send chan []byte

	mu           sync.Mutex
	closed       bool
	tickerCancel context.CancelFunc
}

func newStatusClient() *statusClient {
	return &statusClient{
		id:   uuid.New().String(),
		send: make(chan []byte, 32),
	}
}

func NewStatusHub(ctxDone <-chan struct{}) *StatusHub {
	h := &StatusHub{
		clients:   make(map[*statusClient]struct{}),
		broadcast: make(chan statusMessage, 128),
		ctxDone:   ctxDone,
	}
	go h.run()
	return h
}

func (h *StatusHub) run() {
	for {
		select {
		case <-h.ctxDone:
			h.mu.Lock()
			for client := range h.clients {
				client.close()
			}
			h.clients = make(map[*statusClient]struct{})
			h.mu.Unlock()
			return
		case msg := <-h.broadcast:
			data, _ := json.Marshal(msg)
			h.mu.Lock()
			for client := range h.clients {
				client.trySend(data)
			}
			h.mu.Unlock()
		}
	}
}

func (h *StatusHub) Register(client *statusClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

func (h *StatusHub) Unregister(client *statusClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	client.close()
}

func (h *StatusHub) Broadcast(msg statusMessage) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

// BroadcastModeChange tells every client that plane mode was toggled.
func (h *StatusHub) BroadcastModeChange(mode threshold.Mode, t threshold.Thresholds) {
	plane := mode == threshold.ModePlane
	h.Broadcast(statusMessage{
		SchemaVersion: 1,
		Type:          "mode_changed",
		Mode:          mode.String(),
		PlaneMode:     &plane,
		Thresholds:    &t,
	})
}

// trySend queues data without blocking; it drops data for a full or closed
// client.
func (c *statusClient) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// subscribe replaces any running view ticker with one that calls push every
// interval. It reports whether the client had no ticker before.
func (c *statusClient) subscribe(interval time.Duration, push func(time.Time)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	first := c.tickerCancel == nil
	if c.tickerCancel != nil {
		c.tickerCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.tickerCancel = cancel
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				push(now)
			}
		}
	}()
	return first
}

func (c *statusClient) unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tickerCancel != nil {
		c.tickerCancel()
		c.tickerCancel = nil
	}
}

func (c *statusClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.tickerCancel != nil {
		c.tickerCancel()
		c.tickerCancel = nil
	}
	close(c.send)
}
