package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/snapbatch/backend/internal/models"
)

// WebSocket event types pushed to subscribers
const (
	EventTypeProgress     = "progress"
	EventTypeVariantReady = "variant:ready"
	EventTypeFileError    = "file:error"
	EventTypeResolved     = "batch:resolved"
)

// WSEvent is the wire shape of every pushed event
type WSEvent struct {
	Type      string               `json:"type"`
	BatchID   string               `json:"batchId"`
	Progress  *models.Progress     `json:"progress,omitempty"`
	Variant   *models.VariantEvent `json:"variant,omitempty"`
	File      string               `json:"file,omitempty"`
	Error     string               `json:"error,omitempty"`
	Timestamp int64                `json:"timestamp"`
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// EventHub pushes engine events to WebSocket subscribers per batch.
// It implements the orchestrator's Observer and the reconciliation
// loop's Notifier, keeping the engine free of any transport knowledge.
type EventHub struct {
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu   sync.RWMutex
	subs map[string]map[*subscriber]bool
}

// NewEventHub creates a new event hub
func NewEventHub(logger *log.Logger) *EventHub {
	if logger == nil {
		logger = log.Default()
	}
	return &EventHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Browser clients connect from the app origin or a dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		logger: logger,
		subs:   make(map[string]map[*subscriber]bool),
	}
}

// HandleSubscribe upgrades the connection and streams events for the
// batch in the :id param until the client disconnects
func (h *EventHub) HandleSubscribe(c echo.Context) error {
	batchID := c.Param("id")
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	sub := &subscriber{conn: ws}
	h.register(batchID, sub)
	h.logger.Debug("websocket subscribed", "batch", batchID)

	defer func() {
		h.unregister(batchID, sub)
		ws.Close()
		h.logger.Debug("websocket disconnected", "batch", batchID)
	}()

	// Drain client frames; the protocol is push-only apart from pings.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "batch", batchID, "err", err)
			}
			return nil
		}
	}
}

// OnProgress implements batch.Observer
func (h *EventHub) OnProgress(batchID string, p models.Progress) {
	h.broadcast(batchID, WSEvent{Type: EventTypeProgress, BatchID: batchID, Progress: &p})
}

// OnFileError implements batch.Observer
func (h *EventHub) OnFileError(batchID, file, reason string) {
	h.broadcast(batchID, WSEvent{Type: EventTypeFileError, BatchID: batchID, File: file, Error: reason})
}

// OnVariantReady implements reconcile.Notifier
func (h *EventHub) OnVariantReady(batchID string, ev models.VariantEvent) {
	h.broadcast(batchID, WSEvent{Type: EventTypeVariantReady, BatchID: batchID, Variant: &ev})
}

// OnBatchResolved implements reconcile.Notifier
func (h *EventHub) OnBatchResolved(b *models.Batch) {
	h.broadcast(b.ID, WSEvent{Type: EventTypeResolved, BatchID: b.ID})
}

func (h *EventHub) register(batchID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[batchID] == nil {
		h.subs[batchID] = make(map[*subscriber]bool)
	}
	h.subs[batchID][sub] = true
}

func (h *EventHub) unregister(batchID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.subs[batchID]; ok {
		delete(conns, sub)
		if len(conns) == 0 {
			delete(h.subs, batchID)
		}
	}
}

func (h *EventHub) broadcast(batchID string, ev WSEvent) {
	ev.Timestamp = time.Now().UnixMilli()
	payload, err := sonic.Marshal(&ev)
	if err != nil {
		h.logger.Error("could not encode event", "type", ev.Type, "err", err)
		return
	}

	h.mu.RLock()
	var targets []*subscriber
	for sub := range h.subs[batchID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		if err := sub.send(payload); err != nil {
			h.logger.Debug("dropping dead subscriber", "batch", batchID, "err", err)
			h.unregister(batchID, sub)
			sub.conn.Close()
		}
	}
}
