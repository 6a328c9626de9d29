// Package progress streams training progress to websocket clients.
package progress

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/born-ml/gradloop/internal/trainer"
)

// Message types sent to clients.
const (
	MsgRunStart = "run_start"
	MsgEpoch    = "epoch"
	MsgRunEnd   = "run_end"
)

// Message is the JSON envelope broadcast to every client.
type Message struct {
	Type  string               `json:"type"`
	Run   *trainer.RunInfo     `json:"run,omitempty"`
	Epoch *trainer.EpochReport `json:"epoch,omitempty"`
	Error string               `json:"error,omitempty"`
}

// Hub tracks connected websocket clients and fans messages out to them.
// It implements trainer.RunObserver; broadcast failures never abort a run.
type Hub struct {
	mu           sync.Mutex
	clients      map[*websocket.Conn]struct{}
	logger       *log.Logger
	writeTimeout time.Duration
}

// NewHub returns an empty hub logging to logger (the standard logger when
// nil).
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients:      make(map[*websocket.Conn]struct{}),
		logger:       logger,
		writeTimeout: 5 * time.Second,
	}
}

// Handler returns the websocket endpoint, normally mounted on /ws.
func (h *Hub) Handler() http.Handler {
	return websocket.Handler(h.serve)
}

func (h *Hub) serve(ws *websocket.Conn) {
	h.mu.Lock()
	h.clients[ws] = struct{}{}
	h.mu.Unlock()

	defer h.drop(ws)

	// Clients only listen; reading detects disconnects.
	for {
		var discard string
		if err := websocket.Message.Receive(ws, &discard); err != nil {
			if err != io.EOF {
				h.logger.Printf("progress: read from %s: %v", ws.Request().RemoteAddr, err)
			}
			return
		}
	}
}

func (h *Hub) drop(ws *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[ws]
	delete(h.clients, ws)
	h.mu.Unlock()
	if ok {
		ws.Close()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends msg to every client. Clients that fail to receive it are
// disconnected.
func (h *Hub) Broadcast(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for ws := range h.clients {
		conns = append(conns, ws)
	}
	h.mu.Unlock()

	for _, ws := range conns {
		ws.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := websocket.Message.Send(ws, string(data)); err != nil {
			h.logger.Printf("progress: dropping client %s: %v", ws.Request().RemoteAddr, err)
			h.drop(ws)
		}
	}
	return nil
}

func (h *Hub) publish(msg Message) error {
	if err := h.Broadcast(msg); err != nil {
		h.logger.Printf("progress: encode %s message: %v", msg.Type, err)
	}
	return nil
}

// OnRunStart implements trainer.RunObserver.
func (h *Hub) OnRunStart(info trainer.RunInfo) error {
	return h.publish(Message{Type: MsgRunStart, Run: &info})
}

// OnEpoch implements trainer.Observer.
func (h *Hub) OnEpoch(report trainer.EpochReport) error {
	return h.publish(Message{Type: MsgEpoch, Epoch: &report})
}

// OnRunEnd implements trainer.RunObserver.
func (h *Hub) OnRunEnd(_ trainer.History, runErr error) error {
	msg := Message{Type: MsgRunEnd}
	if runErr != nil {
		msg.Error = runErr.Error()
	}
	return h.publish(msg)
}
