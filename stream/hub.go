// Package stream pushes read-only training snapshots to websocket clients.
//
// Every message is an envelope {"type": ..., "data": ...}. Type is "frame"
// for a tick and "generation" for a transition summary.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/gym"
)

const (
	TypeFrame      = "frame"
	TypeGeneration = "generation"

	// DefaultBuffer is the per-client queue length. Frames beyond it are dropped.
	DefaultBuffer = 64

	writeTimeout = 5 * time.Second
)

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Frame struct {
	RunID      uuid.UUID         `json:"run_id"`
	Generation int               `json:"generation"`
	Tick       int               `json:"tick"`
	States     []*game.GameState `json:"states"`
}

type Generation struct {
	RunID           uuid.UUID `json:"run_id"`
	Generation      int       `json:"generation"`
	EpochsRemaining int       `json:"epochs_remaining"`
	Seed            int64     `json:"seed"`
	Ticks           int       `json:"ticks"`
	Best            float64   `json:"best"`
	Mean            float64   `json:"mean"`
	Std             float64   `json:"std"`
	Min             float64   `json:"min"`
	Longest         int       `json:"longest"`
	Degenerate      bool      `json:"degenerate"`
	Exhausted       bool      `json:"exhausted"`
}

func summary(r *gym.GenerationReport) Generation {
	return Generation{
		RunID:           r.RunID,
		Generation:      r.Generation,
		EpochsRemaining: r.EpochsRemaining,
		Seed:            r.Seed,
		Ticks:           r.Ticks,
		Best:            r.Best,
		Mean:            r.Mean,
		Std:             r.Std,
		Min:             r.Min,
		Longest:         r.Longest,
		Degenerate:      r.Degenerate,
		Exhausted:       r.Exhausted,
	}
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	dropped int // guarded by Hub.mu
}

// Hub fans messages out to connected clients. Publishing never blocks on a
// client: a full queue drops the message for that client.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader
	buffer   int

	mu      sync.Mutex
	clients map[*client]struct{}
	latest  *Generation
	closed  bool

	wg sync.WaitGroup
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:    logger.With("component", "stream"),
		buffer: DefaultBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.latest != nil {
		if msg, err := encode(TypeGeneration, h.latest); err == nil {
			c.send <- msg
		}
	}
	h.wg.Add(2)
	h.mu.Unlock()

	h.log.Debug("client connected", "remote", r.RemoteAddr)
	go h.writePump(c)
	go h.readPump(c)
}

// writePump owns all writes to the connection.
func (h *Hub) writePump(c *client) {
	defer h.wg.Done()
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer h.wg.Done()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) {
				h.log.Debug("client read ended", "error", err)
			}
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.log.Debug("client removed", "dropped", c.dropped)
}

func encode(kind string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: kind, Data: data})
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			c.dropped++
		}
	}
}

// PublishTick sends a frame. The snapshots are encoded before returning.
func (h *Hub) PublishTick(e gym.TickEvent) {
	if h.Clients() == 0 {
		return
	}
	msg, err := encode(TypeFrame, Frame{RunID: e.RunID, Generation: e.Generation, Tick: e.Tick, States: e.States})
	if err != nil {
		h.log.Warn("encode frame", "error", err)
		return
	}
	h.broadcast(msg)
}

// PublishGeneration sends a transition summary and keeps it for clients that
// connect later.
func (h *Hub) PublishGeneration(r *gym.GenerationReport) {
	s := summary(r)
	h.mu.Lock()
	h.latest = &s
	h.mu.Unlock()

	msg, err := encode(TypeGeneration, s)
	if err != nil {
		h.log.Warn("encode generation", "error", err)
		return
	}
	h.broadcast(msg)
}

// Latest returns the most recent generation summary, if any.
func (h *Hub) Latest() (Generation, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return Generation{}, false
	}
	return *h.latest, true
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func withCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Mux serves the hub at /ws and the latest summary at /api/latest.
func (h *Hub) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.HandleFunc("/api/latest", func(w http.ResponseWriter, r *http.Request) {
		withCORS(w)
		if r.Method == http.MethodOptions {
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		latest, ok := h.Latest()
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, latest)
	})
	return mux
}

// Serve listens on addr until ctx is cancelled, then closes the hub.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: h.Mux(), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		h.log.Info("stream listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		h.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	h.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
