// Package statusz exposes the daemon's heartbeat on a local port: the
// latest snapshot over plain HTTP and a push stream over WebSocket. It is
// read-only — snapshots are published by the daemon loop and never flow
// back — and disabled entirely unless a port is configured.
package statusz

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dunova/silent-context-foundry/internal/logging"
	"github.com/gorilla/websocket"
)

// maxConnections bounds concurrent WebSocket clients.
const maxConnections = 16

// Snapshot is one heartbeat observation.
type Snapshot struct {
	RunID         string    `json:"runId"`
	Time          time.Time `json:"time"`
	Sessions      int       `json:"sessions"`
	Cursors       int       `json:"cursors"`
	Exports       int       `json:"exports"`
	Errors        int       `json:"errors"`
	Pending       int       `json:"pending"`
	MemMB         float64   `json:"memMb"`
	ActiveSources []string  `json:"activeSources"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 8),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

type Server struct {
	mu      sync.Mutex
	latest  Snapshot
	hasSnap bool
	clients map[*client]bool

	httpSrv  *http.Server
	listener net.Listener
}

func NewServer() *Server {
	return &Server{clients: make(map[*client]bool)}
}

// Start binds 127.0.0.1:port and serves in the background. Port 0 picks a
// free port; the bound address is available via Addr.
func (s *Server) Start(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("status listen: %w", err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Handler: mux}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Warnf("status server: %v", err)
		}
	}()

	logging.Infof("Status endpoint on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Publish stores snap as the latest snapshot and pushes it to every
// connected WebSocket client. Slow clients are dropped rather than allowed
// to stall the publisher.
func (s *Server) Publish(snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = snap
	s.hasSnap = true
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			delete(s.clients, c)
			c.close()
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	snap, ok := s.latest, s.hasSnap
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
		return
	}
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		// Local loopback endpoint; browsers are not the audience.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnf("status ws upgrade: %v", err)
		return
	}

	s.mu.Lock()
	if len(s.clients) >= maxConnections {
		s.mu.Unlock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"))
		conn.Close()
		return
	}
	c := newClient(conn)
	s.clients[c] = true
	var lastData []byte
	if s.hasSnap {
		lastData, _ = json.Marshal(s.latest)
	}
	s.mu.Unlock()

	if lastData != nil {
		c.send <- lastData
	}

	go func() {
		defer func() {
			s.mu.Lock()
			if _, ok := s.clients[c]; ok {
				delete(s.clients, c)
				c.close()
			}
			s.mu.Unlock()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Close shuts the listener and disconnects all clients.
func (s *Server) Close() {
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	s.mu.Lock()
	for c := range s.clients {
		delete(s.clients, c)
		c.close()
	}
	s.mu.Unlock()
}
