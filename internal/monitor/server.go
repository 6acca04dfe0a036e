package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/tuyatap/internal/capture"
	"github.com/muurk/tuyatap/internal/logging"
	"github.com/muurk/tuyatap/internal/profile"
	"github.com/muurk/tuyatap/internal/protocol"
)

const (
	// DefaultAddr is the default listen address. Loopback only: the
	// monitor has no authentication.
	DefaultAddr = "127.0.0.1:8867"

	// sendBuffer is the per-client send queue depth. A client that falls
	// this far behind starts losing events instead of stalling the tap.
	sendBuffer = 64

	shutdownTimeout = 5 * time.Second
)

// Config holds the monitor configuration.
type Config struct {
	Addr    string               // listen address, DefaultAddr when empty
	MDNS    bool                 // advertise the endpoint over mDNS
	Session *capture.SessionInfo // sent to each client on connect (optional)
	Profile *profile.Profile     // display annotations (optional)
}

// Server fans decoded frames out to WebSocket clients.
type Server struct {
	cfg      Config
	listener net.Listener
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*wsClient]struct{}

	mdns *zeroconf.Server
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// New binds the listen address and returns a server ready to Run. Binding
// eagerly means an address conflict surfaces before any ports are opened.
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}
	return &Server{
		cfg:      cfg,
		listener: ln,
		clients:  make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Run serves until the context is cancelled. Cancellation shuts down the
// mDNS advertisement, drops every client and stops the HTTP server.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealthz)

	if s.cfg.MDNS {
		port := s.listener.Addr().(*net.TCPAddr).Port
		mdns, err := advertise(s.cfg.Session, port)
		if err != nil {
			logging.Warn("mDNS advertisement failed", zap.Error(err))
		} else {
			s.mdns = mdns
			logging.Info("Advertising monitor over mDNS",
				zap.String("service", ServiceType),
				zap.Int("port", port),
			)
		}
	}

	srv := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		if s.mdns != nil {
			s.mdns.Shutdown()
		}
		s.closeClients()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	logging.Info("Monitor listening",
		zap.String("addr", s.listener.Addr().String()),
	)

	if err := srv.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("monitor server failed: %w", err)
	}
	return nil
}

// Publish fans one decoded event out to every connected client. Slow
// clients are skipped rather than allowed to stall the tap.
func (s *Server) Publish(ev protocol.Event) {
	data, err := json.Marshal(NewEvent(ev, s.cfg.Profile))
	if err != nil {
		return
	}
	s.broadcast(data)
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.clientsMu.Unlock()

	logging.Info("Monitor client connected",
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.Int("total", total),
	)

	// Session header first, so the client knows what it is watching
	if s.cfg.Session != nil {
		if data, err := json.Marshal(s.cfg.Session); err == nil {
			client.send <- data
		}
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (drains control frames, detects disconnect)
	go func() {
		defer func() {
			// Channel closed under the write lock so a concurrent
			// broadcast can never hit a closed channel.
			s.clientsMu.Lock()
			delete(s.clients, client)
			close(client.send)
			remaining := len(s.clients)
			s.clientsMu.Unlock()
			logging.Info("Monitor client disconnected", zap.Int("total", remaining))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, "{\"status\":\"ok\",\"clients\":%d}\n", s.ClientCount())
}

func (s *Server) broadcast(data []byte) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func (s *Server) closeClients() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for client := range s.clients {
		_ = client.conn.Close()
	}
}
