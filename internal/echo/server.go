// Package echo provides the WebSocket server the greeter talks to: it
// accepts any number of peers and writes every message straight back,
// optionally prefixed.
package echo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Config configures an echo Server.
type Config struct {
	Addr         string        // Listen address (e.g., 127.0.0.1:5050)
	Path         string        // HTTP path that accepts upgrades
	Prefix       string        // Prepended to every echoed payload
	WriteTimeout time.Duration // Write deadline per echoed frame
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:5050",
		Path:         "/",
		WriteTimeout: 5 * time.Second,
	}
}

// Server echoes WebSocket messages back to their sender.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	peers map[*websocket.Conn]string
}

// NewServer creates an echo Server. It does not listen.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		peers: make(map[*websocket.Conn]string),
	}
}

// Handler returns an http.Handler serving upgrades on the configured path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.serveWS)
	return mux
}

// PeerCount returns the number of connected peers.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// ListenAndServe listens on the configured address and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes every peer.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("listening", "addr", ln.Addr().String(), "path", s.cfg.Path)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Hijacked connections are not tracked by http.Server
		s.closePeers()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "peer", r.RemoteAddr, "error", err)
		return
	}

	peer := r.RemoteAddr
	s.track(conn, peer)
	s.logger.Info("tcp connection from", "peer", peer)

	defer func() {
		s.untrack(conn)
		conn.Close()
		s.logger.Info("disconnected", "peer", peer)
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read ended", "peer", peer, "error", err)
			}
			return
		}

		s.logger.Debug("received a message", "peer", peer, "data", string(data))

		out := make([]byte, 0, len(s.cfg.Prefix)+len(data))
		out = append(out, s.cfg.Prefix...)
		out = append(out, data...)

		if s.cfg.WriteTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		}
		if err := conn.WriteMessage(msgType, out); err != nil {
			s.logger.Warn("echo write failed", "peer", peer, "error", err)
			return
		}
	}
}

func (s *Server) track(conn *websocket.Conn, peer string) {
	s.mu.Lock()
	s.peers[conn] = peer
	s.mu.Unlock()
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.peers, conn)
	s.mu.Unlock()
}

// closePeers sends a going-away close frame to every peer and drops it.
func (s *Server) closePeers() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.peers))
	for conn := range s.peers {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}
}
