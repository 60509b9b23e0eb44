// Package web serves the arena over HTTP: the websocket endpoint that feeds
// the coordinator, plus a presence endpoint and a health check.
package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/vovakirdan/pet-arena/internal/multiplayer"
)

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	// Address is the host:port to listen on (e.g., ":8080").
	Address string

	// WSPath is the websocket endpoint path.
	WSPath string

	// AllowedOrigins lists browser origins allowed to connect.
	// Empty or "*" allows any origin.
	AllowedOrigins []string

	// ReadLimit is the maximum inbound frame size in bytes.
	ReadLimit int64

	// WriteTimeout bounds every socket write.
	WriteTimeout time.Duration

	// SendBuffer is how many outbound messages may queue per connection.
	SendBuffer int
}

// DefaultServerConfig returns a config with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      ":8080",
		WSPath:       "/ws",
		ReadLimit:    4096,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   64,
	}
}

// Coordinator is what the transport needs from the matchmaking core.
type Coordinator interface {
	Send(evt multiplayer.Event)
	Online() multiplayer.OnlinePlayersPayload
}

// Server is the HTTP and websocket front of the coordinator.
type Server struct {
	config   ServerConfig
	coord    Coordinator
	logger   *log.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

// NewServer creates a server. A nil logger discards output.
func NewServer(cfg ServerConfig, coord Coordinator, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	def := DefaultServerConfig()
	if cfg.WSPath == "" {
		cfg.WSPath = def.WSPath
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = def.SendBuffer
	}

	s := &Server{
		config: cfg,
		coord:  coord,
		logger: logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(s.config.WSPath, s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/api/online", s.handleOnline).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	s.logger.Warn("rejected origin", "origin", origin, "remote", r.RemoteAddr)
	return false
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newWSConn(ws, s.config.SendBuffer)
	s.logger.Debug("connection accepted", "conn", c.ID(), "remote", r.RemoteAddr)

	// Joined must be queued before the reader can queue any frame.
	s.coord.Send(multiplayer.JoinedEvent{Conn: c})
	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) handleOnline(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.coord.Online()); err != nil {
		s.logger.Warn("cannot write presence", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

// ListenAndServe starts the server and blocks until SIGINT/SIGTERM or a listener error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting arena server", "address", s.config.Address, "ws", s.config.WSPath)

	// Setup signal handling for graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(done)

	errc := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-done:
		s.logger.Info("shutting down...")
	case err := <-errc:
		s.logger.Error("server error", "error", err)
		return err
	}
	return s.Shutdown()
}

// Shutdown stops accepting connections.
// Upgraded websockets are not tracked by net/http; the coordinator closes them.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Addr returns the server's listen address string.
func (s *Server) Addr() string {
	return s.config.Address
}
