// Package api exposes the playlist and the player over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/reelplay/reelplay-agent/internal/catalog"
	"github.com/reelplay/reelplay-agent/internal/logging"
	"github.com/reelplay/reelplay-agent/internal/pipeline"
	"github.com/reelplay/reelplay-agent/internal/playback"
	"github.com/reelplay/reelplay-agent/internal/playlist"
	"github.com/reelplay/reelplay-agent/internal/thumbnail"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

type ServerConfig struct {
	Port          int
	Version       string
	Store         *playlist.Store
	Player        Player
	Frame         FrameSource
	Events        http.Handler
	Thumbnails    *thumbnail.Generator
	Media         playback.MediaService
	Repository    catalog.Repository
	Doctor        *pipeline.Doctor
	PlaylistFile  string
	ImageDuration float64
	CORSOrigins   []string
	Logger        *slog.Logger
	StartTime     time.Time
	DeviceID      string
}

func NewServer(cfg ServerConfig) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// No WriteTimeout: event streams and media bodies stay open.
			IdleTimeout: 60 * time.Second,
		},
		logger: logging.WithComponent(logging.OrDiscard(cfg.Logger), "api"),
	}
}

// Listen binds the loopback address. Binding separately from Serve lets
// the caller fail fast on a busy port.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Start serves until Shutdown, binding first when Listen was not called.
func (s *Server) Start() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		ln = s.listener
		s.mu.Unlock()
	}

	s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Addr is the bound address once listening, the configured one before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}
