package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/conduitio/bwlimit"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAddr         = ":8080"
	DefaultPath         = "/speed/down"
	DefaultStallTimeout = 30 * time.Second
	shutdownTimeout     = 5 * time.Second
)

type Config struct {
	Addr         string
	Path         string
	ChunkSize    int
	WriteLimit   int64 // bytes per second per connection, 0 = unlimited
	ReadLimit    int64
	StallTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	c.ChunkSize = min(c.ChunkSize, MaxChunkSize)
}

type Server struct {
	cfg Config
	mux *http.ServeMux
}

func NewServer(cfg Config) *Server {
	cfg.applyDefaults()
	metrics := NewMetrics()
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, NewHandler(cfg, metrics))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return &Server{cfg: cfg, mux: mux}
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Listen opens the TCP listener, wrapped in a bandwidth limiter when either
// limit is set.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("error listening on %s: %w", s.cfg.Addr, err)
	}
	if s.cfg.WriteLimit > 0 || s.cfg.ReadLimit > 0 {
		log.Info().Str("op", "generator/server").
			Int64("writeLimit", s.cfg.WriteLimit).
			Int64("readLimit", s.cfg.ReadLimit).
			Msg("bandwidth limits enabled")
		return bwlimit.NewListener(ln, bwlimit.Byte(s.cfg.WriteLimit), bwlimit.Byte(s.cfg.ReadLimit)), nil
	}
	return ln, nil
}

// Serve runs until ctx is cancelled, then shuts down gracefully. Open
// unbounded streams are cut when the shutdown deadline passes.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("op", "generator/server").Str("addr", ln.Addr().String()).Str("path", s.cfg.Path).Msg("serving streams")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Str("op", "generator/server").Err(err).Msg("forcing close")
		srv.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Str("op", "generator/server").Msg("server stopped")
	return nil
}
