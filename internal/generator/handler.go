package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type handler struct {
	chunkSize    int
	stallTimeout time.Duration
	metrics      *Metrics
}

// NewHandler serves synthetic payloads sized by the mb query parameter.
func NewHandler(cfg Config, metrics *Metrics) http.Handler {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &handler{
		chunkSize:    cfg.ChunkSize,
		stallTimeout: cfg.StallTimeout,
		metrics:      metrics,
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	size, err := ParseSize(query.Get("mb"), query.Has("mb"))
	if err != nil {
		h.metrics.rejected.Inc()
		log.Warn().Str("op", "generator/handler").Str("remote", r.RemoteAddr).Err(err).Msg("rejected stream request")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "application/octet-stream")
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", size.Filename()))
	header.Set("Cache-Control", "no-store")
	if !size.Unbounded {
		header.Set("Content-Length", strconv.FormatInt(size.Bytes, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	stream := NewStream(size, WithChunkSize(h.chunkSize))
	h.metrics.streamOpened(size)
	start := time.Now()
	written, err := stream.WriteTo(&pacedWriter{
		ctx:   r.Context(),
		w:     w,
		rc:    http.NewResponseController(w),
		stall: h.stallTimeout,
	})
	h.metrics.streamClosed(written)

	event := log.Debug()
	if err != nil && !errors.Is(err, context.Canceled) {
		event = log.Info().Err(err)
	}
	event.Str("op", "generator/handler").
		Str("remote", r.RemoteAddr).
		Str("size", size.String()).
		Int64("written", written).
		Dur("elapsed", time.Since(start)).
		Msg("stream finished")
}

// pacedWriter flushes every chunk to the client and bounds how long a single
// chunk may wait on a consumer that stopped reading.
type pacedWriter struct {
	ctx   context.Context
	w     http.ResponseWriter
	rc    *http.ResponseController
	stall time.Duration
}

func (p *pacedWriter) Write(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	if p.stall > 0 {
		if err := p.rc.SetWriteDeadline(time.Now().Add(p.stall)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return 0, err
		}
	}
	n, err := p.w.Write(b)
	if err != nil {
		return n, err
	}
	if err := p.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return n, err
	}
	return n, nil
}
