package harness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/tanq16/speedo/internal/generator"
	"github.com/tanq16/speedo/internal/utils"
)

// CacheBusterParam is the query parameter that makes every request URL
// unique so intermediate caches never answer it.
const CacheBusterParam = "t"

// LocalScheme selects the in-process generator, e.g. "local:?mb=100".
const LocalScheme = "local"

// Source opens one transfer against a target. Implementations must honor
// ctx for the whole life of the returned body.
type Source interface {
	Open(ctx context.Context, target string) (io.ReadCloser, error)
}

type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// NewSource routes local: targets to the in-process generator and
// everything else over HTTP.
func NewSource(client utils.HTTPDoer) Source {
	return &routingSource{
		remote: &HTTPSource{client: client},
		local:  &LocalSource{},
	}
}

type routingSource struct {
	remote Source
	local  Source
}

func (r *routingSource) Open(ctx context.Context, target string) (io.ReadCloser, error) {
	if IsLocalTarget(target) {
		return r.local.Open(ctx, target)
	}
	return r.remote.Open(ctx, target)
}

func IsLocalTarget(target string) bool {
	return strings.HasPrefix(target, LocalScheme+":")
}

type HTTPSource struct {
	client utils.HTTPDoer
}

func NewHTTPSource(client utils.HTTPDoer) *HTTPSource {
	return &HTTPSource{client: client}
}

func (s *HTTPSource) Open(ctx context.Context, target string) (io.ReadCloser, error) {
	link, err := AddCacheBuster(target)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating GET request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing GET request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp.Body, nil
}

// AddCacheBuster appends a random t parameter, replacing any existing one.
func AddCacheBuster(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	q := u.Query()
	q.Set(CacheBusterParam, uuid.NewString())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// LocalSource reads straight from an in-process generator stream, which
// measures the harness itself without a network in the way.
type LocalSource struct {
	ChunkSize int
}

func (s *LocalSource) Open(ctx context.Context, target string) (io.ReadCloser, error) {
	size, err := ParseLocalTarget(target)
	if err != nil {
		return nil, err
	}
	stream := generator.NewStream(size, generator.WithChunkSize(s.ChunkSize))
	return &contextReader{ctx: ctx, stream: stream}, nil
}

// ParseLocalTarget reads the stream size from a local: target using the
// same mb rules as the HTTP endpoint.
func ParseLocalTarget(target string) (generator.Size, error) {
	u, err := url.Parse(target)
	if err != nil {
		return generator.Size{}, fmt.Errorf("invalid local target: %w", err)
	}
	if u.Scheme != LocalScheme {
		return generator.Size{}, fmt.Errorf("not a local target: %q", target)
	}
	q := u.Query()
	return generator.ParseSize(q.Get("mb"), q.Has("mb"))
}

type contextReader struct {
	ctx    context.Context
	stream *generator.Stream
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.stream.Read(p)
}

func (r *contextReader) Close() error {
	return r.stream.Close()
}
