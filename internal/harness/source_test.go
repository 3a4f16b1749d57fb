package harness

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/speedo/internal/generator"
	"github.com/tanq16/speedo/internal/utils"
)

type seenRequest struct {
	path    string
	busters []string
	referer string
	agent   string
	cache   string
}

func recordingServer(t *testing.T) (*httptest.Server, func() []seenRequest) {
	t.Helper()
	var mu sync.Mutex
	var seen []seenRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/payload", http.StatusFound)
	})
	mux.HandleFunc("/payload", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, seenRequest{
			path:    r.URL.Path,
			busters: r.URL.Query()[CacheBusterParam],
			referer: r.Header.Get("Referer"),
			agent:   r.Header.Get("User-Agent"),
			cache:   r.Header.Get("Cache-Control"),
		})
		mu.Unlock()
		w.Write(make([]byte, 1024))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, func() []seenRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]seenRequest(nil), seen...)
	}
}

func TestHTTPSourceRequests(t *testing.T) {
	srv, seen := recordingServer(t)
	source := NewHTTPSource(utils.NewSpeedoHTTPClient(utils.HTTPClientConfig{}))

	for range 3 {
		body, err := source.Open(context.Background(), srv.URL+"/payload?mb=1&t=fixed")
		require.NoError(t, err)
		n, err := io.Copy(io.Discard, body)
		require.NoError(t, err)
		assert.EqualValues(t, 1024, n)
		body.Close()
	}

	requests := seen()
	require.Len(t, requests, 3)
	unique := map[string]bool{}
	for _, r := range requests {
		require.Len(t, r.busters, 1)
		assert.NotEqual(t, "fixed", r.busters[0])
		unique[r.busters[0]] = true
		assert.Empty(t, r.referer)
		assert.Equal(t, utils.ToolUserAgent, r.agent)
		assert.Equal(t, "no-cache", r.cache)
	}
	assert.Len(t, unique, 3)
}

func TestHTTPSourceRedirectSendsNoReferer(t *testing.T) {
	srv, seen := recordingServer(t)
	source := NewHTTPSource(utils.NewSpeedoHTTPClient(utils.HTTPClientConfig{}))

	body, err := source.Open(context.Background(), srv.URL+"/redirect")
	require.NoError(t, err)
	io.Copy(io.Discard, body)
	body.Close()

	requests := seen()
	require.Len(t, requests, 1)
	assert.Equal(t, "/payload", requests[0].path)
	assert.Empty(t, requests[0].referer)
}

func TestHTTPSourceStatusError(t *testing.T) {
	srv, _ := recordingServer(t)
	source := NewHTTPSource(utils.NewSpeedoHTTPClient(utils.HTTPClientConfig{}))

	_, err := source.Open(context.Background(), srv.URL+"/missing")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestRunAgainstGeneratorServer(t *testing.T) {
	srv := httptest.NewServer(generator.NewServer(generator.Config{}).Handler())
	defer srv.Close()

	client := utils.NewSpeedoHTTPClient(utils.HTTPClientConfig{})
	defer client.CloseIdleConnections()
	h := New(NewSource(client))
	run, err := h.Start(context.Background(), Options{
		Target:      srv.URL + generator.DefaultPath + "?mb=2",
		Concurrency: 4,
		ByteCap:     32 * 1024 * 1024,
	})
	require.NoError(t, err)

	result := waitResult(t, run)
	assert.Equal(t, ReasonCapReached, result.Reason)
	assert.GreaterOrEqual(t, result.Total, int64(32*1024*1024))
}

func TestAddCacheBuster(t *testing.T) {
	link, err := AddCacheBuster("https://example.net/speed/down?mb=100")
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "100", u.Query().Get("mb"))
	assert.NotEmpty(t, u.Query().Get(CacheBusterParam))

	_, err = AddCacheBuster("ftp://example.net/file")
	assert.Error(t, err)
}

func TestParseLocalTarget(t *testing.T) {
	size, err := ParseLocalTarget("local:")
	require.NoError(t, err)
	assert.True(t, size.Unbounded)

	size, err = ParseLocalTarget("local:?mb=2")
	require.NoError(t, err)
	assert.EqualValues(t, 2*1024*1024, size.Bytes)

	_, err = ParseLocalTarget("local:?mb=5000")
	assert.ErrorIs(t, err, generator.ErrInvalidSize)

	_, err = ParseLocalTarget("http://example.net")
	assert.Error(t, err)

	assert.True(t, IsLocalTarget("local:?mb=1"))
	assert.False(t, IsLocalTarget("https://local.example"))
}

func TestLocalSourceHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	body, err := (&LocalSource{ChunkSize: 1024}).Open(ctx, "local:")
	require.NoError(t, err)
	defer body.Close()

	buf := make([]byte, 512)
	n, err := body.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 512, n)

	cancel()
	_, err = body.Read(buf)
	assert.ErrorIs(t, err, context.Canceled)
}
