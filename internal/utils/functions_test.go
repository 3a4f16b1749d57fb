package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tcs := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "0", want: 0},
		{raw: "4096", want: 4096},
		{raw: "64KiB", want: 64 * 1024},
		{raw: "500MB", want: 500 * 1024 * 1024},
		{raw: "1g", want: 1024 * 1024 * 1024},
		{raw: " 2m ", want: 2 * 1024 * 1024},
		{raw: "-5", wantErr: true},
		{raw: "lots", wantErr: true},
	}
	for _, tc := range tcs {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseByteSize(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.50 KB", FormatBytes(1536))
	assert.Equal(t, "1.00 GB", FormatBytes(1<<30))

	assert.Equal(t, "0 B/s", FormatRate(0))
	assert.Equal(t, "2.00 KB/s", FormatRate(2048))

	assert.Equal(t, "8.0 Mbps", FormatBitrate(8*1024*1024))
	assert.Equal(t, "0.0 Mbps", FormatBitrate(0))
}

func TestParseHeaderArgs(t *testing.T) {
	headers := ParseHeaderArgs([]string{
		"Authorization: Bearer abc",
		"X-Trace:  a:b ",
		"malformed",
	})
	assert.Equal(t, map[string]string{
		"Authorization": "Bearer abc",
		"X-Trace":       "a:b",
	}, headers)
}

func TestRandomUserAgent(t *testing.T) {
	assert.Contains(t, userAgents, GetRandomUserAgent())
}

func TestSpeedoHTTPClientHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	client := NewSpeedoHTTPClient(HTTPClientConfig{
		UserAgent: "bench/1",
		Headers:   map[string]string{"X-Token": "secret"},
	})
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Referer", "https://elsewhere.example")
	res, err := client.Do(req)
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, "bench/1", got.Get("User-Agent"))
	assert.Equal(t, "secret", got.Get("X-Token"))
	assert.Empty(t, got.Get("Referer"))
}
