package config

import (
	"fmt"
	u "net/url"

	"github.com/tanq16/speedo/internal/generator"
	"github.com/tanq16/speedo/internal/harness"
	"github.com/tanq16/speedo/internal/utils"
)

func splitProxyAuth(proxyURL, username, password string) (string, string, string) {
	parsedProxy, err := u.Parse(proxyURL)
	if proxyURL == "" || err != nil || parsedProxy.User == nil || username != "" {
		return proxyURL, username, password
	}
	username = parsedProxy.User.Username()
	if p, set := parsedProxy.User.Password(); set {
		password = p
	}
	// Credentials travel in the client config, not the URL
	parsedProxy.User = nil
	return parsedProxy.String(), username, password
}

func (c *Config) ServerConfig() (generator.Config, error) {
	chunkSize, err := utils.ParseByteSize(c.ChunkSize)
	if err != nil {
		return generator.Config{}, fmt.Errorf("chunk-size: %w", err)
	}
	if chunkSize > generator.MaxChunkSize {
		return generator.Config{}, fmt.Errorf("chunk-size: must not exceed %s", utils.FormatBytes(generator.MaxChunkSize))
	}
	writeLimit, err := utils.ParseByteSize(c.WriteLimit)
	if err != nil {
		return generator.Config{}, fmt.Errorf("write-limit: %w", err)
	}
	readLimit, err := utils.ParseByteSize(c.ReadLimit)
	if err != nil {
		return generator.Config{}, fmt.Errorf("read-limit: %w", err)
	}
	return generator.Config{
		Addr:         c.Listen,
		Path:         c.Path,
		ChunkSize:    int(chunkSize),
		WriteLimit:   writeLimit,
		ReadLimit:    readLimit,
		StallTimeout: c.StallTimeout,
	}, nil
}

func (c *Config) RunOptions(target string) (harness.Options, error) {
	byteCap, err := utils.ParseByteSize(c.Cap)
	if err != nil {
		return harness.Options{}, fmt.Errorf("cap: %w", err)
	}
	readBuffer, err := utils.ParseByteSize(c.ReadBufferSize)
	if err != nil {
		return harness.Options{}, fmt.Errorf("read-buffer: %w", err)
	}
	if readBuffer > harness.MaxReadBufferSize {
		return harness.Options{}, fmt.Errorf("read-buffer: must not exceed %s", utils.FormatBytes(harness.MaxReadBufferSize))
	}
	opts := harness.Options{
		Target:         target,
		Concurrency:    c.Connections,
		ByteCap:        byteCap,
		Duration:       c.Duration,
		SampleInterval: c.Interval,
		RetryDelay:     c.RetryDelay,
		ReadBufferSize: int(readBuffer),
	}.WithDefaults()
	return opts, opts.Validate()
}
