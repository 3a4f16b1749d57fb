package utils

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/docker/go-units"
)

func GetRandomUserAgent() string {
	return userAgents[rand.IntN(len(userAgents))]
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// ParseByteSize accepts plain byte counts and binary-unit sizes such as
// "64KiB", "500MB" or "1g". Units are 1024-based.
func ParseByteSize(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	n, err := units.RAMInBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", raw, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid byte size %q: must not be negative", raw)
	}
	return n, nil
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return FormatBytes(uint64(bytesPerSec)) + "/s"
}

// FormatBitrate renders a bit rate in binary megabits per second.
func FormatBitrate(bitsPerSec float64) string {
	return fmt.Sprintf("%.1f Mbps", bitsPerSec/(1024*1024))
}
