package generator

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	// MaxSizeMB is the largest bounded stream the generator serves.
	MaxSizeMB    = 1024
	MaxSizeBytes = MaxSizeMB * 1024 * 1024
	bytesPerMB   = 1024 * 1024
)

var ErrInvalidSize = errors.New("size must be between 0 and 1024 MB")

// Size describes how many bytes a stream emits. The zero value is a bounded
// stream of zero bytes.
type Size struct {
	Bytes     int64
	Unbounded bool
	mb        float64 // requested megabytes, kept for the filename
}

func Unbounded() Size {
	return Size{Unbounded: true}
}

func Bounded(n int64) (Size, error) {
	if n < 0 || n > MaxSizeBytes {
		return Size{}, fmt.Errorf("%w: got %d bytes", ErrInvalidSize, n)
	}
	return Size{Bytes: n}, nil
}

// BoundedMB converts a megabyte count to a bounded size, rounding down to a
// whole byte.
func BoundedMB(mb float64) (Size, error) {
	if math.IsNaN(mb) || math.IsInf(mb, 0) || mb < 0 || mb > MaxSizeMB {
		return Size{}, fmt.Errorf("%w: got %v", ErrInvalidSize, mb)
	}
	size, err := Bounded(int64(math.Floor(mb * bytesPerMB)))
	if err != nil {
		return Size{}, err
	}
	size.mb = mb
	return size, nil
}

// ParseSize maps the mb query parameter to a stream size. A missing
// parameter or a value of zero selects an unbounded stream.
func ParseSize(raw string, present bool) (Size, error) {
	if !present {
		return Unbounded(), nil
	}
	mb, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Size{}, fmt.Errorf("%w: %q is not a number", ErrInvalidSize, raw)
	}
	if mb == 0 {
		return Unbounded(), nil
	}
	return BoundedMB(mb)
}

func (s Size) String() string {
	if s.Unbounded {
		return "unbounded"
	}
	mb := s.mb
	if mb == 0 {
		mb = float64(s.Bytes) / bytesPerMB
	}
	return strconv.FormatFloat(mb, 'f', -1, 64) + "MB"
}

// Filename is the attachment name suggested to clients.
func (s Size) Filename() string {
	return "testfile-" + s.String() + ".bin"
}
