package generator

import (
	"io"
	"iter"
)

const (
	// DefaultChunkSize is the nominal length of every emitted chunk.
	DefaultChunkSize = 64 * 1024
	MaxChunkSize     = 16 * 1024 * 1024
)

type StreamOption func(*Stream)

func WithChunkSize(n int) StreamOption {
	return func(s *Stream) {
		if n > 0 {
			s.chunkSize = min(n, MaxChunkSize)
		}
	}
}

// Stream is a pull-based sequence of filler chunks. A chunk is produced only
// when the consumer asks for the next one, so a slow consumer holds at most
// one chunk of memory. Streams are not safe for concurrent use.
type Stream struct {
	size      Size
	chunkSize int
	sent      int64
	closed    bool
	buf       []byte
	pending   []byte // unread tail of the last chunk handed to Read
}

func NewStream(size Size, opts ...StreamOption) *Stream {
	s := &Stream{size: size, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(s)
	}
	// Content is irrelevant; every chunk aliases one zeroed buffer.
	s.buf = make([]byte, s.chunkSize)
	return s
}

// Next returns the next chunk, or false once the stream is finished. The
// returned slice is only valid until the following call.
func (s *Stream) Next() ([]byte, bool) {
	if s.closed {
		return nil, false
	}
	n := int64(s.chunkSize)
	if !s.size.Unbounded {
		remaining := s.size.Bytes - s.sent
		if remaining <= 0 {
			s.closed = true
			return nil, false
		}
		n = min(n, remaining)
	}
	s.sent += n
	return s.buf[:n], true
}

// Chunks exposes the stream as an iterator. Breaking out of the loop closes
// the stream.
func (s *Stream) Chunks() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			chunk, ok := s.Next()
			if !ok {
				return
			}
			if !yield(chunk) {
				s.Close()
				return
			}
		}
	}
}

func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(s.pending) == 0 {
		chunk, ok := s.Next()
		if !ok {
			return 0, io.EOF
		}
		s.pending = chunk
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// WriteTo drains the stream into w one chunk at a time. Each write must
// complete before the next chunk is produced, which is what paces the
// generator to the consumer.
func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	var written int64
	if len(s.pending) > 0 {
		n, err := w.Write(s.pending)
		written += int64(n)
		s.pending = nil
		if err != nil {
			s.Close()
			return written, err
		}
	}
	for chunk := range s.Chunks() {
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			s.Close()
			return written, err
		}
	}
	return written, nil
}

// Close ends the stream from the consumer side.
func (s *Stream) Close() error {
	s.closed = true
	s.pending = nil
	return nil
}

// Sent reports how many bytes have been produced so far.
func (s *Stream) Sent() int64 {
	return s.sent
}
