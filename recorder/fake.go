package recorder

import (
	"context"
	"sync"
)

// FakeSource grants (or refuses) access without a device. The stream it
// hands out emits whatever chunks the caller scripts.
type FakeSource struct {
	err    error
	stream *FakeStream

	mu    sync.Mutex
	opens int
}

// NewFakeSource returns a source whose Open fails with err, or succeeds
// when err is nil.
func NewFakeSource(err error) *FakeSource {
	return &FakeSource{
		err: err,
		stream: &FakeStream{format: Format{
			ContentType: "audio/ogg",
			Filename:    "recording.ogg",
		}},
	}
}

func (f *FakeSource) Open(_ context.Context) (Stream, error) {
	f.mu.Lock()
	f.opens++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func (f *FakeSource) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *FakeSource) Stream() *FakeStream { return f.stream }

type FakeStream struct {
	format Format

	mu       sync.Mutex
	cb       *Callbacks
	script   [][]byte
	startErr error
	starts   int
	stops    int
	closed   bool
}

// Script sets chunks delivered synchronously by every Start.
func (s *FakeStream) Script(chunks ...[]byte) {
	s.mu.Lock()
	s.script = chunks
	s.mu.Unlock()
}

// FailStart makes the next Start calls return err.
func (s *FakeStream) FailStart(err error) {
	s.mu.Lock()
	s.startErr = err
	s.mu.Unlock()
}

func (s *FakeStream) Format() Format { return s.format }

func (s *FakeStream) Start(cb Callbacks) error {
	s.mu.Lock()
	if s.startErr != nil {
		s.mu.Unlock()
		return s.startErr
	}
	s.starts++
	s.cb = &cb
	script := s.script
	s.mu.Unlock()

	for _, c := range script {
		cb.OnChunk(c)
	}
	return nil
}

// Emit delivers one chunk to the running recording. It reports false when
// nothing is recording.
func (s *FakeStream) Emit(chunk []byte) bool {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb == nil {
		return false
	}
	cb.OnChunk(chunk)
	return true
}

func (s *FakeStream) Stop() {
	s.mu.Lock()
	cb := s.cb
	s.cb = nil
	if cb != nil {
		s.stops++
	}
	s.mu.Unlock()
	if cb != nil {
		cb.OnStop(nil)
	}
}

func (s *FakeStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *FakeStream) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *FakeStream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func (s *FakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
