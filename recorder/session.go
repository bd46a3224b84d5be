package recorder

import "time"

// Session is the capture state of one recording. It is created when
// recording starts and consumed by Finish when the device reports stopped.
type Session struct {
	ID      uint64
	started time.Time

	chunks   [][]byte
	size     int
	stopping bool
}

func newSession(id uint64) *Session {
	return &Session{ID: id, started: time.Now()}
}

func (s *Session) append(data []byte) {
	s.chunks = append(s.chunks, data)
	s.size += len(data)
}

// buffered returns the chunk and byte counts held so far.
func (s *Session) buffered() (chunks, bytes int) { return len(s.chunks), s.size }

// Finish assembles the artifact and empties the buffer.
func (s *Session) Finish(f Format) Artifact {
	data := make([]byte, 0, s.size)
	for _, c := range s.chunks {
		data = append(data, c...)
	}
	a := Artifact{
		Data:        data,
		ContentType: f.ContentType,
		Filename:    f.Filename,
		Chunks:      len(s.chunks),
		Duration:    time.Since(s.started),
		CreatedAt:   time.Now(),
	}
	s.chunks = nil
	s.size = 0
	return a
}
