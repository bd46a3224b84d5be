// Package recorder implements the record/stop/upload lifecycle of a single
// audio control. A Controller asks its Source for microphone access once,
// buffers chunks while recording and hands the finished Artifact to an
// Uploader. All state changes happen on the controller's event loop.
package recorder

import (
	"context"
	"time"
)

// Format describes the encoded payload a Stream produces.
type Format struct {
	ContentType string
	Filename    string
}

// Callbacks are invoked by a Stream while it is recording. OnChunk may be
// called from any goroutine. OnStop is called exactly once per Start, after
// the last OnChunk.
type Callbacks struct {
	OnChunk func(data []byte)
	OnStop  func(err error)
}

// Stream is an open, exclusively owned capture handle.
type Stream interface {
	Format() Format
	Start(cb Callbacks) error
	Stop()
	Close()
}

// Source grants access to a capture device. Open blocks until access is
// granted or refused and is called at most once per Controller.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Artifact is a finished recording: the concatenation of every chunk of one
// session in arrival order.
type Artifact struct {
	Data        []byte
	ContentType string
	Filename    string
	Chunks      int
	Duration    time.Duration
	CreatedAt   time.Time
}

// Receipt is what the upload sink returns for a stored recording.
type Receipt struct {
	ID  string
	URL string
}

type Uploader interface {
	Upload(ctx context.Context, a Artifact) (Receipt, error)
}

// Display renders the visible control.
type Display interface {
	Render(v View)
}

// Notifier surfaces errors to the user.
type Notifier interface {
	Notify(err error)
}
