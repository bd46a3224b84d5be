package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"scribe/log"
)

type Options struct {
	Source   Source
	Uploader Uploader
	Display  Display
	Notifier Notifier

	// OnUpload is called on the event loop after each successful upload.
	OnUpload func(Receipt)
}

// Controller binds a Source and an Uploader to one recording control.
type Controller struct {
	opts    Options
	box     mailbox
	m       machine
	stream  Stream
	running atomic.Bool

	// closeMu orders a late grant against release.
	closeMu sync.Mutex
	closed  bool

	viewMu sync.Mutex
	view   View
}

func New(opts Options) *Controller {
	c := &Controller{
		opts: opts,
		box:  mailbox{ready: make(chan struct{}, 1)},
	}
	c.view = c.m.view()
	return c
}

// Toggle starts a recording when idle and stops it when recording. It is a
// no-op before access is granted or after it was refused.
func (c *Controller) Toggle() {
	c.box.post(eventToggle{})
}

// View returns the current visible control.
func (c *Controller) View() View {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	return c.view
}

// Run requests capture access and processes events until ctx is done. The
// stream is released on return.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("recorder: controller already running")
	}
	defer c.release()

	c.box.post(eventAttach{})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.box.ready:
		}
		for _, ev := range c.box.drain() {
			c.handle(ctx, ev)
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev Event) {
	if r, ok := ev.(streamReady); ok {
		// the machine only sees the format; the loop keeps the handle
		c.stream = r.stream
		ev = eventPermission{format: r.stream.Format()}
	}

	from := c.m.state
	effects := c.m.apply(ev)
	if to := c.m.state; to != from {
		log.Transition(from.String(), to.String(), ev.name())
	}

	for _, e := range effects {
		switch e := e.(type) {
		case effectOpen:
			go c.open(ctx)
		case effectStart:
			c.start(e.session)
		case effectStop:
			log.Infof("stop_requested: chunks=%d bytes=%d", e.chunks, e.bytes)
			c.stream.Stop()
		case effectUpload:
			go c.upload(ctx, e.artifact)
		case effectNotify:
			c.notify(e.err)
		case effectDone:
			log.Info("upload_done: " + e.receipt.ID)
			if c.opts.OnUpload != nil {
				c.opts.OnUpload(e.receipt)
			}
		case effectRender:
			c.render(e.view)
		}
	}
}

func (c *Controller) open(ctx context.Context) {
	stream, err := c.opts.Source.Open(ctx)
	if err == nil && stream == nil {
		err = ErrCapabilityUnavailable
	}
	if err != nil {
		c.box.post(eventPermission{err: err})
		return
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed || ctx.Err() != nil {
		// nobody will drain the mailbox any more
		stream.Close()
		return
	}
	c.box.post(streamReady{stream: stream})
}

func (c *Controller) start(id uint64) {
	err := c.stream.Start(Callbacks{
		OnChunk: func(data []byte) {
			c.box.post(eventChunk{session: id, data: data})
		},
		OnStop: func(err error) {
			c.box.post(eventStopped{session: id, err: err})
		},
	})
	if err != nil {
		c.box.post(eventStopped{session: id, err: fmt.Errorf("starting capture: %w", err)})
	}
}

func (c *Controller) upload(ctx context.Context, a Artifact) {
	receipt, err := c.opts.Uploader.Upload(ctx, a)
	c.box.post(eventUploaded{receipt: receipt, err: err})
}

func (c *Controller) notify(err error) {
	log.Errorf("recorder: %v", err)
	if c.opts.Notifier != nil {
		c.opts.Notifier.Notify(err)
	}
}

func (c *Controller) render(v View) {
	c.viewMu.Lock()
	c.view = v
	c.viewMu.Unlock()
	if c.opts.Display != nil {
		c.opts.Display.Render(v)
	}
}

func (c *Controller) release() {
	c.closeMu.Lock()
	c.closed = true
	c.closeMu.Unlock()

	// a grant that arrived after the last drain
	for _, ev := range c.box.drain() {
		if r, ok := ev.(streamReady); ok && r.stream != c.stream {
			r.stream.Close()
		}
	}

	if c.stream == nil {
		return
	}
	if c.m.state == StateRecording {
		c.stream.Stop()
	}
	c.stream.Close()
}

// streamReady hands a granted stream to the loop, which owns it from then on.
type streamReady struct{ stream Stream }

func (streamReady) name() string { return "permission" }

// mailbox is an unbounded event queue. post never blocks, so device
// callbacks can run while the loop is busy.
type mailbox struct {
	mu    sync.Mutex
	queue []Event
	ready chan struct{}
}

func (b *mailbox) post(ev Event) {
	b.mu.Lock()
	b.queue = append(b.queue, ev)
	b.mu.Unlock()
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

func (b *mailbox) drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue
	b.queue = nil
	return q
}
