package main

import (
	"sync"
	"sync/atomic"

	"scribe/beep"
	"scribe/clipboard"
	"scribe/log"
	"scribe/recorder"
)

// EventSink abstracts the display layer so both the Bubble Tea TUI and the
// headless test mode receive the same controller output.
type EventSink interface {
	View(v recorder.View)
	Error(err error)
	Uploaded(r recorder.Receipt, copied bool)
}

// feedback implements recorder.Display and recorder.Notifier. It plays the
// start and stop tones on recording transitions and copies each uploaded
// recording's link when enabled.
type feedback struct {
	sink     EventSink
	copyLink bool
	copy     func(string) error
	count    atomic.Int64

	mu   sync.Mutex
	last recorder.View
}

func newFeedback(sink EventSink, copyLink bool) *feedback {
	return &feedback{sink: sink, copyLink: copyLink, copy: clipboard.Copy}
}

func (f *feedback) Render(v recorder.View) {
	f.mu.Lock()
	prev := f.last
	f.last = v
	f.mu.Unlock()

	wasRecording := prev.State == recorder.StateRecording
	recording := v.State == recorder.StateRecording
	switch {
	case recording && !wasRecording:
		beep.PlayStart()
	case wasRecording && !recording:
		beep.PlayEnd()
	}
	f.sink.View(v)
}

func (f *feedback) Notify(err error) {
	beep.PlayError()
	f.sink.Error(err)
}

func (f *feedback) Uploaded(r recorder.Receipt) {
	f.count.Add(1)
	copied := false
	if f.copyLink && r.URL != "" {
		if err := f.copy(r.URL); err != nil {
			log.Warnf("copying link: %v", err)
		} else {
			copied = true
		}
	}
	f.sink.Uploaded(r, copied)
}

func (f *feedback) uploads() int { return int(f.count.Load()) }
