package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"scribe/audio"
	"scribe/beep"
	"scribe/log"
	"scribe/mic"
	"scribe/recorder"
)

const waitTimeout = 30 * time.Second

// printSink writes every controller output as one line and remembers the
// last view for WAIT.
type printSink struct {
	mu   sync.Mutex
	w    io.Writer
	seq  int
	last recorder.View
}

func (s *printSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format+"\n", args...)
}

func (s *printSink) View(v recorder.View) {
	s.mu.Lock()
	s.seq++
	s.last = v
	s.mu.Unlock()
	s.printf("VIEW %s %s uploading=%t", v.State, v.Icon, v.Uploading)
}

func (s *printSink) state() (int, recorder.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq, s.last
}

func (s *printSink) Error(err error) {
	s.printf("ERROR %v", err)
}

func (s *printSink) Uploaded(r recorder.Receipt, copied bool) {
	s.printf("UPLOADED %s %s copied=%t", r.ID, r.URL, copied)
}

// settled reports whether the controller has nothing in flight.
func settled(v recorder.View) bool {
	switch v.State {
	case recorder.StateIdle:
		return !v.Uploading
	case recorder.StatePermissionDenied:
		return true
	}
	return false
}

// runTestMode drives the full client from stdin against a WAV file replayed
// in real time. Commands: TOGGLE, WAIT, SLEEP <ms>, QUIT.
func runTestMode(ctx context.Context, wavPath string, up recorder.Uploader, in io.Reader, out io.Writer) error {
	beep.Disable()

	fakeCtx, err := audio.NewFakeContext(wavPath, true)
	if err != nil {
		return fmt.Errorf("loading WAV: %w", err)
	}
	return driveTest(ctx, fakeCtx, up, in, out)
}

func driveTest(ctx context.Context, actx audio.Context, up recorder.Uploader, in io.Reader, out io.Writer) error {
	sink := &printSink{w: out, last: recorder.ViewFor(recorder.StateUninitialized, false)}
	fb := newFeedback(sink, false)
	ctrl := recorder.New(recorder.Options{
		Source: mic.NewSource(mic.Options{
			NewContext: func() (audio.Context, error) { return actx, nil },
		}),
		Uploader: up,
		Display:  fb,
		Notifier: fb,
		OnUpload: fb.Uploaded,
	})

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// want is the render count WAIT must reach: every accepted toggle
	// renders at least once more.
	want := 1
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch {
		case cmd == "":
		case cmd == "TOGGLE":
			seq, v := sink.state()
			if v.State == recorder.StateIdle || v.State == recorder.StateRecording {
				want = seq + 1
			}
			ctrl.Toggle()
		case cmd == "WAIT":
			if err := waitSettled(ctx, sink, want); err != nil {
				return err
			}
		case cmd == "QUIT":
			return nil
		case strings.HasPrefix(cmd, "SLEEP "):
			ms, err := strconv.Atoi(strings.TrimSpace(cmd[6:]))
			if err != nil {
				return fmt.Errorf("bad SLEEP %q", cmd[6:])
			}
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			log.Warnf("test mode: unknown command %q", cmd)
			sink.printf("UNKNOWN %s", cmd)
		}
	}
	return scanner.Err()
}

// waitSettled blocks until the last toggle has fully played out: the
// recording stopped and its upload finished.
func waitSettled(ctx context.Context, sink *printSink, want int) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(waitTimeout)
	for {
		seq, v := sink.state()
		if seq >= want && settled(v) {
			return nil
		}
		select {
		case <-ticker.C:
		case <-deadline:
			return fmt.Errorf("WAIT timed out in %s", v.State)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
