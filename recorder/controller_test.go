package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

type fakeDisplay struct {
	views chan View
}

func (d *fakeDisplay) Render(v View) { d.views <- v }

type fakeNotifier struct {
	errs chan error
}

func (n *fakeNotifier) Notify(err error) { n.errs <- err }

type fakeUploader struct {
	err error

	mu        sync.Mutex
	artifacts []Artifact
}

func (u *fakeUploader) Upload(_ context.Context, a Artifact) (Receipt, error) {
	u.mu.Lock()
	u.artifacts = append(u.artifacts, a)
	u.mu.Unlock()
	if u.err != nil {
		return Receipt{}, u.err
	}
	return Receipt{ID: "rec-1", URL: "/recordings/rec-1"}, nil
}

func (u *fakeUploader) uploads() []Artifact {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Artifact(nil), u.artifacts...)
}

type harness struct {
	ctrl     *Controller
	source   *FakeSource
	uploader *fakeUploader
	display  *fakeDisplay
	notifier *fakeNotifier
	receipts chan Receipt
	done     chan error
}

func startHarness(t *testing.T, openErr, uploadErr error) *harness {
	t.Helper()
	h := &harness{
		source:   NewFakeSource(openErr),
		uploader: &fakeUploader{err: uploadErr},
		display:  &fakeDisplay{views: make(chan View, 64)},
		notifier: &fakeNotifier{errs: make(chan error, 8)},
		receipts: make(chan Receipt, 8),
		done:     make(chan error, 1),
	}
	h.ctrl = New(Options{
		Source:   h.source,
		Uploader: h.uploader,
		Display:  h.display,
		Notifier: h.notifier,
		OnUpload: func(r Receipt) { h.receipts <- r },
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.done <- h.ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(waitTimeout):
			t.Error("controller did not stop")
		}
	})
	return h
}

func (h *harness) waitIcon(t *testing.T, want Icon) View {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case v := <-h.display.views:
			if v.Icon == want {
				return v
			}
		case <-deadline:
			t.Fatalf("timed out waiting for icon %v (current %v)", want, h.ctrl.View().Icon)
		}
	}
}

func (h *harness) waitErr(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.notifier.errs:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for notification")
		return nil
	}
}

func TestControllerRecordScenario(t *testing.T) {
	h := startHarness(t, nil, nil)
	h.waitIcon(t, IconPlay)

	h.ctrl.Toggle()
	h.waitIcon(t, IconStop)

	stream := h.source.Stream()
	if !stream.Emit([]byte("AA")) || !stream.Emit([]byte("BB")) {
		t.Fatal("stream not recording")
	}
	h.ctrl.Toggle()
	h.waitIcon(t, IconPlay)

	select {
	case r := <-h.receipts:
		if r.ID != "rec-1" {
			t.Errorf("receipt = %+v", r)
		}
	case <-time.After(waitTimeout):
		t.Fatal("no receipt")
	}

	uploads := h.uploader.uploads()
	if len(uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(uploads))
	}
	if string(uploads[0].Data) != "AABB" {
		t.Errorf("payload = %q, want %q", uploads[0].Data, "AABB")
	}
	if uploads[0].ContentType != "audio/ogg" {
		t.Errorf("content type = %q", uploads[0].ContentType)
	}
	if h.source.Opens() != 1 {
		t.Errorf("opens = %d, want 1", h.source.Opens())
	}
	if stream.Starts() != 1 || stream.Stops() != 1 {
		t.Errorf("starts/stops = %d/%d", stream.Starts(), stream.Stops())
	}
}

func TestControllerPermissionDenied(t *testing.T) {
	h := startHarness(t, ErrCapabilityDenied, nil)

	err := h.waitErr(t)
	if !errors.Is(err, ErrCapabilityDenied) {
		t.Fatalf("err = %v, want ErrCapabilityDenied", err)
	}

	h.ctrl.Toggle()
	h.ctrl.Toggle()
	time.Sleep(50 * time.Millisecond)

	v := h.ctrl.View()
	if !v.Disabled || v.Icon != IconDisabled || v.State != StatePermissionDenied {
		t.Errorf("view = %+v, want disabled", v)
	}
	if n := len(h.uploader.uploads()); n != 0 {
		t.Errorf("uploads = %d, want 0", n)
	}
	if h.source.Opens() != 1 {
		t.Errorf("opens = %d, want 1", h.source.Opens())
	}
}

func TestControllerUploadFailure(t *testing.T) {
	h := startHarness(t, nil, errors.New("connection refused"))
	h.source.Stream().Script([]byte("xyz"))
	h.waitIcon(t, IconPlay)

	h.ctrl.Toggle()
	h.waitIcon(t, IconStop)
	h.ctrl.Toggle()

	err := h.waitErr(t)
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("err = %v, want ErrUploadFailed", err)
	}
	h.waitIcon(t, IconPlay)
	if v := h.ctrl.View(); v.Uploading {
		t.Error("still uploading after failure")
	}

	// still usable
	h.ctrl.Toggle()
	h.waitIcon(t, IconStop)
}

func TestControllerStartFailure(t *testing.T) {
	h := startHarness(t, nil, nil)
	h.source.Stream().FailStart(errors.New("device busy"))
	h.waitIcon(t, IconPlay)

	h.ctrl.Toggle()
	if err := h.waitErr(t); err == nil {
		t.Fatal("expected error")
	}
	h.waitIcon(t, IconPlay)
	if n := len(h.uploader.uploads()); n != 0 {
		t.Errorf("uploads = %d, want 0", n)
	}
}

func TestControllerRunTwice(t *testing.T) {
	h := startHarness(t, nil, nil)
	h.waitIcon(t, IconPlay)
	if err := h.ctrl.Run(context.Background()); err == nil {
		t.Error("second Run should fail")
	}
}

func TestControllerReleasesStream(t *testing.T) {
	src := NewFakeSource(nil)
	display := &fakeDisplay{views: make(chan View, 16)}
	ctrl := New(Options{Source: src, Uploader: &fakeUploader{}, Display: display})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	waitView := func(want Icon) {
		t.Helper()
		deadline := time.After(waitTimeout)
		for {
			select {
			case v := <-display.views:
				if v.Icon == want {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %v", want)
			}
		}
	}
	waitView(IconPlay)
	ctrl.Toggle()
	waitView(IconStop)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return")
	}
	if !src.Stream().Closed() {
		t.Error("stream not closed")
	}
	if src.Stream().Stops() != 1 {
		t.Errorf("stops = %d, want 1", src.Stream().Stops())
	}
}

// gatedSource holds Open until grant is closed.
type gatedSource struct {
	grant   chan struct{}
	entered chan struct{}
	stream  *FakeStream
}

func (g *gatedSource) Open(_ context.Context) (Stream, error) {
	close(g.entered)
	<-g.grant
	return g.stream, nil
}

func TestControllerClosesStreamGrantedAfterShutdown(t *testing.T) {
	src := &gatedSource{
		grant:   make(chan struct{}),
		entered: make(chan struct{}),
		stream:  NewFakeSource(nil).Stream(),
	}
	ctrl := New(Options{Source: src, Uploader: &fakeUploader{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	select {
	case <-src.entered:
	case <-time.After(waitTimeout):
		t.Fatal("Open never called")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return")
	}

	close(src.grant)
	deadline := time.Now().Add(waitTimeout)
	for !src.stream.Closed() {
		if time.Now().After(deadline) {
			t.Fatal("stream granted after shutdown was never closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if src.stream.Starts() != 0 {
		t.Errorf("starts = %d, want 0", src.stream.Starts())
	}
}
