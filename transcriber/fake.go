package transcriber

import (
	"context"
	"fmt"
	"sync"

	"scribe/nettrace"
)

type FakeTranscriber struct {
	text string
	err  error
	lang string

	mu    sync.Mutex
	calls []string
	gate  <-chan struct{}
}

func NewFake(text string, err error) *FakeTranscriber {
	return &FakeTranscriber{text: text, err: err}
}

func (f *FakeTranscriber) Name() string           { return "fake" }
func (f *FakeTranscriber) SetLanguage(lang string) { f.lang = lang }
func (f *FakeTranscriber) GetLanguage() string     { return f.lang }

// Hold makes Transcribe wait until gate is closed.
func (f *FakeTranscriber) Hold(gate <-chan struct{}) {
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
}

func (f *FakeTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filename)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, fmt.Errorf("fake transcriber error: %w", f.err)
	}
	return &Result{Text: f.text, Metrics: &nettrace.NetworkMetrics{}, RateLimit: "?/?"}, nil
}

// Calls returns the filenames passed to Transcribe.
func (f *FakeTranscriber) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
