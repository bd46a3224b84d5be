package mic

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mewkiz/flac"

	"scribe/audio"
	"scribe/encoder"
	"scribe/recorder"
)

func sinePCM(samples int) []byte {
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16((i*53)%3000-1500)))
	}
	return pcm
}

func fakeSource(ctx *audio.FakeContext) *Source {
	return NewSource(Options{NewContext: func() (audio.Context, error) { return ctx, nil }})
}

type collector struct {
	mu      sync.Mutex
	chunks  [][]byte
	stopped chan error
}

func newCollector() *collector {
	return &collector{stopped: make(chan error, 1)}
}

func (c *collector) callbacks() recorder.Callbacks {
	return recorder.Callbacks{
		OnChunk: func(b []byte) {
			c.mu.Lock()
			c.chunks = append(c.chunks, b)
			c.mu.Unlock()
		},
		OnStop: func(err error) { c.stopped <- err },
	}
}

func (c *collector) data() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Join(c.chunks, nil)
}

func decodedSamples(t *testing.T, data []byte) int {
	t.Helper()
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("flac.New: %v", err)
	}
	n := 0
	for {
		f, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			return n
		}
		if err != nil {
			t.Fatalf("ParseNext: %v", err)
		}
		n += len(f.Subframes[0].Samples)
	}
}

func TestStreamProducesFlacChunks(t *testing.T) {
	pcm := sinePCM(encoder.BlockSize*2 + 500)
	src := fakeSource(audio.NewFakeContextPCM(pcm))

	stream, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	if f := stream.Format(); f.ContentType != "audio/flac" || f.Filename != "recording.flac" {
		t.Errorf("format = %+v", f)
	}

	c := newCollector()
	if err := stream.Start(c.callbacks()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream.Stop()

	select {
	case err := <-c.stopped:
		if err != nil {
			t.Fatalf("OnStop: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("OnStop not called")
	}

	if len(c.chunks) < 3 {
		t.Errorf("chunks = %d, want header, frames and tail", len(c.chunks))
	}
	data := c.data()
	if string(data[:4]) != "fLaC" {
		t.Fatal("missing FLAC magic")
	}
	if n := decodedSamples(t, data); n != len(pcm)/2 {
		t.Errorf("decoded %d samples, want %d", n, len(pcm)/2)
	}
}

func TestStreamRestartsWithFreshFile(t *testing.T) {
	src := fakeSource(audio.NewFakeContextPCM(sinePCM(1000)))
	stream, err := src.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()

	for i := range 2 {
		c := newCollector()
		if err := stream.Start(c.callbacks()); err != nil {
			t.Fatalf("Start #%d: %v", i, err)
		}
		if err := stream.Start(c.callbacks()); err == nil {
			t.Error("second Start while recording should fail")
		}
		stream.Stop()
		<-c.stopped
		if data := c.data(); string(data[:4]) != "fLaC" {
			t.Errorf("recording %d does not start with FLAC magic", i)
		}
	}
}

func TestStopWithoutStart(t *testing.T) {
	stream, err := fakeSource(audio.NewFakeContextPCM(nil)).Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	stream.Stop()
	stream.Close()
	if err := stream.Start(newCollector().callbacks()); err == nil {
		t.Error("Start after Close should fail")
	}
}

func TestOpenErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*audio.FakeContext)
		ctxEr error
		want  error
	}{
		{"backend", nil, errors.New("no pulse server"), recorder.ErrCapabilityUnavailable},
		{"no devices", func(c *audio.FakeContext) { c.NoDevices = true }, nil, recorder.ErrCapabilityUnavailable},
		{"capture refused", func(c *audio.FakeContext) { c.CaptureErr = errors.New("access denied") }, nil, recorder.ErrCapabilityDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := audio.NewFakeContextPCM(nil)
			if tt.setup != nil {
				tt.setup(fc)
			}
			src := NewSource(Options{NewContext: func() (audio.Context, error) {
				if tt.ctxEr != nil {
					return nil, tt.ctxEr
				}
				return fc, nil
			}})
			_, err := src.Open(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOpenUnknownDevice(t *testing.T) {
	fc := audio.NewFakeContextPCM(nil)
	src := NewSource(Options{
		NewContext: func() (audio.Context, error) { return fc, nil },
		Device:     "Studio Mic",
	})
	if _, err := src.Open(context.Background()); !errors.Is(err, recorder.ErrCapabilityUnavailable) {
		t.Errorf("err = %v, want ErrCapabilityUnavailable", err)
	}
}

func TestLevelCallback(t *testing.T) {
	var mu sync.Mutex
	var levels []float64
	src := NewSource(Options{
		NewContext: func() (audio.Context, error) { return audio.NewFakeContextPCM(sinePCM(3000)), nil },
		Level: func(rms float64) {
			mu.Lock()
			levels = append(levels, rms)
			mu.Unlock()
		},
	})
	stream, err := src.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()
	c := newCollector()
	if err := stream.Start(c.callbacks()); err != nil {
		t.Fatal(err)
	}
	stream.Stop()
	<-c.stopped

	mu.Lock()
	defer mu.Unlock()
	if len(levels) == 0 {
		t.Fatal("no level updates")
	}
	for _, l := range levels {
		if l <= 0 || l > 1 {
			t.Errorf("level = %v out of range", l)
		}
	}
}

func TestRMS(t *testing.T) {
	if RMS(nil) != 0 {
		t.Error("RMS(nil) != 0")
	}
	if got := RMS(make([]byte, 64)); got != 0 {
		t.Errorf("silence RMS = %v", got)
	}
	full := make([]byte, 4)
	binary.LittleEndian.PutUint16(full, uint16(0x8000)) // -32768
	binary.LittleEndian.PutUint16(full[2:], uint16(0x8000))
	if got := RMS(full); got != 1 {
		t.Errorf("full scale RMS = %v, want 1", got)
	}
}

type memUploader struct {
	got chan recorder.Artifact
}

func (u *memUploader) Upload(_ context.Context, a recorder.Artifact) (recorder.Receipt, error) {
	u.got <- a
	return recorder.Receipt{ID: "1"}, nil
}

type iconDisplay struct{ views chan recorder.View }

func (d *iconDisplay) Render(v recorder.View) { d.views <- v }

func TestControllerRecordsFlac(t *testing.T) {
	pcm := sinePCM(encoder.BlockSize + 10)
	up := &memUploader{got: make(chan recorder.Artifact, 1)}
	display := &iconDisplay{views: make(chan recorder.View, 32)}
	ctrl := recorder.New(recorder.Options{
		Source:   fakeSource(audio.NewFakeContextPCM(pcm)),
		Uploader: up,
		Display:  display,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	wait := func(icon recorder.Icon) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case v := <-display.views:
				if v.Icon == icon {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %v", icon)
			}
		}
	}
	wait(recorder.IconPlay)
	ctrl.Toggle()
	wait(recorder.IconStop)
	ctrl.Toggle()

	select {
	case a := <-up.got:
		if a.ContentType != "audio/flac" || a.Filename != "recording.flac" {
			t.Errorf("artifact meta = %s %s", a.ContentType, a.Filename)
		}
		if n := decodedSamples(t, a.Data); n != len(pcm)/2 {
			t.Errorf("decoded %d samples, want %d", n, len(pcm)/2)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no upload")
	}
}
