// Package mic exposes a microphone as a recorder.Source producing FLAC.
package mic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"scribe/audio"
	"scribe/encoder"
	"scribe/log"
	"scribe/recorder"
)

type Options struct {
	// NewContext opens the audio backend. Defaults to audio.NewContext.
	NewContext func() (audio.Context, error)
	Device     string // empty selects the system default
	Gain       int
	// Level, if set, receives the RMS level of each captured buffer.
	Level func(rms float64)
}

type Source struct {
	opts Options
}

func NewSource(opts Options) *Source {
	if opts.NewContext == nil {
		opts.NewContext = audio.NewContext
	}
	return &Source{opts: opts}
}

var format = recorder.Format{ContentType: encoder.ContentType, Filename: encoder.Filename}

// Open connects to the audio backend and claims the configured device. A
// missing backend or device is reported as ErrCapabilityUnavailable, a
// refused capture as ErrCapabilityDenied.
func (s *Source) Open(ctx context.Context) (recorder.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	actx, err := s.opts.NewContext()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", recorder.ErrCapabilityUnavailable, err)
	}

	dev, err := audio.FindDevice(actx, s.opts.Device)
	if err != nil {
		actx.Close()
		return nil, fmt.Errorf("%w: %w", recorder.ErrCapabilityUnavailable, err)
	}

	capture, err := actx.NewCapture(dev, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
		Gain:       s.opts.Gain,
	})
	if err != nil {
		actx.Close()
		return nil, fmt.Errorf("%w: %w", recorder.ErrCapabilityDenied, err)
	}

	log.Info("mic_open: " + capture.DeviceName())
	return &Stream{actx: actx, capture: capture, level: s.opts.Level}, nil
}

// Stream records from one capture device. Each recording is a complete FLAC
// file delivered as the header, one chunk per encoded block and a tail.
type Stream struct {
	actx    audio.Context
	capture audio.CaptureDevice
	level   func(float64)

	mu        sync.Mutex
	rec       *recording
	closed    bool
	closeOnce sync.Once
}

type recording struct {
	cb      recorder.Callbacks
	enc     encoder.Encoder
	blocker encoder.Blocker
	err     error
	stopped bool
}

func (s *Stream) Format() recorder.Format { return format }

func (s *Stream) DeviceName() string { return s.capture.DeviceName() }

func (s *Stream) Start(cb recorder.Callbacks) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("mic: stream closed")
	}
	if s.rec != nil {
		s.mu.Unlock()
		return errors.New("mic: already recording")
	}
	enc, err := encoder.NewFlac()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	rec := &recording{cb: cb, enc: enc}
	s.rec = rec
	if head := enc.Drain(); len(head) > 0 {
		cb.OnChunk(head)
	}
	s.mu.Unlock()

	// the device may deliver data before Start returns
	s.capture.SetCallback(func(data []byte, _ uint32) {
		if s.level != nil && len(data) > 1 {
			s.level(RMS(data))
		}
		s.feed(rec, data)
	})
	if err := s.capture.Start(); err != nil {
		s.capture.ClearCallback()
		s.mu.Lock()
		s.rec = nil
		s.mu.Unlock()
		return err
	}
	log.Info("recording_start")
	return nil
}

func (s *Stream) feed(rec *recording, pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.stopped || rec.err != nil {
		return
	}
	for _, block := range rec.blocker.Feed(pcm) {
		if !rec.encode(block) {
			return
		}
	}
}

// encode writes one block and passes on whatever the encoder produced.
func (rec *recording) encode(block []int16) bool {
	start := time.Now()
	if err := rec.enc.EncodeBlock(block); err != nil {
		rec.err = err
		return false
	}
	rec.enc.AddEncodeTime(time.Since(start))
	if c := rec.enc.Drain(); len(c) > 0 {
		rec.cb.OnChunk(c)
	}
	return true
}

// Stop ends the current recording. The remaining samples and the FLAC tail
// are delivered before OnStop.
func (s *Stream) Stop() {
	s.capture.Stop()
	s.capture.ClearCallback()

	s.mu.Lock()
	rec := s.rec
	s.rec = nil
	if rec == nil || rec.stopped {
		s.mu.Unlock()
		return
	}
	rec.stopped = true
	if tail := rec.blocker.Flush(); tail != nil && rec.err == nil {
		rec.encode(tail)
	}
	if err := rec.enc.Close(); err != nil && rec.err == nil {
		rec.err = err
	}
	if c := rec.enc.Drain(); len(c) > 0 {
		rec.cb.OnChunk(c)
	}
	s.mu.Unlock()

	frames := rec.enc.TotalFrames()
	log.Infof("recording_stop: audio_s=%.1f encoded_kb=%.1f encode_ms=%d",
		encoder.Duration(frames).Seconds(),
		float64(rec.enc.EncodedBytes())/1024,
		rec.enc.EncodeTime().Milliseconds())

	var err error
	if rec.err != nil {
		err = fmt.Errorf("encoding audio: %w", rec.err)
	}
	rec.cb.OnStop(err)
}

func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.Stop()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.capture.Close()
		s.actx.Close()
	})
}
