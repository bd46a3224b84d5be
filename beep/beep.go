// Package beep plays the short tones that mark recording start, stop and
// failure.
package beep

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
)

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

func Disabled() bool { return disabled.Load() }

const (
	sampleRate = 44100

	// Start beep: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End beep: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

type Tone int

const (
	ToneStart Tone = iota
	ToneEnd
	ToneError
)

var (
	tones     map[Tone][]byte
	tonesOnce sync.Once
)

func initTones() {
	tones = map[Tone][]byte{
		ToneStart: generateTick(sampleRate, startFreq, tailDuration, startVolume, startDecay),
		ToneEnd:   generateTick(sampleRate, endFreq, tailDuration, endVolume, endDecay),
		ToneError: generateDoubleBeep(sampleRate, errorFreq, 0.08, 0.05, errorVolume, errorDecay),
	}
}

// samples returns mono S16LE PCM for t.
func samples(t Tone) []byte {
	tonesOnce.Do(initTones)
	return tones[t]
}

func generateTick(sampleRate int, freq, duration, volume, decay float64) []byte {
	n := int(float64(sampleRate) * duration)
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		s := int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func generateDoubleBeep(sampleRate int, freq, beepDur, gapDur, volume, decay float64) []byte {
	beep := generateTick(sampleRate, freq, beepDur, volume, decay)
	gap := make([]byte, int(float64(sampleRate)*gapDur)*2)
	result := make([]byte, 0, len(beep)*2+len(gap))
	result = append(result, beep...)
	result = append(result, gap...)
	result = append(result, beep...)
	return result
}

// Play sounds t without blocking.
func Play(t Tone) {
	if Disabled() {
		return
	}
	go play(samples(t))
}

func PlayStart() { Play(ToneStart) }
func PlayEnd()   { Play(ToneEnd) }
func PlayError() { Play(ToneError) }
