//go:build !linux

package beep

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

const tailDuration = 0.05

var (
	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	deviceOnce sync.Once

	// playback state, read from the device callback
	playing atomic.Pointer[[]byte]
	playPos atomic.Uint32
	playMu  sync.Mutex
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: dataCallback})
	return err
}

func initPlayback() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}
	if err := initDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func Init() {
	tonesOnce.Do(initTones)
	deviceOnce.Do(initPlayback)
}

func dataCallback(pOutput, _ []byte, frameCount uint32) {
	clear(pOutput)
	pcm := playing.Load()
	if pcm == nil {
		return
	}
	pos := playPos.Load()
	remaining := uint32(len(*pcm)) - pos
	if remaining == 0 {
		playing.Store(nil)
		return
	}
	n := min(frameCount*2, remaining)
	copy(pOutput[:n], (*pcm)[pos:pos+n])
	playPos.Store(pos + n)
}

func play(pcm []byte) {
	deviceOnce.Do(initPlayback)
	if malgoCtx == nil || len(pcm) == 0 {
		return
	}

	playMu.Lock()
	defer playMu.Unlock()

	if device == nil {
		return
	}
	device.Stop()
	playPos.Store(0)
	playing.Store(&pcm)

	if err := device.Start(); err != nil {
		// recreate after sleep/wake
		device.Uninit()
		if err := initDevice(); err != nil {
			playing.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			playing.Store(nil)
		}
	}
}
