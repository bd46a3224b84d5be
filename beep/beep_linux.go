//go:build linux

package beep

import (
	"encoding/binary"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

// pulse needs a longer tail to fill its buffer before draining.
const tailDuration = 0.2

func Init() {
	tonesOnce.Do(initTones)
}

func play(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	c, err := pulse.NewClient()
	if err != nil {
		return
	}
	defer c.Close()

	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos+1 >= len(pcm) {
			return 0, pulse.EndOfData
		}
		n := 0
		for n < len(buf) && pos+1 < len(pcm) {
			buf[n] = int16(binary.LittleEndian.Uint16(pcm[pos:]))
			pos += 2
			n++
		}
		return n, nil
	})
	stream, err := c.NewPlayback(reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		return
	}
	stream.Start()
	stream.Drain()
	stream.Stop()
	stream.Close()
}
