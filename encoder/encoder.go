package encoder

import (
	"encoding/binary"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096

	ContentType = "audio/flac"
	Filename    = "recording.flac"
)

// Encoder turns PCM blocks into a byte stream. Drain returns the bytes
// produced since the previous call, so a recording can be shipped in pieces
// whose concatenation is the complete file.
type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Drain() []byte
	TotalFrames() uint64
	EncodedBytes() uint64
	AddEncodeTime(d time.Duration)
	EncodeTime() time.Duration
}

// Blocker accumulates little-endian S16 PCM and cuts it into BlockSize
// sample blocks. It is not safe for concurrent use.
type Blocker struct {
	buf []int16
}

// Feed appends pcm and returns every complete block now available.
func (b *Blocker) Feed(pcm []byte) [][]int16 {
	for i := 0; i+1 < len(pcm); i += 2 {
		b.buf = append(b.buf, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	var blocks [][]int16
	for len(b.buf) >= BlockSize {
		block := make([]int16, BlockSize)
		copy(block, b.buf[:BlockSize])
		b.buf = b.buf[BlockSize:]
		blocks = append(blocks, block)
	}
	return blocks
}

// Flush returns the remaining partial block, or nil.
func (b *Blocker) Flush() []int16 {
	if len(b.buf) == 0 {
		return nil
	}
	partial := make([]int16, len(b.buf))
	copy(partial, b.buf)
	b.buf = b.buf[:0]
	return partial
}

// Duration converts a sample count at SampleRate into time.
func Duration(frames uint64) time.Duration {
	return time.Duration(float64(frames) / float64(SampleRate) * float64(time.Second))
}
