package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"time"
)

// Buffer holds decoded audio as interleaved stereo samples at SampleRate.
// A Buffer is immutable once decoded and may be shared between voices.
type Buffer struct {
	samples []float32
}

// NewBuffer wraps interleaved stereo samples. A trailing half frame is dropped.
func NewBuffer(samples []float32) *Buffer {
	return &Buffer{samples: samples[:len(samples)/Channels*Channels]}
}

// Frames returns the number of stereo frames.
func (b *Buffer) Frames() int {
	return len(b.samples) / Channels
}

// Duration returns the playback length.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(int64(b.Frames()) * int64(time.Second) / SampleRate)
}

// Frame returns the left and right sample at frame i.
func (b *Buffer) Frame(i int) (float32, float32) {
	return b.samples[i*Channels], b.samples[i*Channels+1]
}

// PCM encodes the buffer in the device output format.
func (b *Buffer) PCM() []byte {
	out := make([]byte, len(b.samples)*bytesPerSample)
	for i, s := range b.samples {
		binary.LittleEndian.PutUint32(out[i*bytesPerSample:], math.Float32bits(s))
	}
	return out
}

// loopReader repeats data forever.
type loopReader struct {
	data []byte
	pos  int
}

func newLoopReader(data []byte) *loopReader {
	return &loopReader{data: data}
}

func (r *loopReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) {
		c := copy(p[n:], r.data[r.pos:])
		n += c
		r.pos = (r.pos + c) % len(r.data)
	}
	return n, nil
}

func (r *loopReader) Seek(offset int64, whence int) (int64, error) {
	if whence != io.SeekStart || offset < 0 {
		return 0, errors.New("loop reader only seeks from start")
	}
	if len(r.data) > 0 {
		r.pos = int(offset % int64(len(r.data)))
	}
	return int64(r.pos), nil
}
