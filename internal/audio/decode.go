package audio

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/goblinnotes/goblin/internal/failure"
)

// Decoder turns an encoded asset into a Buffer.
type Decoder interface {
	Decode(data []byte) (*Buffer, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(data []byte) (*Buffer, error)

// Decode calls f(data).
func (f DecoderFunc) Decode(data []byte) (*Buffer, error) {
	return f(data)
}

// MP3Decoder decodes MP3 files and resamples them to the output rate.
type MP3Decoder struct{}

// Decode implements Decoder.
func (MP3Decoder) Decode(data []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, failure.New(failure.CodeDecode, "invalid mp3 stream", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, failure.New(failure.CodeDecode, "mp3 stream truncated", err)
	}
	if len(pcm) == 0 {
		return nil, failure.New(failure.CodeDecode, "mp3 stream has no frames", nil)
	}

	// go-mp3 always yields 16-bit little-endian stereo
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}

	if rate := dec.SampleRate(); rate != SampleRate {
		samples = resample(samples, rate, SampleRate)
	}
	return NewBuffer(samples), nil
}

// resample converts interleaved stereo samples between rates with linear
// interpolation.
func resample(in []float32, from, to int) []float32 {
	frames := len(in) / Channels
	if frames == 0 || from <= 0 || to <= 0 {
		return in
	}

	outFrames := int(int64(frames) * int64(to) / int64(from))
	out := make([]float32, outFrames*Channels)
	step := float64(from) / float64(to)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		j := int(pos)
		frac := float32(pos - float64(j))
		k := j + 1
		if k >= frames {
			k = frames - 1
		}
		for c := 0; c < Channels; c++ {
			a := in[j*Channels+c]
			b := in[k*Channels+c]
			out[i*Channels+c] = a + (b-a)*frac
		}
	}
	return out
}
