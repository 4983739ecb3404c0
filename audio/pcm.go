package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// DefaultSampleRate is the rate every backend expects.
const DefaultSampleRate = 16000

// DecodeFloat32LE decodes little-endian IEEE-754 float32 samples.
func DecodeFloat32LE(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("audio frame length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

// EncodeFloat32LE is the inverse of DecodeFloat32LE.
func EncodeFloat32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// EncodePCM16LE converts samples in [-1,1] to signed 16-bit little-endian
// PCM, clipping values outside the range.
func EncodePCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*math.MaxInt16)))
	}
	return out
}

// FromFloat64 converts samples decoded from a JSON number array.
func FromFloat64(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}

// Silence returns d worth of zero samples at sampleRate.
func Silence(sampleRate int, d time.Duration) []float32 {
	n := int(int64(sampleRate) * int64(d) / int64(time.Second))
	return make([]float32, n)
}
