// Package audio converts device audio to the realtime wire format and plays
// assistant audio back through a Speaker.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// Wire format shared with the realtime API: PCM16 little-endian, mono.
const (
	WireSampleRate = 24000
	WireChannels   = 1
)

var ErrOddPCMLength = errors.New("audio: pcm16 payload has odd length")

// Frame is a chunk of interleaved PCM16LE audio as produced by a device.
type Frame struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// CapturedFrame is wire-format audio annotated with the local VAD verdict.
type CapturedFrame struct {
	PCM    []byte
	Speech bool
	RMS    float64
}

// DeviceError reports an audio device failure.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("audio device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func DecodePCM16LE(pcm []byte) ([]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrOddPCMLength
	}
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out, nil
}

func EncodePCM16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	n := len(samples) / channels
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// Resample converts mono samples between rates with linear interpolation.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate <= 0 || toRate <= 0 || fromRate == toRate || len(samples) == 0 {
		return samples
	}
	n := int(math.Round(float64(len(samples)) * float64(toRate) / float64(fromRate)))
	if n <= 0 {
		return nil
	}
	out := make([]int16, n)
	step := float64(fromRate) / float64(toRate)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		lo := int(pos)
		if lo >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(lo)
		v := float64(samples[lo])*(1-frac) + float64(samples[lo+1])*frac
		out[i] = int16(math.Round(v))
	}
	return out
}

// ToWire converts a device frame to 24 kHz mono PCM16LE samples.
func ToWire(f Frame) ([]int16, error) {
	samples, err := DecodePCM16LE(f.PCM)
	if err != nil {
		return nil, err
	}
	channels := f.Channels
	if channels <= 0 {
		channels = 1
	}
	rate := f.SampleRate
	if rate <= 0 {
		rate = WireSampleRate
	}
	return Resample(Downmix(samples, channels), rate, WireSampleRate), nil
}

// RMS returns the normalized root mean square energy in [0,1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// BytesForDuration returns the wire-format byte count for d.
func BytesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	samples := int(d * WireSampleRate / time.Second)
	return samples * 2
}
