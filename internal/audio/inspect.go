package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// ErrNotWAV is returned by Inspect for anything that is not a readable WAV file
var ErrNotWAV = errors.New("not a WAV file")

// Frame-energy speech detection, 20ms frames
const (
	frameDuration   = 20 * time.Millisecond
	speechThreshold = 500.0 // RMS on the 16-bit scale
)

// ClipInfo describes a decoded WAV clip
type ClipInfo struct {
	SampleRate   int
	Channels     int
	BitDepth     int
	Duration     time.Duration
	RMS          float64 // Overall RMS on the 16-bit scale
	SpeechFrames int     // Frames whose energy exceeds the speech threshold
	TotalFrames  int
}

// Silent reports whether no frame carried speech-level energy
func (i *ClipInfo) Silent() bool {
	return i.SpeechFrames == 0
}

// Inspect decodes a WAV file and measures its duration and energy
func Inspect(path string) (*ClipInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, ErrNotWAV
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}

	info := &ClipInfo{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	if info.SampleRate <= 0 || info.Channels <= 0 {
		return nil, ErrNotWAV
	}

	samples := to16Bit(buf.Data, info.BitDepth)
	frames := len(samples) / info.Channels
	info.Duration = time.Duration(float64(frames) / float64(info.SampleRate) * float64(time.Second))
	info.RMS = CalculateRMS(samples)

	frameSize := int(float64(info.SampleRate)*frameDuration.Seconds()) * info.Channels
	if frameSize < 1 {
		frameSize = 1
	}
	for start := 0; start < len(samples); start += frameSize {
		end := start + frameSize
		if end > len(samples) {
			end = len(samples)
		}
		info.TotalFrames++
		if CalculateRMS(samples[start:end]) > speechThreshold {
			info.SpeechFrames++
		}
	}

	return info, nil
}

// to16Bit rescales integer PCM samples of the given bit depth to the 16-bit range
func to16Bit(data []int, bitDepth int) []int16 {
	out := make([]int16, len(data))
	shift := bitDepth - 16
	for i, v := range data {
		switch {
		case bitDepth == 8:
			// 8-bit WAV is unsigned
			out[i] = int16((v - 128) << 8)
		case shift > 0:
			out[i] = int16(v >> shift)
		default:
			out[i] = int16(v)
		}
	}
	return out
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
