package media

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// Canonical audio encoding handed to transcription
const (
	CanonicalSampleRate = 16000
	CanonicalChannels   = 1
)

// WAVInfo describes a decoded WAV header
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// Canonical reports whether the file is already 16 kHz mono.
func (i WAVInfo) Canonical() bool {
	return i.SampleRate == CanonicalSampleRate && i.Channels == CanonicalChannels
}

// ValidateWAV reads the header of the WAV file at path and rejects files
// without a readable non-empty PCM payload.
func ValidateWAV(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return WAVInfo{}, fmt.Errorf("invalid wav file: %w", err)
		}
		return WAVInfo{}, fmt.Errorf("invalid wav file")
	}

	dur, err := d.Duration()
	if err != nil {
		return WAVInfo{}, fmt.Errorf("reading wav duration: %w", err)
	}

	return WAVInfo{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
		Duration:   dur,
	}, nil
}
