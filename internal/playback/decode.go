package playback

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// Format is the container of inbound audio units.
type Format string

const (
	FormatPCM Format = "pcm_s16le"
	FormatMP3 Format = "mp3"
)

// ParseFormat validates a configured audio format.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatPCM, "pcm", "s16le":
		return FormatPCM, nil
	case FormatMP3:
		return FormatMP3, nil
	default:
		return "", fmt.Errorf("unsupported audio format %q", value)
	}
}

var ErrEmptyUnit = errors.New("audio unit is empty")

// PCM is little-endian signed 16-bit interleaved audio.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Seconds is the playback duration of the buffer.
func (p PCM) Seconds() float64 {
	if p.SampleRate <= 0 || p.Channels <= 0 {
		return 0
	}
	return float64(len(p.Data)) / float64(p.SampleRate*p.Channels*2)
}

// Decoder turns merged audio units into PCM.
type Decoder struct {
	format     Format
	sampleRate int
	channels   int
}

// NewDecoder builds a decoder. sampleRate and channels describe raw PCM input and are
// ignored for MP3, which carries its own header.
func NewDecoder(format Format, sampleRate, channels int) *Decoder {
	if format == "" {
		format = FormatPCM
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if channels <= 0 {
		channels = 1
	}
	return &Decoder{format: format, sampleRate: sampleRate, channels: channels}
}

func (d *Decoder) Decode(unit []byte) (PCM, error) {
	if len(unit) == 0 {
		return PCM{}, ErrEmptyUnit
	}

	switch d.format {
	case FormatMP3:
		decoder, err := mp3.NewDecoder(bytes.NewReader(unit))
		if err != nil {
			return PCM{}, fmt.Errorf("failed to decode mp3: %w", err)
		}
		data, err := io.ReadAll(decoder)
		if err != nil {
			return PCM{}, fmt.Errorf("failed to decode mp3: %w", err)
		}
		// go-mp3 always yields 16-bit stereo.
		return PCM{Data: data, SampleRate: decoder.SampleRate(), Channels: 2}, nil
	default:
		frame := 2 * d.channels
		usable := len(unit) - len(unit)%frame
		if usable == 0 {
			return PCM{}, fmt.Errorf("audio unit shorter than one frame (%d bytes)", len(unit))
		}
		return PCM{Data: unit[:usable], SampleRate: d.sampleRate, Channels: d.channels}, nil
	}
}

func bytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return samples
}
