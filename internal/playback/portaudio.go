package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioPlayer writes decoded units to the default output device. A stream is opened
// per unit so each unit can carry its own sample rate.
type PortAudioPlayer struct {
	decoder         *Decoder
	framesPerBuffer int

	mu          sync.Mutex
	initialized bool
}

func NewPortAudioPlayer(decoder *Decoder, framesPerBuffer int) *PortAudioPlayer {
	if decoder == nil {
		decoder = NewDecoder(FormatPCM, 0, 0)
	}
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}
	return &PortAudioPlayer{decoder: decoder, framesPerBuffer: framesPerBuffer}
}

func (p *PortAudioPlayer) Play(ctx context.Context, unit []byte) error {
	pcm, err := p.decoder.Decode(unit)
	if err != nil {
		return err
	}
	if err := p.ensureInitialized(); err != nil {
		return err
	}

	buffer := make([]int16, p.framesPerBuffer*pcm.Channels)
	stream, err := portaudio.OpenDefaultStream(0, pcm.Channels, float64(pcm.SampleRate), p.framesPerBuffer, buffer)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer stream.Stop()

	samples := bytesToSamples(pcm.Data)
	for offset := 0; offset < len(samples); offset += len(buffer) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buffer, samples[offset:])
		clear(buffer[n:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("failed to write audio: %w", err)
		}
	}
	return nil
}

func (p *PortAudioPlayer) ensureInitialized() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	p.initialized = true
	return nil
}

// Close releases PortAudio if it was initialized.
func (p *PortAudioPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return nil
	}
	p.initialized = false
	return portaudio.Terminate()
}
