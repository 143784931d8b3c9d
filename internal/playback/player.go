package playback

import (
	"context"
	"fmt"
	"strings"
)

// Backend is a closable player.
type Backend interface {
	Play(ctx context.Context, unit []byte) error
	Close() error
}

// Config selects and tunes the playback backend.
type Config struct {
	Backend         string
	Format          Format
	SampleRate      int
	Channels        int
	FFPlayPath      string
	Volume          int
	FramesPerBuffer int
}

// New builds the configured backend: "ffplay" (default) or "portaudio".
func New(cfg Config) (Backend, error) {
	decoder := NewDecoder(cfg.Format, cfg.SampleRate, cfg.Channels)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "ffplay":
		return NewFFPlayPlayer(cfg.FFPlayPath, cfg.Volume, decoder), nil
	case "portaudio":
		return NewPortAudioPlayer(decoder, cfg.FramesPerBuffer), nil
	default:
		return nil, fmt.Errorf("unknown playback backend %q", cfg.Backend)
	}
}
