package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// FFPlayPlayer plays each unit through a short-lived ffplay process and returns when it exits.
type FFPlayPlayer struct {
	path     string
	logLevel string
	volume   int
	decoder  *Decoder
}

func NewFFPlayPlayer(path string, volume int, decoder *Decoder) *FFPlayPlayer {
	if strings.TrimSpace(path) == "" {
		path = "ffplay"
	}
	if volume <= 0 || volume > 100 {
		volume = 80
	}
	if decoder == nil {
		decoder = NewDecoder(FormatPCM, 0, 0)
	}
	return &FFPlayPlayer{path: path, logLevel: "error", volume: volume, decoder: decoder}
}

func (p *FFPlayPlayer) Play(ctx context.Context, unit []byte) error {
	pcm, err := p.decoder.Decode(unit)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, p.path, ffplayArgs(p.logLevel, p.volume, pcm)...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	cmd.Stdin = bytes.NewReader(pcm.Data)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("ffplay failed: %w: %s", err, msg)
		}
		return fmt.Errorf("ffplay failed: %w", err)
	}
	return nil
}

func (p *FFPlayPlayer) Close() error { return nil }

func ffplayArgs(logLevel string, volume int, pcm PCM) []string {
	// ffplay takes -ch_layout rather than ffmpeg's -ac.
	layout := "mono"
	if pcm.Channels == 2 {
		layout = "stereo"
	}
	return []string{
		"-hide_banner",
		"-loglevel", logLevel,
		"-nostats",
		"-nodisp",
		"-autoexit",
		"-volume", strconv.Itoa(volume),
		"-f", "s16le",
		"-ch_layout", layout,
		"-ar", strconv.Itoa(pcm.SampleRate),
		"-i", "-",
	}
}
