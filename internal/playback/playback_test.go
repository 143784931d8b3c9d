package playback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDecodePCMTrimsPartialFrame(t *testing.T) {
	t.Parallel()

	decoder := NewDecoder(FormatPCM, 24000, 1)
	pcm, err := decoder.Decode([]byte{1, 2, 3, 4, 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pcm.Data) != 4 || pcm.SampleRate != 24000 || pcm.Channels != 1 {
		t.Fatalf("unexpected pcm: %+v", pcm)
	}
}

func TestDecodeRejectsEmptyAndShortUnits(t *testing.T) {
	t.Parallel()

	decoder := NewDecoder(FormatPCM, 24000, 2)
	if _, err := decoder.Decode(nil); !errors.Is(err, ErrEmptyUnit) {
		t.Fatalf("expected empty unit error, got %v", err)
	}
	if _, err := decoder.Decode([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected short unit error")
	}
}

func TestDecodeMP3RejectsGarbage(t *testing.T) {
	t.Parallel()

	decoder := NewDecoder(FormatMP3, 0, 0)
	if _, err := decoder.Decode([]byte("definitely not an mp3 stream")); err == nil {
		t.Fatalf("expected mp3 decode error")
	}
}

func TestPCMSeconds(t *testing.T) {
	t.Parallel()

	pcm := PCM{Data: make([]byte, 48000), SampleRate: 24000, Channels: 1}
	if got := pcm.Seconds(); got != 1 {
		t.Fatalf("expected 1 second, got %v", got)
	}
	if got := (PCM{}).Seconds(); got != 0 {
		t.Fatalf("expected 0 for empty pcm, got %v", got)
	}
}

func TestBytesToSamples(t *testing.T) {
	t.Parallel()

	samples := bytesToSamples([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80})
	want := []int16{1, -1, -32768}
	if len(samples) != len(want) {
		t.Fatalf("unexpected sample count: %d", len(samples))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("sample %d: got %d want %d", i, samples[i], want[i])
		}
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]Format{"": FormatPCM, "pcm": FormatPCM, "PCM_S16LE": FormatPCM, "mp3": FormatMP3} {
		got, err := ParseFormat(input)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := ParseFormat("flac"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestFFPlayPlayerPipesPCM(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out := filepath.Join(dir, "played.raw")
	argsFile := filepath.Join(dir, "args.txt")
	script := writeScript(t, dir, "ffplay.sh", "#!/usr/bin/env bash\necho \"$@\" > '"+argsFile+"'\ncat > '"+out+"'\n")

	player := NewFFPlayPlayer(script, 50, NewDecoder(FormatPCM, 24000, 1))
	if err := player.Play(context.Background(), []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	played, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read played audio: %v", err)
	}
	if string(played) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected played bytes: %v", played)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	for _, want := range []string{"-nodisp", "-autoexit", "-ar 24000", "-ch_layout mono", "-volume 50"} {
		if !strings.Contains(string(args), want) {
			t.Fatalf("expected %q in %q", want, args)
		}
	}
}

func TestFFPlayPlayerReportsFailure(t *testing.T) {
	t.Parallel()

	script := writeScript(t, t.TempDir(), "ffplay.sh", "#!/usr/bin/env bash\ncat >/dev/null\necho 'audio device busy' 1>&2\nexit 3\n")
	player := NewFFPlayPlayer(script, 0, nil)
	err := player.Play(context.Background(), []byte{1, 2})
	if err == nil || !strings.Contains(err.Error(), "audio device busy") {
		t.Fatalf("expected ffplay failure with stderr, got %v", err)
	}
}

func TestFFPlayPlayerHonorsCancellation(t *testing.T) {
	t.Parallel()

	script := writeScript(t, t.TempDir(), "ffplay.sh", "#!/usr/bin/env bash\nexec sleep 5\n")
	player := NewFFPlayPlayer(script, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := player.Play(ctx, []byte{1, 2})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	t.Parallel()

	backend, err := New(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := backend.(*FFPlayPlayer); !ok {
		t.Fatalf("expected ffplay default, got %T", backend)
	}

	backend, err = New(Config{Backend: "PortAudio"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := backend.(*PortAudioPlayer); !ok {
		t.Fatalf("expected portaudio backend, got %T", backend)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("closing an unused portaudio player should be a no-op: %v", err)
	}

	if _, err := New(Config{Backend: "speaker"}); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}

func writeScript(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
