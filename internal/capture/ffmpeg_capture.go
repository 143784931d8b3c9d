package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"parley/internal/domain"
	"parley/internal/ports"
)

const (
	startupWindow = 250 * time.Millisecond
	stopGrace     = 1200 * time.Millisecond
	exitWait      = 500 * time.Millisecond
	stderrTail    = 2048
)

// FFMPEGCapture acquires camera, screen and microphone streams through an ffmpeg subprocess.
// Voice sessions produce raw s16le PCM; camera and screen sessions produce a WebM stream
// carrying VP8 video and Opus audio.
type FFMPEGCapture struct {
	command string
	logger  *slog.Logger
}

func NewFFMPEGCapture(command string, logger *slog.Logger) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFMPEGCapture{command: command, logger: logger}
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.CaptureConfig) (ports.CaptureSession, error) {
	cfg = withDefaults(cfg)
	args, err := buildArgs(cfg)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	stderr := &tailBuffer{limit: stderrTail}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s capture output: %w", cfg.Mode, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to launch %s capture: %w", cfg.Mode, err)
	}

	s := &ffmpegSession{
		mode:    cfg.Mode,
		pid:     cmd.Process.Pid,
		started: time.Now(),
		logger:  c.logger,
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		exited:  make(chan struct{}),
	}
	go func() {
		s.exitErr = cmd.Wait()
		close(s.exited)
	}()

	// A missing device usually makes ffmpeg exit within the startup window.
	startup := time.NewTimer(startupWindow)
	defer startup.Stop()
	select {
	case <-s.exited:
		return nil, s.describeExit("ffmpeg exited before capture started")
	case <-ctx.Done():
		_ = s.Stop()
		return nil, ctx.Err()
	case <-startup.C:
	}

	c.logger.Debug("capture process running",
		slog.String("mode", string(s.mode)),
		slog.Int("pid", s.pid),
		slog.String("command", c.command),
	)
	return s, nil
}

func withDefaults(cfg ports.CaptureConfig) ports.CaptureConfig {
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeVoice
	}
	if cfg.AudioInputFormat == "" {
		cfg.AudioInputFormat = "pulse"
	}
	if cfg.AudioDevice == "" {
		cfg.AudioDevice = "default"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.CameraInputFormat == "" {
		cfg.CameraInputFormat = "v4l2"
	}
	if cfg.CameraDevice == "" {
		cfg.CameraDevice = "/dev/video0"
	}
	if cfg.ScreenInputFormat == "" {
		cfg.ScreenInputFormat = "x11grab"
	}
	if cfg.ScreenDevice == "" {
		cfg.ScreenDevice = ":0.0"
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 1
	}
	return cfg
}

func buildArgs(cfg ports.CaptureConfig) ([]string, error) {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
	}

	audioInput := []string{"-f", cfg.AudioInputFormat, "-i", cfg.AudioDevice}

	switch cfg.Mode {
	case domain.ModeVoice:
		args = append(args, audioInput...)
		args = append(args,
			"-ac", strconv.Itoa(cfg.Channels),
			"-ar", strconv.Itoa(cfg.SampleRate),
			"-f", "s16le",
			"-",
		)
		return args, nil
	case domain.ModeCamera, domain.ModeScreen:
		format, device := cfg.CameraInputFormat, cfg.CameraDevice
		if cfg.Mode == domain.ModeScreen {
			format, device = cfg.ScreenInputFormat, cfg.ScreenDevice
		}
		args = append(args, "-f", format, "-framerate", strconv.Itoa(cfg.FrameRate))
		if size := strings.TrimSpace(cfg.VideoSize); size != "" {
			args = append(args, "-video_size", size)
		}
		args = append(args, "-i", device)
		args = append(args, audioInput...)
		args = append(args,
			"-map", "0:v",
			"-map", "1:a",
			"-c:v", "libvpx",
			"-deadline", "realtime",
			"-cpu-used", "8",
			"-c:a", "libopus",
			"-ac", strconv.Itoa(cfg.Channels),
			"-f", "webm",
			"-",
		)
		return args, nil
	default:
		return nil, fmt.Errorf("unsupported capture mode %q", cfg.Mode)
	}
}

// ffmpegSession is one running capture process. Its stdout is the media stream.
type ffmpegSession struct {
	mode    domain.Mode
	pid     int
	started time.Time
	logger  *slog.Logger

	stdout  io.ReadCloser
	stderr  *tailBuffer
	process *os.Process

	// exitErr is written once before exited is closed.
	exited  chan struct{}
	exitErr error

	stopping atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

// Read returns stream bytes. When ffmpeg dies on its own the error carries its exit status
// and the tail of its stderr instead of a bare EOF.
func (s *ffmpegSession) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err == nil || s.stopping.Load() {
		return n, err
	}

	select {
	case <-s.exited:
	case <-time.After(exitWait):
		return n, err
	}
	if s.exitErr == nil {
		return n, io.EOF
	}
	return n, s.describeExit(fmt.Sprintf("%s capture ended unexpectedly", s.mode))
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

// Stop asks ffmpeg to finish with SIGINT and kills it if it is still running after stopGrace.
// Exit statuses caused by the signal are not errors.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		_ = s.process.Signal(os.Interrupt)

		killed := false
		grace := time.NewTimer(stopGrace)
		select {
		case <-s.exited:
		case <-grace.C:
			killed = true
			_ = s.process.Kill()
			<-s.exited
		}
		grace.Stop()

		s.stopErr = signalExitOK(s.exitErr)
		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		if s.stopErr != nil {
			s.stopErr = fmt.Errorf("%s capture did not stop cleanly: %w%s", s.mode, s.stopErr, s.stderr.suffix())
		}

		s.logger.Debug("capture process stopped",
			slog.String("mode", string(s.mode)),
			slog.Int("pid", s.pid),
			slog.Duration("uptime", time.Since(s.started)),
			slog.Bool("killed", killed),
		)
	})
	return s.stopErr
}

// describeExit must only be called once exited is closed.
func (s *ffmpegSession) describeExit(what string) error {
	if s.exitErr == nil {
		return fmt.Errorf("%s (pid %d)%s", what, s.pid, s.stderr.suffix())
	}
	return fmt.Errorf("%s (pid %d): %w%s", what, s.pid, s.exitErr, s.stderr.suffix())
}

// signalExitOK drops the non-zero exit status ffmpeg reports after being interrupted.
func signalExitOK(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// tailBuffer keeps the last limit bytes written to it. exec copies stderr from its own
// goroutine, so access is locked.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}

// suffix formats the captured stderr for appending to an error message.
func (b *tailBuffer) suffix() string {
	if out := b.String(); out != "" {
		return ": " + out
	}
	return ""
}
