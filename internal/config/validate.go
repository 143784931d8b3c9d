package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}
	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (b *BackendConfig) Validate() error {
	parsed, err := url.Parse(b.URL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("url must be an absolute URL, got %q", b.URL)
	}
	switch parsed.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("url scheme must be ws, wss, http or https, got %q", parsed.Scheme)
	}
	if !strings.HasPrefix(b.Path, "/") {
		return fmt.Errorf("path must start with '/', got %q", b.Path)
	}
	if !oneOf(b.ModeDelivery, "query", "first_message") {
		return fmt.Errorf("mode_delivery must be 'query' or 'first_message', got %q", b.ModeDelivery)
	}
	if !oneOf(b.TextFormat, "auto", "plain", "json") {
		return fmt.Errorf("text_format must be one of [auto, plain, json], got %q", b.TextFormat)
	}
	return nil
}

func (c *CaptureConfig) Validate() error {
	if strings.TrimSpace(c.FFmpegCommand) == "" {
		return fmt.Errorf("ffmpeg_command cannot be empty")
	}
	if c.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if c.FrameRate > 30 {
		return fmt.Errorf("frame_rate must be at most 30, got %d", c.FrameRate)
	}
	return nil
}

func (p *PlaybackConfig) Validate() error {
	if !oneOf(p.Backend, "ffplay", "portaudio") {
		return fmt.Errorf("backend must be 'ffplay' or 'portaudio', got %q", p.Backend)
	}
	if !oneOf(strings.ToLower(p.Format), "pcm_s16le", "pcm", "s16le", "mp3") {
		return fmt.Errorf("format must be 'pcm_s16le' or 'mp3', got %q", p.Format)
	}
	if p.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", p.Channels)
	}
	if p.Volume < 0 || p.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", p.Volume)
	}
	return nil
}

func (s *SessionConfig) Validate() error {
	if s.FlushInterval < 10*time.Millisecond {
		return fmt.Errorf("flush_interval must be at least 10ms, got %s", s.FlushInterval)
	}
	if !oneOf(s.RestartPolicy, "reject", "replace") {
		return fmt.Errorf("restart_policy must be 'reject' or 'replace', got %q", s.RestartPolicy)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	if !oneOf(l.Level, "debug", "info", "warn", "error") {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	if !oneOf(l.Format, "json", "text") {
		return fmt.Errorf("format must be 'json' or 'text', got %q", l.Format)
	}
	if strings.TrimSpace(l.Output) == "" {
		return fmt.Errorf("output cannot be empty")
	}
	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}
