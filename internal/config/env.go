package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv overlays PARLEY_* variables. Unset or unparsable values keep the current setting.
func applyEnv(cfg *Config) {
	b := &cfg.Backend
	b.URL = envOrDefault("PARLEY_BACKEND_URL", b.URL)
	b.Path = envOrDefault("PARLEY_BACKEND_PATH", b.Path)
	b.ModeDelivery = envOrDefault("PARLEY_MODE_DELIVERY", b.ModeDelivery)
	b.AuthToken = envOrDefault("PARLEY_AUTH_TOKEN", b.AuthToken)
	b.TextFormat = envOrDefault("PARLEY_TEXT_FORMAT", b.TextFormat)
	b.HandshakeTimeout = envOrDefaultMillis("PARLEY_HANDSHAKE_TIMEOUT_MS", b.HandshakeTimeout)

	c := &cfg.Capture
	c.FFmpegCommand = envOrDefault("PARLEY_FFMPEG_COMMAND", c.FFmpegCommand)
	c.AudioInputFormat = envOrDefault("PARLEY_AUDIO_INPUT_FORMAT", c.AudioInputFormat)
	c.AudioDevice = firstNonEmpty(os.Getenv("PARLEY_AUDIO_INPUT_DEVICE"), os.Getenv("PULSE_SOURCE"), c.AudioDevice)
	c.SampleRate = envOrDefaultInt("PARLEY_SAMPLE_RATE", c.SampleRate)
	c.Channels = envOrDefaultInt("PARLEY_CHANNELS", c.Channels)
	c.CameraInputFormat = envOrDefault("PARLEY_CAMERA_INPUT_FORMAT", c.CameraInputFormat)
	c.CameraDevice = envOrDefault("PARLEY_CAMERA_DEVICE", c.CameraDevice)
	c.ScreenInputFormat = envOrDefault("PARLEY_SCREEN_INPUT_FORMAT", c.ScreenInputFormat)
	c.ScreenDevice = envOrDefault("PARLEY_SCREEN_DEVICE", c.ScreenDevice)
	c.FrameRate = envOrDefaultInt("PARLEY_FRAME_RATE", c.FrameRate)
	c.VideoSize = envOrDefault("PARLEY_VIDEO_SIZE", c.VideoSize)

	p := &cfg.Playback
	p.Backend = envOrDefault("PARLEY_PLAYBACK_BACKEND", p.Backend)
	p.Format = envOrDefault("PARLEY_PLAYBACK_FORMAT", p.Format)
	p.SampleRate = envOrDefaultInt("PARLEY_PLAYBACK_SAMPLE_RATE", p.SampleRate)
	p.Channels = envOrDefaultInt("PARLEY_PLAYBACK_CHANNELS", p.Channels)
	p.FFPlayCommand = envOrDefault("PARLEY_FFPLAY_COMMAND", p.FFPlayCommand)
	p.Volume = envOrDefaultInt("PARLEY_PLAYBACK_VOLUME", p.Volume)

	s := &cfg.Session
	s.FlushInterval = envOrDefaultMillis("PARLEY_FLUSH_INTERVAL_MS", s.FlushInterval)
	s.RestartPolicy = envOrDefault("PARLEY_RESTART_POLICY", s.RestartPolicy)
	s.CloseOnCaptureError = envOrDefaultBool("PARLEY_CLOSE_ON_CAPTURE_ERROR", s.CloseOnCaptureError)
	s.ChunkSize = envOrDefaultInt("PARLEY_CHUNK_SIZE", s.ChunkSize)

	cfg.Rules.Path = envOrDefault("PARLEY_RULES_FILE", cfg.Rules.Path)
	cfg.Rules.IterationLimit = envOrDefaultInt("PARLEY_RULE_ITERATION_LIMIT", cfg.Rules.IterationLimit)

	cfg.Logging.Level = envOrDefault("PARLEY_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envOrDefault("PARLEY_LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Output = envOrDefault("PARLEY_LOG_OUTPUT", cfg.Logging.Output)

	cfg.Metrics.Address = envOrDefault("PARLEY_METRICS_ADDR", cfg.Metrics.Address)
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}
