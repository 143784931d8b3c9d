package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration for the desktop shell and the CLI.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Capture  CaptureConfig  `yaml:"capture"`
	Playback PlaybackConfig `yaml:"playback"`
	Session  SessionConfig  `yaml:"session"`
	Rules    RulesConfig    `yaml:"rules"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	// Source is the YAML file the values were read from, if any.
	Source string `yaml:"-"`
}

type BackendConfig struct {
	URL              string        `yaml:"url"`
	Path             string        `yaml:"path"`
	ModeDelivery     string        `yaml:"mode_delivery"`
	AuthToken        string        `yaml:"auth_token"`
	TextFormat       string        `yaml:"text_format"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

type CaptureConfig struct {
	FFmpegCommand     string `yaml:"ffmpeg_command"`
	AudioInputFormat  string `yaml:"audio_input_format"`
	AudioDevice       string `yaml:"audio_device"`
	SampleRate        int    `yaml:"sample_rate"`
	Channels          int    `yaml:"channels"`
	CameraInputFormat string `yaml:"camera_input_format"`
	CameraDevice      string `yaml:"camera_device"`
	ScreenInputFormat string `yaml:"screen_input_format"`
	ScreenDevice      string `yaml:"screen_device"`
	FrameRate         int    `yaml:"frame_rate"`
	VideoSize         string `yaml:"video_size"`
}

type PlaybackConfig struct {
	Backend         string `yaml:"backend"`
	Format          string `yaml:"format"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	FFPlayCommand   string `yaml:"ffplay_command"`
	Volume          int    `yaml:"volume"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
}

type SessionConfig struct {
	FlushInterval       time.Duration `yaml:"flush_interval"`
	RestartPolicy       string        `yaml:"restart_policy"`
	CloseOnCaptureError bool          `yaml:"close_on_capture_error"`
	ChunkSize           int           `yaml:"chunk_size"`
}

type RulesConfig struct {
	Path           string   `yaml:"path"`
	IterationLimit int      `yaml:"iteration_limit"`
	Inline         []string `yaml:"inline"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type MetricsConfig struct {
	// Address enables the /metrics listener when non-empty.
	Address string `yaml:"address"`
}

// Load resolves configuration from defaults, an optional YAML file and environment variables,
// in that order. A .env file in the working directory (or PARLEY_ENV_FILE) is read first.
func Load() (Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit YAML path. An empty path falls back to PARLEY_CONFIG and then
// ~/.config/parley/config.yaml when it exists.
func LoadFile(path string) (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	configDir := filepath.Join(home, ".config", "parley")

	cfg := Defaults(configDir)

	explicit := firstNonEmpty(path, os.Getenv("PARLEY_CONFIG"))
	source := explicit
	if source == "" {
		source = firstExisting(filepath.Join(configDir, "config.yaml"), filepath.Join(configDir, "config.yml"))
	}
	if source != "" {
		if err := mergeYAML(&cfg, source, explicit != ""); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration. configDir holds the default rules file.
func Defaults(configDir string) Config {
	return Config{
		Backend: BackendConfig{
			URL:              "ws://localhost:8000",
			Path:             "/ws",
			ModeDelivery:     "query",
			TextFormat:       "auto",
			HandshakeTimeout: 10 * time.Second,
		},
		Capture: CaptureConfig{
			FFmpegCommand:     "ffmpeg",
			AudioInputFormat:  "pulse",
			AudioDevice:       "default",
			SampleRate:        16000,
			Channels:          1,
			CameraInputFormat: "v4l2",
			CameraDevice:      "/dev/video0",
			ScreenInputFormat: "x11grab",
			ScreenDevice:      firstNonEmpty(os.Getenv("DISPLAY"), ":0.0"),
			FrameRate:         1,
		},
		Playback: PlaybackConfig{
			Backend:         "ffplay",
			Format:          "pcm_s16le",
			SampleRate:      24000,
			Channels:        1,
			FFPlayCommand:   "ffplay",
			Volume:          80,
			FramesPerBuffer: 1024,
		},
		Session: SessionConfig{
			FlushInterval: 250 * time.Millisecond,
			RestartPolicy: "reject",
			ChunkSize:     4096,
		},
		Rules: RulesConfig{
			Path:           filepath.Join(configDir, "text.rules"),
			IterationLimit: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

func loadDotEnv() error {
	path := firstNonEmpty(os.Getenv("PARLEY_ENV_FILE"), ".env")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat env file %s: %w", path, err)
	}
	// Load never overrides variables that are already set.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func mergeYAML(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.Source = path
	return nil
}

func (c *Config) normalize() {
	c.Backend.ModeDelivery = strings.ToLower(c.Backend.ModeDelivery)
	c.Backend.TextFormat = strings.ToLower(c.Backend.TextFormat)
	c.Playback.Backend = strings.ToLower(c.Playback.Backend)
	c.Session.RestartPolicy = strings.ToLower(c.Session.RestartPolicy)
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)

	if c.Capture.SampleRate <= 0 {
		c.Capture.SampleRate = 16000
	}
	if c.Capture.Channels <= 0 {
		c.Capture.Channels = 1
	}
	if c.Capture.FrameRate <= 0 {
		c.Capture.FrameRate = 1
	}
	if c.Playback.SampleRate <= 0 {
		c.Playback.SampleRate = 24000
	}
	if c.Playback.Channels <= 0 {
		c.Playback.Channels = 1
	}
	if c.Rules.IterationLimit <= 0 {
		c.Rules.IterationLimit = 30
	}
	if c.Session.ChunkSize < 256 {
		c.Session.ChunkSize = 4096
	}
	if c.Session.FlushInterval <= 0 {
		c.Session.FlushInterval = 250 * time.Millisecond
	}
	if c.Backend.HandshakeTimeout <= 0 {
		c.Backend.HandshakeTimeout = 10 * time.Second
	}
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
