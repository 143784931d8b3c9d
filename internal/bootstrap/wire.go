package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"parley/internal/capture"
	"parley/internal/config"
	"parley/internal/metrics"
	"parley/internal/playback"
	"parley/internal/ports"
	"parley/internal/protocol"
	"parley/internal/rules"
	"parley/internal/transport/websocket"
	"parley/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Rules      *rules.Engine

	metricsServer *metrics.Server
	player        playback.Backend
	logCloser     io.Closer
}

var newController = usecase.NewSessionController

// Build loads configuration from the environment and wires every dependency.
func Build(observer ports.Observer, clipboard ports.Clipboard) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWith(cfg, observer, clipboard)
}

// BuildWith wires every dependency from an already loaded configuration.
func BuildWith(cfg config.Config, observer ports.Observer, clipboard ports.Clipboard) (Services, error) {
	logger, logCloser, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return Services{}, err
	}
	// partial holds what has been started so far so a failure can release it.
	partial := Services{logCloser: logCloser}
	fail := func(err error) (Services, error) {
		_ = partial.Close()
		return Services{}, err
	}

	textFormat, err := protocol.ParseTextFormat(cfg.Backend.TextFormat)
	if err != nil {
		return fail(err)
	}
	restart, err := usecase.ParseRestartPolicy(cfg.Session.RestartPolicy)
	if err != nil {
		return fail(err)
	}
	audioFormat, err := playback.ParseFormat(cfg.Playback.Format)
	if err != nil {
		return fail(err)
	}

	rulesEngine, err := rules.Load(cfg.Rules.Path, cfg.Rules.Inline, cfg.Rules.IterationLimit)
	if err != nil {
		return fail(err)
	}

	player, err := playback.New(playback.Config{
		Backend:         cfg.Playback.Backend,
		Format:          audioFormat,
		SampleRate:      cfg.Playback.SampleRate,
		Channels:        cfg.Playback.Channels,
		FFPlayPath:      cfg.Playback.FFPlayCommand,
		Volume:          cfg.Playback.Volume,
		FramesPerBuffer: cfg.Playback.FramesPerBuffer,
	})
	if err != nil {
		return fail(err)
	}
	partial.player = player

	appMetrics := metrics.NewMetrics()
	var metricsServer *metrics.Server
	if cfg.Metrics.Address != "" {
		metricsServer = metrics.NewServer(cfg.Metrics.Address, appMetrics, logger)
		if err := metricsServer.Start(); err != nil {
			return fail(err)
		}
		partial.metricsServer = metricsServer
	}

	dialer := websocket.NewDialer(websocket.Config{
		BaseURL:          cfg.Backend.URL,
		Path:             cfg.Backend.Path,
		ModeDelivery:     websocket.ModeDelivery(cfg.Backend.ModeDelivery),
		AuthToken:        cfg.Backend.AuthToken,
		HandshakeTimeout: cfg.Backend.HandshakeTimeout,
	}, logger)

	controller, err := newController(usecase.Dependencies{
		Dialer:    dialer,
		Capture:   capture.NewFFMPEGCapture(cfg.Capture.FFmpegCommand, logger),
		Player:    player,
		Observer:  observer,
		Rules:     rulesEngine,
		Clipboard: clipboard,
		Metrics:   appMetrics,
		Logger:    logger,
	}, usecase.Config{
		Capture: ports.CaptureConfig{
			AudioInputFormat:  cfg.Capture.AudioInputFormat,
			AudioDevice:       cfg.Capture.AudioDevice,
			SampleRate:        cfg.Capture.SampleRate,
			Channels:          cfg.Capture.Channels,
			CameraInputFormat: cfg.Capture.CameraInputFormat,
			CameraDevice:      cfg.Capture.CameraDevice,
			ScreenInputFormat: cfg.Capture.ScreenInputFormat,
			ScreenDevice:      cfg.Capture.ScreenDevice,
			FrameRate:         cfg.Capture.FrameRate,
			VideoSize:         cfg.Capture.VideoSize,
		},
		TextFormat:          textFormat,
		FlushInterval:       cfg.Session.FlushInterval,
		ChunkSize:           cfg.Session.ChunkSize,
		RestartPolicy:       restart,
		CloseOnCaptureError: cfg.Session.CloseOnCaptureError,
	})
	if err != nil {
		return fail(err)
	}

	logger.Info("services ready",
		slog.String("backend", cfg.Backend.URL+cfg.Backend.Path),
		slog.String("mode_delivery", cfg.Backend.ModeDelivery),
		slog.String("playback", cfg.Playback.Backend),
		slog.String("audio_format", string(audioFormat)),
		slog.Int("rules", rulesEngine.Len()),
		slog.Duration("flush_interval", cfg.Session.FlushInterval),
	)

	return Services{
		Controller:    controller,
		Config:        cfg,
		Logger:        logger,
		Metrics:       appMetrics,
		Rules:         rulesEngine,
		metricsServer: metricsServer,
		player:        player,
		logCloser:     logCloser,
	}, nil
}

// MetricsAddr is the bound metrics listener address, or "" when disabled.
func (s Services) MetricsAddr() string {
	if s.metricsServer == nil {
		return ""
	}
	return s.metricsServer.Addr()
}

// Close stops the controller and releases process-wide resources.
func (s Services) Close() error {
	var errs []error
	if s.Controller != nil {
		errs = append(errs, s.Controller.Close())
	}
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, s.metricsServer.Shutdown(ctx))
		cancel()
	}
	if s.player != nil {
		errs = append(errs, s.player.Close())
	}
	if s.logCloser != nil {
		errs = append(errs, s.logCloser.Close())
	}
	return errors.Join(errs...)
}
