package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"parley/internal/domain"
	"parley/internal/ports"
	"parley/internal/protocol"
)

var (
	ErrNoActiveSession   = errors.New("no active streaming session")
	ErrSessionActive     = errors.New("a streaming session is already active")
	ErrTransportNotOpen  = errors.New("transport is not open")
	ErrEmptyText         = errors.New("text message is empty")
	ErrControllerClosed  = errors.New("session controller is closed")
	errMissingDependency = errors.New("missing dependency")
)

// Config controls session behavior.
type Config struct {
	// Capture is the template for every session; Mode is filled in by Start.
	Capture             ports.CaptureConfig
	TextFormat          protocol.TextFormat
	FlushInterval       time.Duration
	ChunkSize           int
	RestartPolicy       RestartPolicy
	CloseOnCaptureError bool
	LogLimit            int
}

// Dependencies are the collaborators the controller drives. Dialer, Capture and Player are
// required; the rest fall back to no-ops.
type Dependencies struct {
	Dialer    ports.TransportDialer
	Capture   ports.CaptureSource
	Player    ports.Player
	Observer  ports.Observer
	Rules     ports.TextRules
	Clipboard ports.Clipboard
	Metrics   ports.Metrics
	Logger    *slog.Logger
}

// SessionController runs one streaming session at a time.
//
// Every state transition happens on a single loop goroutine. Dialing, transport reads, capture
// reads and playback run on their own goroutines and post events back to the loop. Observer
// methods are invoked on the loop goroutine and must not call back into the controller
// synchronously.
type SessionController struct {
	dialer   ports.TransportDialer
	capture  ports.CaptureSource
	player   ports.Player
	observer ports.Observer
	rules    ports.TextRules
	metrics  ports.Metrics
	logger   *slog.Logger
	exporter transcriptExporter
	cfg      Config

	log       *conversationLog
	newTicker func(time.Duration) flushTicker

	inbox chan func()
	quit  chan struct{}
	done  chan struct{}

	closeOnce sync.Once

	statusMu sync.RWMutex
	status   domain.Status

	// current is only read and written on the loop goroutine.
	current *session
}

func NewSessionController(deps Dependencies, cfg Config) (*SessionController, error) {
	switch {
	case deps.Dialer == nil:
		return nil, fmt.Errorf("%w: transport dialer", errMissingDependency)
	case deps.Capture == nil:
		return nil, fmt.Errorf("%w: capture source", errMissingDependency)
	case deps.Player == nil:
		return nil, fmt.Errorf("%w: audio player", errMissingDependency)
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Rules == nil {
		deps.Rules = identityRules{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 250 * time.Millisecond
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.RestartPolicy == "" {
		cfg.RestartPolicy = RestartReject
	}
	if cfg.TextFormat == "" {
		cfg.TextFormat = protocol.FormatAuto
	}

	c := &SessionController{
		dialer:    deps.Dialer,
		capture:   deps.Capture,
		player:    deps.Player,
		observer:  deps.Observer,
		rules:     deps.Rules,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		exporter:  newTranscriptExporter(deps.Clipboard),
		cfg:       cfg,
		log:       newConversationLog(cfg.LogLimit, nil),
		newTicker: newFlushTicker,
		inbox:     make(chan func(), 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		status:    domain.Status{Transport: domain.TransportIdle},
	}
	go c.run()
	return c, nil
}

// Start opens a transport for mode and begins capture once it is open. It returns as soon as
// the connection attempt is underway; OnOpen or OnError reports the outcome.
func (c *SessionController) Start(ctx context.Context, mode domain.Mode) error {
	mode, err := domain.ParseMode(string(mode))
	if err != nil {
		return err
	}
	return c.call(ctx, func() error {
		if c.current != nil {
			if c.cfg.RestartPolicy != RestartReplace {
				return ErrSessionActive
			}
			c.logger.Info("replacing active session", slog.String("session_id", c.current.id))
			c.closeSession(c.current)
		}
		c.openSession(mode)
		return nil
	})
}

// Stop closes the active session. It is a no-op when nothing is running.
func (c *SessionController) Stop(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.current == nil {
			return nil
		}
		c.closeSession(c.current)
		return nil
	})
}

// SendText rewrites text with the configured rules and sends it as one text frame.
func (c *SessionController) SendText(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return c.call(ctx, func() error {
		s := c.current
		if s == nil {
			return ErrNoActiveSession
		}
		if s.state != domain.TransportOpen || s.transport == nil {
			return ErrTransportNotOpen
		}

		rewritten, err := c.rules.Apply(text)
		if err != nil {
			return domain.NewError(domain.ErrorCodeSend, fmt.Errorf("failed to apply text rules: %w", err))
		}
		if err := s.transport.SendText(rewritten); err != nil {
			wrapped := fmt.Errorf("failed to send text: %w", err)
			c.reportError(s, domain.ErrorCodeSend, wrapped)
			return domain.NewError(domain.ErrorCodeSend, wrapped)
		}
		c.log.Append(domain.LogRoleUser, rewritten)
		return nil
	})
}

// Status returns the last published status. Safe to call from observer callbacks.
func (c *SessionController) Status() domain.Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

// Conversation returns a copy of the conversation log.
func (c *SessionController) Conversation() []domain.LogEntry {
	return c.log.Snapshot()
}

// CopyTranscript renders the conversation log and writes it to the clipboard.
func (c *SessionController) CopyTranscript(ctx context.Context) (string, error) {
	return c.exporter.Export(ctx, c.log.Snapshot())
}

// Close stops any active session and shuts the loop down.
func (c *SessionController) Close() error {
	c.closeOnce.Do(func() {
		close(c.quit)
	})
	<-c.done
	return nil
}

func (c *SessionController) run() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.current.tick():
			c.flush(c.current)
		case <-c.quit:
			if c.current != nil {
				c.closeSession(c.current)
			}
			return
		}
	}
}

// call runs fn on the loop and waits for its result.
func (c *SessionController) call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case c.inbox <- func() { result <- fn() }:
	case <-c.done:
		return ErrControllerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-c.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrControllerClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post hands fn to the loop unless s has ended first. Handlers still check that s is current,
// since a session can end between a successful post and its execution.
func (c *SessionController) post(s *session, fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (c *SessionController) openSession(mode domain.Mode) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:        uuid.NewString(),
		mode:      mode,
		state:     domain.TransportConnecting,
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.current = s

	c.logger.Info("session starting", slog.String("session_id", s.id), slog.String("mode", string(mode)))
	c.log.Append(domain.LogRoleSystem, fmt.Sprintf("connecting (%s)", mode))
	c.publish()

	go c.dial(s)
}

func (c *SessionController) dial(s *session) {
	transport, err := c.dialer.Dial(s.ctx, s.mode)
	posted := c.post(s, func() { c.handleDialed(s, transport, err) })
	if !posted && transport != nil {
		_ = transport.Close()
	}
}

func (c *SessionController) handleDialed(s *session, transport ports.Transport, err error) {
	if c.current != s {
		if transport != nil {
			_ = transport.Close()
		}
		return
	}
	if err != nil {
		c.reportError(s, domain.ErrorCodeTransport, err)
		c.closeSession(s)
		return
	}

	s.transport = transport
	s.state = domain.TransportOpen
	s.openedAt = time.Now()
	s.ticker = c.newTicker(c.cfg.FlushInterval)
	c.metrics.SessionStarted(s.mode)

	c.logger.Info("session open", slog.String("session_id", s.id))
	c.log.Append(domain.LogRoleSystem, "connected")
	c.observer.OnOpen()
	c.publish()

	go c.forwardInbound(s, transport)
	go c.acquireCapture(s)
}

func (c *SessionController) forwardInbound(s *session, transport ports.Transport) {
	for msg := range transport.Inbound() {
		msg := msg
		if !c.post(s, func() { c.handleInbound(s, msg) }) {
			return
		}
	}
	err := transport.Wait()
	c.post(s, func() { c.handleRemoteClose(s, err) })
}

func (c *SessionController) handleRemoteClose(s *session, err error) {
	if c.current != s {
		return
	}
	if err != nil {
		c.reportError(s, domain.ErrorCodeTransport, fmt.Errorf("connection lost: %w", err))
	}
	c.logger.Info("transport closed by backend", slog.String("session_id", s.id))
	c.closeSession(s)
}

// closeSession moves s through Closing and Closed, releasing capture before the transport.
func (c *SessionController) closeSession(s *session) {
	if s.state == domain.TransportClosing || s.state == domain.TransportClosed {
		return
	}
	wasOpen := s.state == domain.TransportOpen
	s.state = domain.TransportClosing
	c.publish()

	if s.ticker != nil {
		s.ticker.Stop()
	}
	c.releaseCapture(s)
	if wasOpen {
		c.flush(s)
	}
	s.cancel()

	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			c.logger.Debug("transport close returned error", slog.String("session_id", s.id), slog.String("error", err.Error()))
		}
		s.transport = nil
	}

	s.pending = nil
	s.playbackQueue = nil
	s.playbackActive = false
	s.state = domain.TransportClosed
	if wasOpen {
		c.metrics.SessionEnded(time.Since(s.openedAt).Seconds())
		c.metrics.QueueDepth(0)
	}

	c.logger.Info("session closed", slog.String("session_id", s.id))
	c.log.Append(domain.LogRoleSystem, "disconnected")
	c.publish()
	c.observer.OnClose()

	if c.current == s {
		c.current = nil
	}
	c.publish()
}

// reportError records err in the log and surfaces it to the observer.
func (c *SessionController) reportError(s *session, code domain.ErrorCode, err error) {
	message := err.Error()
	attrs := []any{slog.String("code", string(code)), slog.String("error", message)}
	if s != nil {
		attrs = append(attrs, slog.String("session_id", s.id))
	}
	c.logger.Warn("session error", attrs...)

	c.metrics.ErrorRaised(code)
	c.log.Append(domain.LogRoleError, message)
	if code == domain.ErrorCodeCapture {
		c.observer.OnCaptureError(message)
		return
	}
	c.observer.OnError(message)
}

func (c *SessionController) publish() {
	status := c.current.status()
	c.statusMu.Lock()
	c.status = status
	c.statusMu.Unlock()
	c.observer.OnStateChanged(status)
}

type nopObserver struct{}

func (nopObserver) OnOpen()                        {}
func (nopObserver) OnTextMessage(string)           {}
func (nopObserver) OnImageFrame(domain.ImageFrame) {}
func (nopObserver) OnClose()                       {}
func (nopObserver) OnError(string)                 {}
func (nopObserver) OnCaptureError(string)          {}
func (nopObserver) OnStateChanged(domain.Status)   {}

type identityRules struct{}

func (identityRules) Apply(text string) (string, error) { return text, nil }

type nopMetrics struct{}

func (nopMetrics) SessionStarted(domain.Mode)           {}
func (nopMetrics) SessionEnded(float64)                 {}
func (nopMetrics) ChunkFlushed(int)                     {}
func (nopMetrics) InboundReceived(string)               {}
func (nopMetrics) PlaybackFinished(int, float64, error) {}
func (nopMetrics) QueueDepth(int)                       {}
func (nopMetrics) ErrorRaised(domain.ErrorCode)         {}
