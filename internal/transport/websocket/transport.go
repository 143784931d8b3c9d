package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"parley/internal/domain"
	"parley/internal/ports"
)

// ModeDelivery selects how the session mode reaches the backend.
type ModeDelivery string

const (
	// ModeInURL passes the mode as the "mode" query parameter.
	ModeInURL ModeDelivery = "query"
	// ModeAsFirstMessage sends the mode as the first text frame.
	ModeAsFirstMessage ModeDelivery = "first_message"
)

var ErrClosed = errors.New("transport closed")

// closeTimeout bounds how long Close waits for queued frames and the close handshake.
const closeTimeout = 2 * time.Second

// Config controls websocket transport settings.
type Config struct {
	BaseURL          string
	Path             string
	ModeDelivery     ModeDelivery
	AuthToken        string
	HandshakeTimeout time.Duration
	OutboundBuffer   int
	InboundBuffer    int
}

// Dialer implements ports.TransportDialer over gorilla/websocket.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
}

func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "ws://localhost:8000"
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.ModeDelivery == "" {
		cfg.ModeDelivery = ModeInURL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.OutboundBuffer <= 0 {
		cfg.OutboundBuffer = 64
	}
	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{cfg: cfg, logger: logger}
}

func (d *Dialer) Dial(ctx context.Context, mode domain.Mode) (ports.Transport, error) {
	wsURL, err := buildSessionURL(d.cfg, mode)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	if token := strings.TrimSpace(d.cfg.AuthToken); token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s (status %d): %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}

	if d.cfg.ModeDelivery == ModeAsFirstMessage {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(mode.WireValue())); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to send session mode: %w", err)
		}
	}

	d.logger.Debug("transport connected", slog.String("url", wsURL), slog.String("mode", string(mode)))
	return newSession(conn, d.cfg.OutboundBuffer, d.cfg.InboundBuffer), nil
}

type outboundFrame struct {
	messageType int
	data        []byte
}

type session struct {
	conn *websocket.Conn

	inbound  chan domain.InboundMessage
	outbound chan outboundFrame
	closing  chan struct{}
	draining chan struct{}
	drained  chan struct{}
	done     chan struct{}

	sendMu     sync.Mutex
	sendClosed bool

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	shutdownOnce sync.Once
	closeOnce    sync.Once
	localClose   atomic.Bool
}

func newSession(conn *websocket.Conn, outboundBuffer, inboundBuffer int) *session {
	s := &session{
		conn:     conn,
		inbound:  make(chan domain.InboundMessage, inboundBuffer),
		outbound: make(chan outboundFrame, outboundBuffer),
		closing:  make(chan struct{}),
		draining: make(chan struct{}),
		drained:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.inbound)
		close(s.done)
		_ = conn.Close()
	}()
	return s
}

func (s *session) SendBinary(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	return s.enqueue(outboundFrame{messageType: websocket.BinaryMessage, data: append([]byte(nil), chunk...)})
}

func (s *session) SendText(text string) error {
	return s.enqueue(outboundFrame{messageType: websocket.TextMessage, data: []byte(text)})
}

func (s *session) enqueue(frame outboundFrame) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return ErrClosed
	}

	select {
	case <-s.closing:
		return s.closedErr()
	default:
	}

	select {
	case s.outbound <- frame:
		return nil
	case <-s.closing:
		return s.closedErr()
	case <-s.draining:
		return ErrClosed
	}
}

func (s *session) closedErr() error {
	if err := s.waitErr(); err != nil {
		return err
	}
	return ErrClosed
}

func (s *session) Inbound() <-chan domain.InboundMessage {
	return s.inbound
}

func (s *session) Wait() error {
	<-s.done
	return s.waitErr()
}

// Close writes every frame already queued, sends a normal close frame and waits for the
// peer to answer, all within closeTimeout. Sends issued after Close return ErrClosed.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.localClose.Store(true)
		close(s.draining)

		s.sendMu.Lock()
		s.sendClosed = true
		close(s.outbound)
		s.sendMu.Unlock()

		timer := time.NewTimer(closeTimeout)
		defer timer.Stop()
		select {
		case <-s.drained:
			select {
			case <-s.done:
			case <-timer.C:
			}
		case <-timer.C:
		}

		s.shutdown()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *session) shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.closing)
	})
}

func (s *session) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *session) setErr(err error) {
	if err == nil || s.localClose.Load() {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *session) writeLoop() {
	defer s.wg.Done()
	defer close(s.drained)

	for {
		select {
		case <-s.closing:
			return
		case frame, ok := <-s.outbound:
			if !ok {
				_ = s.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second),
				)
				return
			}
			if err := s.conn.WriteMessage(frame.messageType, frame.data); err != nil {
				s.setErr(fmt.Errorf("failed to send frame: %w", err))
				s.shutdown()
				// Unblocks readLoop.
				_ = s.conn.Close()
				return
			}
		}
	}
}

func (s *session) readLoop() {
	defer s.wg.Done()
	defer s.shutdown()

	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read frame: %w", err))
			return
		}

		var msg domain.InboundMessage
		switch messageType {
		case websocket.TextMessage:
			msg = domain.InboundMessage{Kind: domain.InboundText, Data: payload}
		case websocket.BinaryMessage:
			msg = domain.InboundMessage{Kind: domain.InboundBinary, Data: payload}
		default:
			continue
		}

		select {
		case s.inbound <- msg:
		case <-s.closing:
			return
		}
	}
}

func buildSessionURL(cfg Config, mode domain.Mode) (string, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = "ws://localhost:8000"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	path := cfg.Path
	if path == "" {
		path = "/ws"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	sessionURL, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("invalid backend URL: %w", err)
	}
	if sessionURL.Scheme != "ws" && sessionURL.Scheme != "wss" {
		return "", fmt.Errorf("invalid backend URL scheme %q", sessionURL.Scheme)
	}

	if cfg.ModeDelivery != ModeAsFirstMessage {
		query := sessionURL.Query()
		query.Set("mode", mode.WireValue())
		sessionURL.RawQuery = query.Encode()
	}
	return sessionURL.String(), nil
}
