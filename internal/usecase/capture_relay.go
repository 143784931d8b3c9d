package usecase

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"parley/internal/domain"
	"parley/internal/ports"
)

func (c *SessionController) acquireCapture(s *session) {
	cfg := c.cfg.Capture
	cfg.Mode = s.mode

	capture, err := c.capture.Start(s.ctx, cfg)
	posted := c.post(s, func() { c.handleCaptureStarted(s, capture, err) })
	if !posted && capture != nil {
		_ = capture.Stop()
	}
}

func (c *SessionController) handleCaptureStarted(s *session, capture ports.CaptureSession, err error) {
	if c.current != s || s.state != domain.TransportOpen {
		if capture != nil {
			_ = capture.Stop()
		}
		return
	}
	if err != nil {
		c.reportError(s, domain.ErrorCodeCapture, fmt.Errorf("failed to start %s capture: %w", s.mode, err))
		if c.cfg.CloseOnCaptureError {
			c.closeSession(s)
		}
		return
	}

	s.capture = capture
	c.logger.Info("capture started", slog.String("session_id", s.id), slog.String("mode", string(s.mode)))
	c.publish()

	go c.readCapture(s, capture)
}

// readCapture forwards captured bytes to the loop, which buffers them until the next flush.
func (c *SessionController) readCapture(s *session, capture ports.CaptureSession) {
	buf := make([]byte, c.cfg.ChunkSize)
	for {
		n, err := capture.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if !c.post(s, func() { c.bufferChunk(s, capture, chunk) }) {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || s.ctx.Err() != nil {
				err = nil
			}
			c.post(s, func() { c.handleCaptureEnded(s, capture, err) })
			return
		}
	}
}

func (c *SessionController) bufferChunk(s *session, capture ports.CaptureSession, chunk []byte) {
	if c.current != s || s.capture != capture {
		return
	}
	s.pending = append(s.pending, chunk)
}

func (c *SessionController) handleCaptureEnded(s *session, capture ports.CaptureSession, err error) {
	if c.current != s || s.capture != capture {
		return
	}
	c.releaseCapture(s)
	if err != nil {
		c.reportError(s, domain.ErrorCodeCapture, fmt.Errorf("capture stopped: %w", err))
		if c.cfg.CloseOnCaptureError {
			c.closeSession(s)
			return
		}
	}
	c.publish()
}

// releaseCapture stops the capture synchronously so the device is free when it returns.
func (c *SessionController) releaseCapture(s *session) {
	if s.capture == nil {
		return
	}
	capture := s.capture
	s.capture = nil
	if err := capture.Stop(); err != nil {
		c.logger.Warn("capture did not stop cleanly", slog.String("session_id", s.id), slog.String("error", err.Error()))
	}
	c.logger.Info("capture released", slog.String("session_id", s.id))
}

// flush merges every buffered chunk into one binary frame.
func (c *SessionController) flush(s *session) {
	if s == nil || len(s.pending) == 0 {
		return
	}
	if s.transport == nil || s.state == domain.TransportClosed {
		s.pending = nil
		return
	}

	payload := bytes.Join(s.pending, nil)
	s.pending = nil
	if err := s.transport.SendBinary(payload); err != nil {
		c.logger.Debug("dropped outbound media", slog.String("session_id", s.id), slog.Int("bytes", len(payload)), slog.String("error", err.Error()))
		return
	}
	c.metrics.ChunkFlushed(len(payload))
}
