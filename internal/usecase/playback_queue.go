package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"parley/internal/domain"
)

// enqueueAudio queues one inbound chunk and starts playback if nothing is playing.
func (c *SessionController) enqueueAudio(s *session, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.playbackQueue = append(s.playbackQueue, chunk)
	c.metrics.QueueDepth(len(s.playbackQueue))
	if !c.drainPlayback(s) {
		c.publish()
	}
}

// drainPlayback merges the whole queue into one unit and plays it. Units never overlap: a new
// one starts only after the previous unit's completion has been handled on the loop.
func (c *SessionController) drainPlayback(s *session) bool {
	if s.playbackActive || len(s.playbackQueue) == 0 {
		return false
	}

	chunks := len(s.playbackQueue)
	unit := bytes.Join(s.playbackQueue, nil)
	s.playbackQueue = nil
	s.playbackActive = true
	c.metrics.QueueDepth(0)
	c.publish()

	c.logger.Debug("playing audio unit", slog.String("session_id", s.id), slog.Int("chunks", chunks), slog.Int("bytes", len(unit)))
	go c.play(s, unit)
	return true
}

func (c *SessionController) play(s *session, unit []byte) {
	started := time.Now()
	err := c.player.Play(s.ctx, unit)
	elapsed := time.Since(started).Seconds()
	c.post(s, func() { c.handlePlaybackDone(s, len(unit), elapsed, err) })
}

func (c *SessionController) handlePlaybackDone(s *session, size int, seconds float64, err error) {
	if c.current != s || !s.playbackActive {
		return
	}
	s.playbackActive = false
	c.metrics.PlaybackFinished(size, seconds, err)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.reportError(s, domain.ErrorCodePlayback, fmt.Errorf("audio playback failed: %w", err))
	}
	if !c.drainPlayback(s) {
		c.publish()
	}
}
