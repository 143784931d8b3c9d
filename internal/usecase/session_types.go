package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"parley/internal/domain"
	"parley/internal/ports"
)

// RestartPolicy decides what Start does while a session is already running.
type RestartPolicy string

const (
	// RestartReject refuses the second Start with ErrSessionActive.
	RestartReject RestartPolicy = "reject"
	// RestartReplace tears the running session down before starting the new one.
	RestartReplace RestartPolicy = "replace"
)

func ParseRestartPolicy(value string) (RestartPolicy, error) {
	switch RestartPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", RestartReject:
		return RestartReject, nil
	case RestartReplace:
		return RestartReplace, nil
	default:
		return "", fmt.Errorf("unknown restart policy %q", value)
	}
}

// session is owned by the controller loop. No field is touched from any other goroutine.
type session struct {
	id        string
	mode      domain.Mode
	state     domain.TransportState
	startedAt time.Time
	openedAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc

	transport ports.Transport
	capture   ports.CaptureSession
	ticker    flushTicker

	// pending holds captured chunks awaiting the next flush.
	pending [][]byte

	// playbackQueue holds inbound audio chunks received while a unit is playing.
	playbackQueue  [][]byte
	playbackActive bool
}

func (s *session) tick() <-chan time.Time {
	if s == nil || s.ticker == nil {
		return nil
	}
	return s.ticker.C()
}

type flushTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func newFlushTicker(interval time.Duration) flushTicker {
	return timeTicker{ticker: time.NewTicker(interval)}
}

func (t timeTicker) C() <-chan time.Time { return t.ticker.C }

func (t timeTicker) Stop() { t.ticker.Stop() }

func (s *session) status() domain.Status {
	if s == nil {
		return domain.Status{Transport: domain.TransportIdle}
	}
	return domain.Status{
		SessionID:         s.id,
		Mode:              s.mode,
		Transport:         s.state,
		Capturing:         s.capture != nil,
		Playing:           s.playbackActive,
		QueuedAudioChunks: len(s.playbackQueue),
		Active:            s.state != domain.TransportClosed,
	}
}
