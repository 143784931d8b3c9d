package ports

import (
	"context"
	"io"

	"parley/internal/domain"
)

// CaptureConfig describes how media should be captured for a session.
type CaptureConfig struct {
	Mode domain.Mode

	AudioInputFormat string
	AudioDevice      string
	SampleRate       int
	Channels         int

	CameraInputFormat string
	CameraDevice      string
	ScreenInputFormat string
	ScreenDevice      string
	FrameRate         int
	VideoSize         string
}

// CaptureSession is a live capture resource.
type CaptureSession interface {
	io.ReadCloser
	Stop() error
}

// CaptureSource acquires capture resources.
type CaptureSource interface {
	Start(ctx context.Context, cfg CaptureConfig) (CaptureSession, error)
}

// Transport is an open bidirectional message connection.
type Transport interface {
	SendBinary(chunk []byte) error
	SendText(text string) error
	Inbound() <-chan domain.InboundMessage
	Wait() error
	Close() error
}

// TransportDialer opens transports to the backend.
type TransportDialer interface {
	Dial(ctx context.Context, mode domain.Mode) (Transport, error)
}

// Player plays one merged audio unit and returns once playback has finished.
type Player interface {
	Play(ctx context.Context, unit []byte) error
}

// TextRules rewrites user-typed text before it is sent.
type TextRules interface {
	Apply(text string) (string, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// Observer receives controller events on behalf of the UI.
type Observer interface {
	OnOpen()
	OnTextMessage(text string)
	OnImageFrame(frame domain.ImageFrame)
	OnClose()
	OnError(message string)
	OnCaptureError(message string)
	OnStateChanged(status domain.Status)
}

// Metrics records controller activity.
type Metrics interface {
	SessionStarted(mode domain.Mode)
	SessionEnded(seconds float64)
	ChunkFlushed(bytes int)
	InboundReceived(kind string)
	PlaybackFinished(bytes int, seconds float64, err error)
	QueueDepth(chunks int)
	ErrorRaised(code domain.ErrorCode)
}
