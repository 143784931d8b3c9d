package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode selects which media a session captures.
type Mode string

const (
	ModeCamera Mode = "camera"
	ModeScreen Mode = "screen"
	ModeVoice  Mode = "voice"
)

// ParseMode accepts the UI names plus the backend's "none" alias for voice-only.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "camera", "video":
		return ModeCamera, nil
	case "screen", "screenshare", "screen-share":
		return ModeScreen, nil
	case "voice", "none", "audio", "voice-only":
		return ModeVoice, nil
	default:
		return "", fmt.Errorf("unknown session mode %q", value)
	}
}

// WireValue is the mode string the backend expects.
func (m Mode) WireValue() string {
	if m == ModeVoice {
		return "none"
	}
	return string(m)
}

// HasVideo reports whether the mode captures a video track.
func (m Mode) HasVideo() bool {
	return m == ModeCamera || m == ModeScreen
}

// TransportState models the connection lifecycle.
type TransportState string

const (
	TransportIdle       TransportState = "idle"
	TransportConnecting TransportState = "connecting"
	TransportOpen       TransportState = "open"
	TransportClosing    TransportState = "closing"
	TransportClosed     TransportState = "closed"
)

// ErrorCode classifies errors surfaced to the observer.
type ErrorCode string

const (
	ErrorCodeStartup   ErrorCode = "startup"
	ErrorCodeTransport ErrorCode = "transport"
	ErrorCodeCapture   ErrorCode = "capture"
	ErrorCodeProtocol  ErrorCode = "protocol"
	ErrorCodePlayback  ErrorCode = "playback"
	ErrorCodeSend      ErrorCode = "send"
)

// Error carries an ErrorCode alongside the underlying cause.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code) + " error"
	}
	return fmt.Sprintf("%s error: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with code. A nil err yields nil.
func NewError(code ErrorCode, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: err}
}

// CodeOf extracts the ErrorCode from err, or "" when err is not a *Error.
func CodeOf(err error) ErrorCode {
	var target *Error
	if errors.As(err, &target) {
		return target.Code
	}
	return ""
}

// InboundKind identifies the frame type of an inbound message.
type InboundKind string

const (
	InboundText   InboundKind = "text"
	InboundBinary InboundKind = "binary"
)

// InboundMessage is one frame received over the transport.
type InboundMessage struct {
	Kind InboundKind
	Data []byte
}

// ImageFrame is a still frame pushed by the backend.
type ImageFrame struct {
	MIMEType string `json:"mimeType"`
	Base64   string `json:"base64"`
	Size     int    `json:"size"`
}

// DataURL renders the frame for direct use as an image source.
func (f ImageFrame) DataURL() string {
	return "data:" + f.MIMEType + ";base64," + f.Base64
}

// LogRole tags who produced a conversation line.
type LogRole string

const (
	LogRoleAssistant LogRole = "assistant"
	LogRoleUser      LogRole = "user"
	LogRoleSystem    LogRole = "system"
	LogRoleError     LogRole = "error"
)

// LogEntry is one line of the conversation log.
type LogEntry struct {
	Role LogRole   `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Status summarizes the controller state for the UI.
type Status struct {
	SessionID         string         `json:"sessionId,omitempty"`
	Mode              Mode           `json:"mode,omitempty"`
	Transport         TransportState `json:"transport"`
	Capturing         bool           `json:"capturing"`
	Playing           bool           `json:"playing"`
	QueuedAudioChunks int            `json:"queuedAudioChunks"`
	Active            bool           `json:"active"`
	Message           string         `json:"message,omitempty"`
}
