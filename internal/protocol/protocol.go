// Package protocol decodes inbound text frames from the interview backend.
//
// The backend sends either bare strings, rendered as log lines, or JSON envelopes
// of the form {"type": "...", "data": ...}. Binary frames never pass through here;
// they are raw audio chunks.
package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wailsapp/mimetype"

	"parley/internal/domain"
)

// TextFormat selects how inbound text frames are interpreted.
type TextFormat string

const (
	// FormatAuto treats JSON objects carrying a "type" as envelopes and everything else as plain text.
	FormatAuto TextFormat = "auto"
	// FormatPlain renders every text frame verbatim.
	FormatPlain TextFormat = "plain"
	// FormatJSON requires every text frame to be an envelope.
	FormatJSON TextFormat = "json"
)

// ParseTextFormat validates a configured format name.
func ParseTextFormat(value string) (TextFormat, error) {
	switch TextFormat(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatPlain, "plain-string":
		return FormatPlain, nil
	case FormatJSON, "structured", "structured-json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown text format %q", value)
	}
}

// EventKind is the decoded meaning of a text frame.
type EventKind string

const (
	EventText  EventKind = "text"
	EventImage EventKind = "image"
)

// Event is a decoded text frame.
type Event struct {
	Kind  EventKind
	Text  string
	Image domain.ImageFrame
}

// Envelope is the structured wire shape.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

var (
	ErrEmptyType   = errors.New("envelope has no type")
	ErrUnknownType = errors.New("unrecognized envelope type")
	ErrBadData     = errors.New("envelope data is not a string")
	ErrBadImage    = errors.New("image data is not valid base64")
)

// DecodeText interprets payload according to format. Failures are domain.Error values
// with ErrorCodeProtocol.
func DecodeText(payload []byte, format TextFormat) (Event, error) {
	switch format {
	case FormatPlain:
		return Event{Kind: EventText, Text: string(payload)}, nil
	case FormatJSON:
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return Event{}, protocolErr(fmt.Errorf("malformed envelope: %w", err))
		}
		return decodeEnvelope(env)
	default:
		env, ok := sniffEnvelope(payload)
		if !ok {
			return Event{Kind: EventText, Text: string(payload)}, nil
		}
		return decodeEnvelope(env)
	}
}

func sniffEnvelope(payload []byte) (Envelope, bool) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, false
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, false
	}
	if strings.TrimSpace(env.Type) == "" {
		return Envelope{}, false
	}
	return env, true
}

func decodeEnvelope(env Envelope) (Event, error) {
	kind := strings.ToLower(strings.TrimSpace(env.Type))
	if kind == "" {
		return Event{}, protocolErr(ErrEmptyType)
	}

	var data string
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Event{}, protocolErr(fmt.Errorf("%w (type %q)", ErrBadData, kind))
		}
	}

	switch kind {
	case "text":
		return Event{Kind: EventText, Text: data}, nil
	case "video", "image":
		frame, err := DecodeImage(data)
		if err != nil {
			return Event{}, protocolErr(err)
		}
		return Event{Kind: EventImage, Image: frame}, nil
	default:
		return Event{}, protocolErr(fmt.Errorf("%w %q", ErrUnknownType, env.Type))
	}
}

// DecodeImage validates base64 image data, accepting an optional data URL prefix.
func DecodeImage(encoded string) (domain.ImageFrame, error) {
	encoded = strings.TrimSpace(encoded)
	declared := ""
	if strings.HasPrefix(encoded, "data:") {
		header, body, found := strings.Cut(encoded, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return domain.ImageFrame{}, ErrBadImage
		}
		declared = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		encoded = body
	}
	if encoded == "" {
		return domain.ImageFrame{}, ErrBadImage
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.ImageFrame{}, fmt.Errorf("%w: %v", ErrBadImage, err)
	}

	mime := declared
	if mime == "" {
		mime = mimetype.Detect(raw).String()
	}
	return domain.ImageFrame{MIMEType: mime, Base64: encoded, Size: len(raw)}, nil
}

// Describe names a frame kind for metrics and logs.
func Describe(msg domain.InboundMessage) string {
	if msg.Kind == domain.InboundBinary {
		return "audio"
	}
	return "text"
}

func protocolErr(err error) error {
	return domain.NewError(domain.ErrorCodeProtocol, err)
}
