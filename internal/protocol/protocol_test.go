package protocol

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"parley/internal/domain"
)

// 1x1 transparent PNG.
const pngB64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func TestDecodeTextStructuredText(t *testing.T) {
	t.Parallel()

	event, err := DecodeText([]byte(`{"type":"text","data":"hello"}`), FormatAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Kind != EventText || event.Text != "hello" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestDecodeTextStructuredVideo(t *testing.T) {
	t.Parallel()

	for _, kind := range []string{"video", "image"} {
		event, err := DecodeText([]byte(`{"type":"`+kind+`","data":"`+pngB64+`"}`), FormatJSON)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", kind, err)
		}
		if event.Kind != EventImage {
			t.Fatalf("%s: expected image event, got %+v", kind, event)
		}
		if event.Image.MIMEType != "image/png" {
			t.Fatalf("%s: unexpected mime: %q", kind, event.Image.MIMEType)
		}
		if event.Image.Base64 != pngB64 || event.Image.Size == 0 {
			t.Fatalf("%s: unexpected frame: %+v", kind, event.Image)
		}
	}
}

func TestDecodeTextPlainString(t *testing.T) {
	t.Parallel()

	for _, format := range []TextFormat{FormatAuto, FormatPlain} {
		event, err := DecodeText([]byte("hello"), format)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", format, err)
		}
		if event.Kind != EventText || event.Text != "hello" {
			t.Fatalf("%s: unexpected event: %+v", format, event)
		}
	}
}

func TestDecodeTextPlainModeKeepsJSONVerbatim(t *testing.T) {
	t.Parallel()

	payload := `{"type":"text","data":"hello"}`
	event, err := DecodeText([]byte(payload), FormatPlain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Text != payload {
		t.Fatalf("expected verbatim payload, got %q", event.Text)
	}
}

func TestDecodeTextAutoFallsBackForNonEnvelopes(t *testing.T) {
	t.Parallel()

	cases := []string{`{not json`, `{"data":"no type"}`, `  `, `[1,2]`}
	for _, payload := range cases {
		event, err := DecodeText([]byte(payload), FormatAuto)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", payload, err)
		}
		if event.Kind != EventText || event.Text != payload {
			t.Fatalf("%q: unexpected event: %+v", payload, event)
		}
	}
}

func TestDecodeTextJSONModeRejectsPlain(t *testing.T) {
	t.Parallel()

	_, err := DecodeText([]byte("hello"), FormatJSON)
	if err == nil {
		t.Fatalf("expected malformed envelope error")
	}
	if domain.CodeOf(err) != domain.ErrorCodeProtocol {
		t.Fatalf("expected protocol error code, got %q", domain.CodeOf(err))
	}
}

func TestDecodeTextUnknownType(t *testing.T) {
	t.Parallel()

	_, err := DecodeText([]byte(`{"type":"telemetry","data":"x"}`), FormatAuto)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected unknown type error, got %v", err)
	}
	if domain.CodeOf(err) != domain.ErrorCodeProtocol {
		t.Fatalf("expected protocol error code")
	}
}

func TestDecodeTextNonStringData(t *testing.T) {
	t.Parallel()

	_, err := DecodeText([]byte(`{"type":"text","data":42}`), FormatJSON)
	if !errors.Is(err, ErrBadData) {
		t.Fatalf("expected bad data error, got %v", err)
	}
}

func TestDecodeImageRejectsInvalidBase64(t *testing.T) {
	t.Parallel()

	_, err := DecodeText([]byte(`{"type":"video","data":"@@@"}`), FormatAuto)
	if !errors.Is(err, ErrBadImage) {
		t.Fatalf("expected bad image error, got %v", err)
	}
	_, err = DecodeImage("")
	if !errors.Is(err, ErrBadImage) {
		t.Fatalf("expected bad image error for empty data, got %v", err)
	}
}

func TestDecodeImageDataURL(t *testing.T) {
	t.Parallel()

	jpeg := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10, 'J', 'F', 'I', 'F'})
	frame, err := DecodeImage("data:image/jpeg;base64," + jpeg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.MIMEType != "image/jpeg" || frame.Base64 != jpeg {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	if !strings.HasPrefix(frame.DataURL(), "data:image/jpeg;base64,") {
		t.Fatalf("unexpected data url: %s", frame.DataURL())
	}

	if _, err := DecodeImage("data:image/jpeg," + jpeg); !errors.Is(err, ErrBadImage) {
		t.Fatalf("expected non-base64 data url to be rejected, got %v", err)
	}
}

func TestParseTextFormat(t *testing.T) {
	t.Parallel()

	cases := map[string]TextFormat{
		"":                FormatAuto,
		"auto":            FormatAuto,
		"PLAIN":           FormatPlain,
		"plain-string":    FormatPlain,
		"json":            FormatJSON,
		"structured-json": FormatJSON,
	}
	for input, want := range cases {
		got, err := ParseTextFormat(input)
		if err != nil || got != want {
			t.Fatalf("ParseTextFormat(%q) = %q, %v; want %q", input, got, err, want)
		}
	}
	if _, err := ParseTextFormat("xml"); err == nil {
		t.Fatalf("expected unknown format error")
	}
}
