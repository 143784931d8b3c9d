package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"parley/internal/domain"
	"parley/internal/usecase"
)

type fakeControl struct {
	started    []domain.Mode
	stops      int
	sent       []string
	transcript string
	status     domain.Status
	sendErr    error
	clipboard  *console
}

func (f *fakeControl) Start(_ context.Context, mode domain.Mode) error {
	f.started = append(f.started, mode)
	return nil
}

func (f *fakeControl) Stop(context.Context) error {
	f.stops++
	return nil
}

func (f *fakeControl) SendText(_ context.Context, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeControl) Status() domain.Status { return f.status }

func (f *fakeControl) CopyTranscript(ctx context.Context) (string, error) {
	if f.transcript == "" {
		return "", usecase.ErrEmptyTranscript
	}
	return f.transcript, f.clipboard.SetText(ctx, f.transcript)
}

func TestConsoleRunDispatchesCommands(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := newConsole(&out)
	control := &fakeControl{
		transcript: "10:00:00 user: hi\n",
		status:     domain.Status{Transport: domain.TransportOpen, Mode: domain.ModeScreen, Capturing: true},
		clipboard:  c,
	}

	input := strings.Join([]string{
		"hello there",
		"",
		"/status",
		"/start camera",
		"/transcript",
		"/stop",
		"/bogus",
		"/quit",
		"never sent",
	}, "\n")

	if err := c.Run(context.Background(), strings.NewReader(input), control); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(control.sent) != 1 || control.sent[0] != "hello there" {
		t.Fatalf("unexpected sent text: %v", control.sent)
	}
	if len(control.started) != 1 || control.started[0] != domain.ModeCamera {
		t.Fatalf("unexpected starts: %v", control.started)
	}
	// explicit /stop plus the one on exit
	if control.stops != 2 {
		t.Fatalf("expected 2 stops, got %d", control.stops)
	}

	got := out.String()
	for _, want := range []string{
		"* open screen capturing=true playing=false queued=0",
		"10:00:00 user: hi",
		`! unknown command "bogus"`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestConsoleReportsErrorsAndContinues(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := newConsole(&out)
	control := &fakeControl{sendErr: errors.New("no active session"), clipboard: c}

	input := "hi\n/start sideways\n/transcript\n"
	if err := c.Run(context.Background(), strings.NewReader(input), control); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"! no active session",
		`! unknown session mode "sideways"`,
		"* transcript is empty",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestConsoleObserverOutput(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := newConsole(&out)
	c.OnOpen()
	c.OnTextMessage("hello")
	c.OnImageFrame(domain.ImageFrame{MIMEType: "image/jpeg", Size: 42})
	c.OnCaptureError("camera busy")
	c.OnError("transport error: reset")
	c.OnStateChanged(domain.Status{})
	c.OnClose()

	want := strings.Join([]string{
		"* connected",
		"assistant: hello",
		"* frame image/jpeg (42 bytes)",
		"! capture unavailable: camera busy",
		"! transport error: reset",
		"* disconnected",
		"",
	}, "\n")
	if out.String() != want {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}
