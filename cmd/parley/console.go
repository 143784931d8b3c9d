package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"parley/internal/domain"
	"parley/internal/usecase"
)

// sessionControl is the subset of the controller the console drives.
type sessionControl interface {
	Start(ctx context.Context, mode domain.Mode) error
	Stop(ctx context.Context) error
	SendText(ctx context.Context, text string) error
	Status() domain.Status
	CopyTranscript(ctx context.Context) (string, error)
}

// console prints controller events to a terminal and turns stdin lines into commands.
// It also stands in for the clipboard by printing the transcript.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *console) OnOpen()                   { c.printf("* connected") }
func (c *console) OnClose()                  { c.printf("* disconnected") }
func (c *console) OnTextMessage(text string) { c.printf("assistant: %s", text) }
func (c *console) OnError(message string)    { c.printf("! %s", message) }

func (c *console) OnImageFrame(frame domain.ImageFrame) {
	c.printf("* frame %s (%d bytes)", frame.MIMEType, frame.Size)
}

func (c *console) OnCaptureError(message string) {
	c.printf("! capture unavailable: %s", message)
}

func (c *console) OnStateChanged(domain.Status) {}

func (c *console) SetText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.out, text)
	return err
}

// Run reads commands until EOF, /quit or ctx is done:
//
//	/start <mode>  open a new session
//	/stop          end the session
//	/status        print the session status
//	/transcript    print the conversation log
//
// Any other line is sent as text.
func (c *console) Run(ctx context.Context, in io.Reader, control sessionControl) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	defer func() {
		_ = control.Stop(context.Background())
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			done, err := c.handle(ctx, strings.TrimSpace(line), control)
			if err != nil {
				c.printf("! %v", err)
			}
			if done {
				return nil
			}
		}
	}
}

func (c *console) handle(ctx context.Context, line string, control sessionControl) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, control.SendText(ctx, line)
	}

	command, arg, _ := strings.Cut(line[1:], " ")
	switch command {
	case "quit", "exit":
		return true, nil
	case "stop":
		return false, control.Stop(ctx)
	case "start":
		mode, err := domain.ParseMode(arg)
		if err != nil {
			return false, err
		}
		return false, control.Start(ctx, mode)
	case "status":
		status := control.Status()
		c.printf("* %s %s capturing=%t playing=%t queued=%d",
			status.Transport, status.Mode, status.Capturing, status.Playing, status.QueuedAudioChunks)
		return false, nil
	case "transcript":
		_, err := control.CopyTranscript(ctx)
		if errors.Is(err, usecase.ErrEmptyTranscript) {
			c.printf("* transcript is empty")
			return false, nil
		}
		return false, err
	default:
		return false, fmt.Errorf("unknown command %q", command)
	}
}
