package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"parley/internal/bootstrap"
	"parley/internal/domain"
	"parley/internal/usecase"
)

const (
	eventOpen         = "parley:open"
	eventText         = "parley:text"
	eventImage        = "parley:image"
	eventClose        = "parley:close"
	eventError        = "parley:error"
	eventCaptureError = "parley:capture-error"
	eventState        = "parley:state"
)

// App is the Wails application root. It doubles as the controller's observer and forwards
// every controller event to the frontend.
type App struct {
	ctx context.Context

	services bootstrap.Services
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, &wailsClipboard{})
	if err != nil {
		a.bootErr = err
		a.emitError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.OnStateChanged(services.Controller.Status())
}

func (a *App) shutdown(context.Context) {
	if a.services.Controller == nil {
		return
	}
	if err := a.services.Close(); err != nil {
		a.services.Logger.Warn("shutdown finished with errors", "error", err.Error())
	}
}

// Start opens a session in the given mode: "camera", "screen" or "voice".
func (a *App) Start(mode string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	parsed, err := domain.ParseMode(mode)
	if err != nil {
		return a.GetStatus(), err
	}
	if err := a.services.Controller.Start(a.ctx, parsed); err != nil {
		if !errors.Is(err, usecase.ErrSessionActive) {
			a.emitError(domain.ErrorCodeTransport, err.Error())
		}
		return a.GetStatus(), err
	}
	return a.GetStatus(), nil
}

// Stop ends the active session, if any.
func (a *App) Stop() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Controller.Stop(a.ctx)
}

// SendText sends typed text to the backend.
func (a *App) SendText(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Controller.SendText(a.ctx, text)
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.services.Controller == nil {
		status := domain.Status{Transport: domain.TransportIdle}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	status := a.services.Controller.Status()
	status.Message = statusMessage(status)
	return status
}

// GetConversation returns the conversation log.
func (a *App) GetConversation() []domain.LogEntry {
	if a.services.Controller == nil {
		return nil
	}
	return a.services.Controller.Conversation()
}

// CopyTranscript copies the conversation log to the clipboard.
func (a *App) CopyTranscript() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	transcript, err := a.services.Controller.CopyTranscript(a.ctx)
	if err != nil && !errors.Is(err, usecase.ErrEmptyTranscript) {
		a.emitError(domain.ErrorCodeSend, err.Error())
	}
	return transcript, err
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	cfg := a.services.Config
	return map[string]string{
		"backend":       cfg.Backend.URL + cfg.Backend.Path,
		"modeDelivery":  cfg.Backend.ModeDelivery,
		"textFormat":    cfg.Backend.TextFormat,
		"audioInput":    cfg.Capture.AudioDevice,
		"playback":      cfg.Playback.Backend,
		"audioFormat":   cfg.Playback.Format,
		"restartPolicy": cfg.Session.RestartPolicy,
		"rulesFile":     cfg.Rules.Path,
		"configFile":    cfg.Source,
		"metrics":       a.services.MetricsAddr(),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services.Controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) OnOpen() {
	a.emit(eventOpen, nil)
}

func (a *App) OnTextMessage(text string) {
	a.emit(eventText, map[string]string{"text": text})
}

func (a *App) OnImageFrame(frame domain.ImageFrame) {
	a.emit(eventImage, map[string]any{
		"mimeType": frame.MIMEType,
		"size":     frame.Size,
		"src":      frame.DataURL(),
	})
}

func (a *App) OnClose() {
	a.emit(eventClose, nil)
}

func (a *App) OnError(message string) {
	a.emit(eventError, map[string]string{"title": "Session error", "message": message})
}

func (a *App) OnCaptureError(message string) {
	a.emit(eventCaptureError, map[string]string{
		"title":   errorTitle(domain.ErrorCodeCapture),
		"message": message,
	})
}

func (a *App) OnStateChanged(status domain.Status) {
	status.Message = statusMessage(status)
	a.emit(eventState, status)
}

func (a *App) emitError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"title":   errorTitle(code),
		"message": detail,
	})
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil {
		return
	}
	if payload == nil {
		runtime.EventsEmit(a.ctx, name)
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

func statusMessage(status domain.Status) string {
	switch status.Transport {
	case domain.TransportIdle:
		return "Not connected"
	case domain.TransportConnecting:
		return fmt.Sprintf("Connecting (%s)...", status.Mode)
	case domain.TransportOpen:
		if !status.Capturing {
			return "Connected, capture unavailable"
		}
		if status.Playing {
			return fmt.Sprintf("Live (%s), agent speaking", status.Mode)
		}
		return fmt.Sprintf("Live (%s)", status.Mode)
	case domain.TransportClosing:
		return "Disconnecting..."
	case domain.TransportClosed:
		return "Disconnected"
	default:
		return ""
	}
}

func errorTitle(code domain.ErrorCode) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeTransport:
		return "Connection problem"
	case domain.ErrorCodeCapture:
		return "Capture unavailable"
	case domain.ErrorCodeProtocol:
		return "Unreadable message"
	case domain.ErrorCodePlayback:
		return "Playback failed"
	case domain.ErrorCodeSend:
		return "Could not send"
	default:
		return "Unknown error"
	}
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
