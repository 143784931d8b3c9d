package usecase

import (
	"log/slog"

	"parley/internal/domain"
	"parley/internal/protocol"
)

// handleInbound routes one frame: binary is audio for the playback queue, text goes through
// the protocol codec.
func (c *SessionController) handleInbound(s *session, msg domain.InboundMessage) {
	if c.current != s || s.state != domain.TransportOpen {
		return
	}
	c.metrics.InboundReceived(protocol.Describe(msg))

	if msg.Kind == domain.InboundBinary {
		c.enqueueAudio(s, msg.Data)
		return
	}

	event, err := protocol.DecodeText(msg.Data, c.cfg.TextFormat)
	if err != nil {
		c.reportError(s, domain.ErrorCodeProtocol, err)
		return
	}

	switch event.Kind {
	case protocol.EventText:
		text, ok := logText(event.Text)
		if !ok {
			c.logger.Debug("blank text message dropped", slog.String("session_id", s.id))
			return
		}
		c.log.Append(domain.LogRoleAssistant, text)
		c.observer.OnTextMessage(text)
	case protocol.EventImage:
		c.logger.Debug("image frame received", slog.String("session_id", s.id), slog.String("mime", event.Image.MIMEType), slog.Int("bytes", event.Image.Size))
		c.observer.OnImageFrame(event.Image)
	}
}
