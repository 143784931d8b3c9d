package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"parley/internal/domain"
	"parley/internal/ports"
)

var ErrEmptyTranscript = errors.New("conversation log is empty")

type transcriptExporter struct {
	clipboard ports.Clipboard
}

func newTranscriptExporter(clipboard ports.Clipboard) transcriptExporter {
	return transcriptExporter{clipboard: clipboard}
}

// Export renders the log and writes it to the clipboard when one is configured.
func (e transcriptExporter) Export(ctx context.Context, entries []domain.LogEntry) (string, error) {
	if len(entries) == 0 {
		return "", ErrEmptyTranscript
	}

	transcript := formatTranscript(entries)
	if e.clipboard == nil {
		return transcript, nil
	}
	if err := e.clipboard.SetText(ctx, transcript); err != nil {
		return transcript, fmt.Errorf("transcript ready but clipboard write failed: %w", err)
	}
	return transcript, nil
}

func formatTranscript(entries []domain.LogEntry) string {
	var b strings.Builder
	for _, entry := range entries {
		if !entry.At.IsZero() {
			b.WriteString(entry.At.Format("15:04:05"))
			b.WriteByte(' ')
		}
		b.WriteString(string(entry.Role))
		b.WriteString(": ")
		b.WriteString(entry.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
