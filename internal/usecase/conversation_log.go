package usecase

import (
	"strings"
	"sync"
	"time"

	"parley/internal/domain"
)

const defaultLogLimit = 500

// conversationLog is appended to by the controller loop and read by UI callers.
type conversationLog struct {
	mu      sync.Mutex
	entries []domain.LogEntry
	limit   int
	now     func() time.Time
}

func newConversationLog(limit int, now func() time.Time) *conversationLog {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if now == nil {
		now = time.Now
	}
	return &conversationLog{limit: limit, now: now}
}

// logText strips trailing line breaks and reports false for text with nothing to show.
func logText(text string) (string, bool) {
	text = strings.TrimRight(text, "\r\n")
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

func (l *conversationLog) Append(role domain.LogRole, text string) {
	text, ok := logText(text)
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, domain.LogEntry{Role: role, Text: text, At: l.now()})
	if overflow := len(l.entries) - l.limit; overflow > 0 {
		l.entries = append(l.entries[:0:0], l.entries[overflow:]...)
	}
}

func (l *conversationLog) Snapshot() []domain.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.LogEntry(nil), l.entries...)
}

func (l *conversationLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
