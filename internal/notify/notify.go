// Package notify carries user-facing feedback (progress and failure toasts)
// out of the extraction core.
package notify

import (
	"log/slog"
	"sync"
)

// Handle refers to an in-flight info notification.
type Handle interface {
	// Dismiss closes the notification. It is safe to call more than once.
	Dismiss()
}

// Notifier is the user-visible feedback sink.
type Notifier interface {
	Info(message, title string) Handle
	Error(message, title string)
}

// Log renders notifications as structured log records.
type Log struct {
	l *slog.Logger
}

var _ Notifier = (*Log)(nil)

func NewLog(l *slog.Logger) *Log {
	if l == nil {
		l = slog.Default()
	}
	return &Log{l: l}
}

func (n *Log) Info(message, title string) Handle {
	n.l.Info(message, "title", title)
	return &logHandle{l: n.l, title: title}
}

func (n *Log) Error(message, title string) {
	n.l.Error(message, "title", title)
}

type logHandle struct {
	once  sync.Once
	l     *slog.Logger
	title string
}

func (h *logHandle) Dismiss() {
	h.once.Do(func() {
		h.l.Debug("notification dismissed", "title", h.title)
	})
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Info(string, string) Handle { return nopHandle{} }
func (Nop) Error(string, string)       {}

type nopHandle struct{}

func (nopHandle) Dismiss() {}

// NopHandle returns a Handle that does nothing.
func NopHandle() Handle { return nopHandle{} }
