// Package feedback carries transient user-visible messages, the generic
// success and error toasts that are distinct from notification entities.
package feedback

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Level is the severity of a message.
type Level string

const (
	// LevelInfo is a neutral message
	LevelInfo Level = "info"
	// LevelSuccess confirms a completed action
	LevelSuccess Level = "success"
	// LevelWarning flags a degraded but working state
	LevelWarning Level = "warning"
	// LevelError reports a failed action
	LevelError Level = "error"
)

// DefaultDuration is how long a message stays visible when no duration is given.
const DefaultDuration = 3 * time.Second

// Message is one displayed message.
type Message struct {
	Text     string        `json:"text"`
	Level    Level         `json:"level"`
	Duration time.Duration `json:"duration"`
	Time     time.Time     `json:"time"`
}

// Messenger displays transient messages to the user.
type Messenger interface {
	Show(ctx context.Context, text string, level Level, duration time.Duration)
}

// Error shows err with LevelError and the default duration. A nil err is ignored.
func Error(ctx context.Context, m Messenger, prefix string, err error) {
	if m == nil || err == nil {
		return
	}
	text := err.Error()
	if prefix != "" {
		text = prefix + ": " + text
	}
	m.Show(ctx, text, LevelError, DefaultDuration)
}

// LogMessenger writes messages to slog.
type LogMessenger struct{}

// Show implements Messenger.
func (LogMessenger) Show(ctx context.Context, text string, level Level, duration time.Duration) {
	lvl := slog.LevelInfo
	switch level {
	case LevelWarning:
		lvl = slog.LevelWarn
	case LevelError:
		lvl = slog.LevelError
	}
	slog.Log(ctx, lvl, "User message", "text", text, "level", string(level), "duration", duration)
}

// Recorder keeps the most recent messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	limit    int
	now      func() time.Time
}

// NewRecorder returns a recorder retaining up to limit messages; limit <= 0
// keeps all of them.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit, now: time.Now}
}

// Show implements Messenger.
func (r *Recorder) Show(_ context.Context, text string, level Level, duration time.Duration) {
	if duration <= 0 {
		duration = DefaultDuration
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Text: text, Level: level, Duration: duration, Time: r.now()})
	if r.limit > 0 && len(r.messages) > r.limit {
		r.messages = r.messages[len(r.messages)-r.limit:]
	}
}

// Messages returns a copy of the recorded messages, oldest first.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Last returns the newest message.
func (r *Recorder) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return Message{}, false
	}
	return r.messages[len(r.messages)-1], true
}

// Multi fans a message out to several messengers in order.
type Multi []Messenger

// Show implements Messenger.
func (m Multi) Show(ctx context.Context, text string, level Level, duration time.Duration) {
	for _, messenger := range m {
		if messenger != nil {
			messenger.Show(ctx, text, level, duration)
		}
	}
}
