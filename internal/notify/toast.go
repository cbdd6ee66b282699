package notify

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dsiportal/placement-sync/internal/feedback"
	"github.com/dsiportal/placement-sync/internal/portal"
)

// Toast is one transient message on screen.
type Toast struct {
	ID      string         `json:"id"`
	Title   string         `json:"title,omitempty"`
	Message string         `json:"message"`
	Level   feedback.Level `json:"level"`
	// Slot is the position in the stack, 0 being the top.
	Slot     int           `json:"slot"`
	Duration time.Duration `json:"duration"`
	Created  time.Time     `json:"created"`
}

type toastEntry struct {
	toast Toast
	timer *time.Timer
}

// ToastStack keeps the visible toasts. The newest toast takes the top slot
// and pushes the others down; a dismissed toast leaves no gap.
type ToastStack struct {
	mu        sync.Mutex
	entries   []*toastEntry
	listeners []func([]Toast)
	now       func() time.Time
	closed    bool
}

// NewToastStack returns an empty stack.
func NewToastStack() *ToastStack {
	return &ToastStack{now: time.Now}
}

// Push shows t on top and schedules its dismissal after t.Duration. A zero
// duration uses feedback.DefaultDuration. It returns the toast id.
func (s *ToastStack) Push(t Toast) string {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Duration <= 0 {
		t.Duration = feedback.DefaultDuration
	}
	if t.Level == "" {
		t.Level = feedback.LevelInfo
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return t.ID
	}
	t.Created = s.now()
	id := t.ID
	entry := &toastEntry{toast: t}
	entry.timer = time.AfterFunc(t.Duration, func() { s.Dismiss(id) })
	s.entries = append([]*toastEntry{entry}, s.entries...)
	toasts, listeners := s.stateLocked()
	s.mu.Unlock()

	notifyToasts(listeners, toasts)
	return id
}

// Dismiss removes the toast. It reports whether the toast was visible.
func (s *ToastStack) Dismiss(id string) bool {
	s.mu.Lock()
	idx := -1
	for i, e := range s.entries {
		if e.toast.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.entries[idx].timer.Stop()
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	toasts, listeners := s.stateLocked()
	s.mu.Unlock()

	notifyToasts(listeners, toasts)
	return true
}

// Toasts returns the visible toasts, top first.
func (s *ToastStack) Toasts() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	toasts, _ := s.stateLocked()
	return toasts
}

// OnChange registers fn to receive the stack after every change.
func (s *ToastStack) OnChange(fn func([]Toast)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Show implements feedback.Messenger so generic feedback shares the stack.
func (s *ToastStack) Show(_ context.Context, text string, level feedback.Level, duration time.Duration) {
	s.Push(Toast{Message: text, Level: level, Duration: duration})
}

// Close stops every pending dismissal and clears the stack.
func (s *ToastStack) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		e.timer.Stop()
	}
	s.entries = nil
	s.closed = true
}

func (s *ToastStack) stateLocked() ([]Toast, []func([]Toast)) {
	toasts := make([]Toast, len(s.entries))
	for i, e := range s.entries {
		toasts[i] = e.toast
		toasts[i].Slot = i
	}
	return toasts, slices.Clone(s.listeners)
}

func notifyToasts(listeners []func([]Toast), toasts []Toast) {
	for _, l := range listeners {
		l(toasts)
	}
}

// ToastSink shows notifications on a ToastStack.
type ToastSink struct {
	Stack *ToastStack
	// Duration applies to realtime events; other events use the stack default.
	Duration time.Duration
}

// Name implements Sink.
func (ToastSink) Name() string { return "toast" }

// Deliver implements Sink.
func (s ToastSink) Deliver(_ context.Context, ev Event) error {
	if s.Stack == nil {
		return nil
	}
	t := Toast{
		Title:   ev.Notification.Title,
		Message: ev.Notification.Message,
		Level:   levelFor(ev.Notification.Type),
	}
	if ev.Realtime {
		t.Duration = s.Duration
	}
	s.Stack.Push(t)
	return nil
}

func levelFor(t portal.NotificationType) feedback.Level {
	switch t {
	case portal.NotificationSuccess:
		return feedback.LevelSuccess
	case portal.NotificationWarning:
		return feedback.LevelWarning
	default:
		return feedback.LevelInfo
	}
}
