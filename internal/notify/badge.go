package notify

import (
	"fmt"
	"slices"
	"sync"
)

// DefaultTitle is the application title shown when nothing is unread.
const DefaultTitle = "DSI Placement Portal"

// Badge is the unread counter mirrored into the window title.
type Badge struct {
	mu        sync.Mutex
	base      string
	count     int
	listeners []func(count int, title string)
}

// NewBadge returns a badge for the given base title. An empty title uses
// DefaultTitle.
func NewBadge(base string) *Badge {
	if base == "" {
		base = DefaultTitle
	}
	return &Badge{base: base}
}

// Set records the unread count. Listeners only run when it changes.
func (b *Badge) Set(count int) {
	b.mu.Lock()
	if count == b.count {
		b.mu.Unlock()
		return
	}
	b.count = count
	title := b.titleLocked()
	listeners := slices.Clone(b.listeners)
	b.mu.Unlock()

	for _, l := range listeners {
		l(count, title)
	}
}

// Count returns the unread count.
func (b *Badge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Title returns "(n) <base>" while n > 0, the base title otherwise.
func (b *Badge) Title() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.titleLocked()
}

// OnChange registers fn to receive every new count and title.
func (b *Badge) OnChange(fn func(count int, title string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

func (b *Badge) titleLocked() string {
	if b.count > 0 {
		return fmt.Sprintf("(%d) %s", b.count, b.base)
	}
	return b.base
}
