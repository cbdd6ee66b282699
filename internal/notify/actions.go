package notify

import (
	"sync"

	"github.com/dsiportal/placement-sync/internal/portal"
)

// ActionTable maps persisted action texts to in-memory callbacks. Callbacks
// never survive serialization, so they are reattached after every load.
type ActionTable struct {
	mu      sync.RWMutex
	actions map[string]portal.ActionFunc
}

// NewActionTable returns an empty table.
func NewActionTable() *ActionTable {
	return &ActionTable{actions: make(map[string]portal.ActionFunc)}
}

// Register binds fn to actions whose text is text.
func (t *ActionTable) Register(text string, fn portal.ActionFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actions[text] = fn
}

// Lookup returns the callback bound to text.
func (t *ActionTable) Lookup(text string) (portal.ActionFunc, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn, ok := t.actions[text]
	return fn, ok
}

// Attach sets the callback of every action that has none and whose text is
// registered. It returns the number of callbacks attached.
func (t *ActionTable) Attach(notifications []portal.Notification) int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	attached := 0
	for i := range notifications {
		a := notifications[i].Action
		if a == nil || a.Callback != nil {
			continue
		}
		if fn, ok := t.actions[a.Text]; ok {
			a.Callback = fn
			attached++
		}
	}
	return attached
}
