// Package session tracks which archive entries are open as tabs, which
// one is active and the order they were visited in.
package session

import "sync"

// HistoryLimit caps the visit history.
const HistoryLimit = 50

type Tab struct {
	Key    string `json:"key"`
	Scroll int    `json:"scroll,omitempty"`
}

// Snapshot is the persisted form of a session.
type Snapshot struct {
	Tabs    []Tab    `json:"tabs"`
	Active  string   `json:"active"`
	History []string `json:"history"`
}

// Tabs is safe for concurrent use; the decompilation cache consults
// IsOpen from worker goroutines.
type Tabs struct {
	mu      sync.RWMutex
	tabs    []Tab
	active  string
	history []string
}

// New starts a session with key open and active. An empty key starts
// with no tabs.
func New(key string) *Tabs {
	t := &Tabs{}
	if key != "" {
		t.tabs = []Tab{{Key: key}}
		t.active = key
		t.history = []string{key}
	}
	return t
}

// Restore rebuilds a session from a snapshot.
func Restore(s Snapshot) *Tabs {
	t := &Tabs{
		tabs:    append([]Tab(nil), s.Tabs...),
		active:  s.Active,
		history: append([]string(nil), s.History...),
	}
	if t.active != "" && t.indexOf(t.active) == -1 {
		t.tabs = append(t.tabs, Tab{Key: t.active})
	}
	return t
}

func (t *Tabs) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		Tabs:    append([]Tab{}, t.tabs...),
		Active:  t.active,
		History: append([]string{}, t.history...),
	}
}

// Open adds key right of the active tab when it is not open yet and
// makes it active.
func (t *Tabs) Open(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open(key)
}

func (t *Tabs) open(key string) {
	if t.indexOf(key) == -1 {
		insert := len(t.tabs)
		if i := t.indexOf(t.active); i >= 0 {
			insert = i + 1
		}
		t.tabs = append(t.tabs, Tab{})
		copy(t.tabs[insert+1:], t.tabs[insert:])
		t.tabs[insert] = Tab{Key: key}
	}
	if t.active != key {
		t.active = key
		if len(t.history) < HistoryLimit {
			t.history = append(t.history, key)
		}
	}
}

// Close removes key. The last remaining tab cannot be closed. Closing
// the active tab activates the most recent history entry, or the tab
// to its left when the history is empty.
func (t *Tabs) Close(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.tabs) <= 1 {
		return
	}
	closed := t.indexOf(key)
	if closed == -1 {
		return
	}

	history := t.history[:0]
	for _, k := range t.history {
		if k != key {
			history = append(history, k)
		}
	}
	t.history = history

	remaining := make([]Tab, 0, len(t.tabs)-1)
	for _, tab := range t.tabs {
		if tab.Key != key {
			remaining = append(remaining, tab)
		}
	}
	t.tabs = remaining

	if key != t.active {
		return
	}
	next := ""
	if n := len(t.history); n > 0 {
		next = t.history[n-1]
		t.history = t.history[:n-1]
	}
	if next == "" {
		i := max(closed-1, 0)
		i = min(i, len(remaining)-1)
		next = remaining[i].Key
	}
	t.open(next)
}

// Move places key at index, counted before the move.
func (t *Tabs) Move(key string, index int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.indexOf(key)
	if current == -1 {
		return
	}
	tab := t.tabs[current]
	t.tabs = append(t.tabs[:current], t.tabs[current+1:]...)
	if index > current {
		index--
	}
	index = max(0, min(index, len(t.tabs)))
	t.tabs = append(t.tabs, Tab{})
	copy(t.tabs[index+1:], t.tabs[index:])
	t.tabs[index] = tab
}

// SetScroll records the scroll position of an open tab.
func (t *Tabs) SetScroll(key string, scroll int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexOf(key); i >= 0 {
		t.tabs[i].Scroll = scroll
	}
}

func (t *Tabs) IsOpen(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.indexOf(key) >= 0
}

func (t *Tabs) Active() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

// Keys lists open tabs in display order.
func (t *Tabs) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.tabs))
	for _, tab := range t.tabs {
		keys = append(keys, tab.Key)
	}
	return keys
}

func (t *Tabs) History() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.history...)
}

func (t *Tabs) indexOf(key string) int {
	for i, tab := range t.tabs {
		if tab.Key == key {
			return i
		}
	}
	return -1
}
