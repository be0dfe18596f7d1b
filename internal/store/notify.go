package store

import "sync"

// Change ops published to subscribers.
const (
	OpInsert = "insert"
	OpUpdate = "update"
)

// Well-known table names for subscriptions.
const (
	TableSessions  = "hawk_agent_sessions"
	TableTemplates = "templates"
	TablePositions = "positions"
)

// ChangeEvent describes a committed write.
type ChangeEvent struct {
	Table string
	Op    string
	Key   string // primary key of the affected row
}

// Notifier is a lightweight callback registry fired after successful
// writes. Subscribers get a pull-based snapshot from the relevant store;
// the event only tells them something changed.
type Notifier struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(ChangeEvent)
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[int]func(ChangeEvent))}
}

// Subscribe registers fn for changes on table. The returned function
// unsubscribes.
func (n *Notifier) Subscribe(table string, fn func(ChangeEvent)) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subs[table] == nil {
		n.subs[table] = make(map[int]func(ChangeEvent))
	}
	id := n.nextID
	n.nextID++
	n.subs[table][id] = fn

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs[table], id)
	}
}

// Publish delivers ev to all subscribers of ev.Table synchronously.
// Delivery order across subscribers is unspecified; callbacks must not
// block.
func (n *Notifier) Publish(ev ChangeEvent) {
	n.mu.RLock()
	fns := make([]func(ChangeEvent), 0, len(n.subs[ev.Table]))
	for _, fn := range n.subs[ev.Table] {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
