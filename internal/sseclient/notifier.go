package sseclient

import "sync"

// Notifier holds the "new ideas available" flag shared by every observer in
// a client, plus the callbacks to run when it is raised.
type Notifier struct {
	mu        sync.Mutex
	available bool
	nextID    uint64
	subs      map[uint64]func()
}

// NewNotifier returns a lowered notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[uint64]func())}
}

// Mark raises the flag and runs every subscriber.
func (n *Notifier) Mark() {
	n.mu.Lock()
	n.available = true
	subs := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// Available reports whether the flag is raised.
func (n *Notifier) Available() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.available
}

// Clear lowers the flag.
func (n *Notifier) Clear() {
	n.mu.Lock()
	n.available = false
	n.mu.Unlock()
}

// Subscribe registers fn to run on every Mark. The returned function removes it.
func (n *Notifier) Subscribe(fn func()) (unsubscribe func()) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}
