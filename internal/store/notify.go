package store

import "sync"

// Notifier fans committed sequence numbers out to listeners. A slow
// listener only ever sees the latest sequence; intermediate ones coalesce.
type Notifier struct {
	mu   sync.Mutex
	subs map[uint64]chan uint64
	next uint64
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[uint64]chan uint64)}
}

// Subscribe registers a listener. The returned cancel function must be
// called to release it.
func (n *Notifier) Subscribe() (<-chan uint64, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan uint64, 1)
	n.subs[id] = ch

	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// Publish wakes every listener with seq without blocking.
func (n *Notifier) Publish(seq uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- seq:
		default:
			// replace the pending value with the newer one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- seq:
			default:
			}
		}
	}
}

// Len returns the number of registered listeners.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
