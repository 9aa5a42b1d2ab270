// Package notifier delivers change pings to SSE listeners, either to every
// listener or to the listeners of one browser session.
package notifier

import "sync"

// Notifier fans pings out to subscribed listeners. A ping carries no data;
// listeners re-read their session when they receive one.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan struct{}]string
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan struct{}]string),
	}
}

// Subscribe registers a listener for the given session key.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier) Subscribe(key string) chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.listeners[ch] = key
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	delete(n.listeners, ch)
	n.mu.Unlock()
	close(ch)
}

// Notify pings the listeners of one session key.
func (n *Notifier) Notify(key string) {
	n.send(func(k string) bool { return k == key })
}

// Broadcast pings every listener.
func (n *Notifier) Broadcast() {
	n.send(func(string) bool { return true })
}

// Listeners returns the number of subscribed listeners.
func (n *Notifier) Listeners() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// send never blocks: a listener with a full buffer already has a ping queued.
func (n *Notifier) send(match func(string) bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch, key := range n.listeners {
		if !match(key) {
			continue
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
