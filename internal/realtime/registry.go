package realtime

import "sync"

// Handler receives messages for the channels it is subscribed to.
// Handlers are compared by value to enforce set semantics, so implementations
// must be comparable; pointer receivers are the usual choice.
type Handler interface {
	HandleMessage(msg Message)
}

// StateHandler is optionally implemented by a Handler that wants connection
// status transitions, including the terminal disconnected state.
type StateHandler interface {
	HandleState(health Health)
}

// registry maps channel names to their handler sets. Every mutation happens
// in one critical section so interleaved subscribe/unsubscribe calls never
// observe a partially-updated map.
type registry struct {
	mu       sync.RWMutex
	channels map[string][]Handler
}

func newRegistry() *registry {
	return &registry{channels: make(map[string][]Handler)}
}

// add registers h on channel. added is false if h was already present;
// first is true if the channel had no handlers before.
func (r *registry) add(channel string, h Handler) (added, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handlers := r.channels[channel]
	for _, existing := range handlers {
		if existing == h {
			return false, false
		}
	}
	r.channels[channel] = append(handlers, h)
	return true, len(handlers) == 0
}

// remove unregisters h from channel and reports whether the channel is now empty
func (r *registry) remove(channel string, h Handler) (removed, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handlers := r.channels[channel]
	for i, existing := range handlers {
		if existing != h {
			continue
		}
		rest := make([]Handler, 0, len(handlers)-1)
		rest = append(rest, handlers[:i]...)
		rest = append(rest, handlers[i+1:]...)
		if len(rest) == 0 {
			delete(r.channels, channel)
			return true, true
		}
		r.channels[channel] = rest
		return true, false
	}
	return false, false
}

// handlers returns a snapshot of the channel's handlers in registration order
func (r *registry) handlers(channel string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handlers := r.channels[channel]
	out := make([]Handler, len(handlers))
	copy(out, handlers)
	return out
}

func (r *registry) channelNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}

// stateHandlers returns every distinct handler implementing StateHandler
func (r *registry) stateHandlers() []StateHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Handler]bool)
	var out []StateHandler
	for _, handlers := range r.channels {
		for _, h := range handlers {
			if seen[h] {
				continue
			}
			seen[h] = true
			if sh, ok := h.(StateHandler); ok {
				out = append(out, sh)
			}
		}
	}
	return out
}

func (r *registry) count(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = make(map[string][]Handler)
}
