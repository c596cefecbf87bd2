// Package notify provides the best-effort wake signal between submission
// and the claim loop. Delivery is never guaranteed and may be lost without
// consequence: correctness always rests on the polling claim loop, the
// signal only trims latency when submitter and worker share a process.
package notify

import "sync"

// DefaultChannel is the wake channel name used when the configuration table
// holds no override.
const DefaultChannel = "new_command"

// ConfigKey is the shell_config key storing the active channel name.
const ConfigKey = "notify_channel"

// Notifier publishes best-effort wake signals on named channels.
type Notifier interface {
	Notify(channel string)
}

// Hub is an in-process Notifier with coalescing single-slot channels.
type Hub struct {
	mu       sync.Mutex
	channels map[string]chan struct{}
}

// NewHub returns an empty notification hub.
func NewHub() *Hub {
	return &Hub{channels: make(map[string]chan struct{})}
}

// Subscribe returns the wake channel for a name. Signals coalesce: a
// pending wake absorbs later ones until consumed.
func (h *Hub) Subscribe(channel string) <-chan struct{} {
	return h.channel(channel)
}

// Notify wakes subscribers of the channel without blocking. A full slot
// means a wake is already pending and the signal is dropped.
func (h *Hub) Notify(channel string) {
	if h == nil {
		return
	}
	select {
	case h.channel(channel) <- struct{}{}:
	default:
	}
}

func (h *Hub) channel(name string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[name]
	if !ok {
		ch = make(chan struct{}, 1)
		h.channels[name] = ch
	}
	return ch
}

// Nop is a Notifier that drops every signal, for deployments where
// submitters and workers are separate processes and polling is the only
// wake path.
type Nop struct{}

// Notify discards the signal.
func (Nop) Notify(string) {}

var (
	_ Notifier = (*Hub)(nil)
	_ Notifier = Nop{}
)
