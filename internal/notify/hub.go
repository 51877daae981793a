// Package notify fans operator notifications out to subscribers (the
// websocket clients of the checkout UI) and keeps a short history for clients
// that poll.
package notify

import (
	"sync"

	"go.uber.org/zap"

	"pos_sync/internal/sales"
)

// DefaultHistory is the number of notifications retained for Recent.
const DefaultHistory = 50

type Hub struct {
	mu      sync.Mutex
	subs    map[chan sales.Notification]struct{}
	recent  []sales.Notification
	history int
	logger  *zap.Logger
}

var _ sales.Notifier = (*Hub)(nil)

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:    map[chan sales.Notification]struct{}{},
		history: DefaultHistory,
		logger:  logger,
	}
}

// Notify records n and delivers it to every subscriber without blocking.
// Subscribers whose buffer is full miss the notification.
func (h *Hub) Notify(n sales.Notification) {
	if n.Blocking {
		h.logger.Warn("blocking notification", zap.String("kind", string(n.Kind)), zap.String("message", n.Message))
	} else {
		h.logger.Debug("notification", zap.String("kind", string(n.Kind)), zap.String("message", n.Message))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.recent = append(h.recent, n)
	if len(h.recent) > h.history {
		h.recent = h.recent[len(h.recent)-h.history:]
	}

	for ch := range h.subs {
		select {
		case ch <- n:
		default:
			h.logger.Debug("subscriber too slow, dropping notification")
		}
	}
}

// Subscribe returns a channel of future notifications and a cancel func that
// unsubscribes and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan sales.Notification, func()) {
	ch := make(chan sales.Notification, buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Recent returns retained notifications, oldest first.
func (h *Hub) Recent() []sales.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]sales.Notification(nil), h.recent...)
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
