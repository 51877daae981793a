// Package connectivity tracks whether the remote store is reachable. The
// Monitor is a two-state machine driven by reachability signals from the host;
// the Prober is one such host signal source for headless registers.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pos_sync/internal/sales"
)

// State is the monitor's connectivity state.
type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Monitor requests exactly one drain on every OFFLINE to ONLINE transition.
// Coalescing of triggers that arrive while a drain runs is the drain
// trigger's responsibility.
type Monitor struct {
	mu       sync.RWMutex
	state    State
	changed  time.Time
	drain    sales.DrainTrigger
	notifier sales.Notifier
	logger   *zap.Logger
}

var _ sales.Connectivity = (*Monitor)(nil)

// NewMonitor creates a monitor in the host's initial reachability state.
func NewMonitor(initialOnline bool, drain sales.DrainTrigger, notifier sales.Notifier, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	state := Offline
	if initialOnline {
		state = Online
	}
	return &Monitor{
		state:    state,
		changed:  time.Now(),
		drain:    drain,
		notifier: notifier,
		logger:   logger,
	}
}

func (m *Monitor) Online() bool {
	return m.State() == Online
}

func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Since returns when the current state was entered.
func (m *Monitor) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changed
}

// Set applies a reachability signal. Repeated signals for the current state
// are ignored.
func (m *Monitor) Set(online bool) {
	next := Offline
	if online {
		next = Online
	}

	m.mu.Lock()
	prev := m.state
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	m.changed = time.Now()
	m.mu.Unlock()

	m.logger.Info("connectivity changed", zap.Stringer("from", prev), zap.Stringer("to", next))
	if m.notifier != nil {
		m.notifier.Notify(sales.Notification{
			Kind:    sales.NotifyConnectivity,
			Message: next.String(),
			Time:    time.Now(),
		})
	}

	if next == Online && m.drain != nil {
		m.drain.Trigger()
	}
}

// Run makes an initial drain request when starting online, to pick up sales
// queued in a previous session, then applies signals until ctx is done or the
// channel closes.
func (m *Monitor) Run(ctx context.Context, signals <-chan bool) error {
	if m.Online() && m.drain != nil {
		m.drain.Trigger()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case online, ok := <-signals:
			if !ok {
				return nil
			}
			m.Set(online)
		}
	}
}
