package connectivity

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pinger is a cheap reachability check against the remote store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober polls a Pinger and emits a signal whenever reachability changes. The
// first probe result is always emitted.
type Prober struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

func NewProber(pinger Pinger, interval, timeout time.Duration, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Prober{pinger: pinger, interval: interval, timeout: timeout, logger: logger}
}

// Run probes until ctx is done. It never closes out.
func (p *Prober) Run(ctx context.Context, out chan<- bool) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var (
		last  bool
		first = true
	)
	for {
		online := p.probe(ctx)
		if first || online != last {
			select {
			case out <- online:
			case <-ctx.Done():
				return nil
			}
			first = false
			last = online
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Prober) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.pinger.Ping(ctx); err != nil {
		p.logger.Debug("reachability probe failed", zap.Error(err))
		return false
	}
	return true
}
