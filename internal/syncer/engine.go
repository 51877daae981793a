// Package syncer drains the offline transaction queue into the remote store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pos_sync/internal/sales"
)

// ErrPendingSales is returned by RefreshMirror while unsynced sales remain
// queued; replacing the mirror then would discard their local decrements.
var ErrPendingSales = errors.New("offline queue not empty")

const (
	StateIdle    = "idle"
	StateSyncing = "syncing"
)

// Report summarizes one drain.
type Report struct {
	// Skipped is set when another drain was already running.
	Skipped   bool `json:"skipped"`
	Applied   int  `json:"applied"`
	Failed    int  `json:"failed"`
	Remaining int  `json:"remaining"`
}

// Status is the observable engine state.
type Status struct {
	State      string    `json:"state"`
	LastError  string    `json:"last_error,omitempty"`
	LastRun    time.Time `json:"last_run,omitempty"`
	LastReport Report    `json:"last_report"`
}

type Engine struct {
	local    *sales.Local
	remote   sales.Remote
	logger   *zap.Logger
	notifier sales.Notifier
	conn     sales.Connectivity

	minBackoff, maxBackoff time.Duration
	refreshAfterDrain      bool

	syncing atomic.Bool
	// rerun records a drain request refused while another drain was running.
	rerun atomic.Bool
	wake  chan struct{}

	mu     sync.Mutex
	status Status
}

var _ sales.DrainTrigger = (*Engine)(nil)

type Option func(*Engine)

func WithNotifier(n sales.Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithBackoff sets the retry delay bounds used by Run after a drain leaves
// failed transactions behind.
func WithBackoff(lo, hi time.Duration) Option {
	return func(e *Engine) {
		e.minBackoff, e.maxBackoff = lo, hi
	}
}

// WithRefreshAfterDrain refreshes the mirror from the remote store whenever a
// drain empties the queue.
func WithRefreshAfterDrain(on bool) Option { return func(e *Engine) { e.refreshAfterDrain = on } }

func New(local *sales.Local, remote sales.Remote, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	e := &Engine{
		local:      local,
		remote:     remote,
		logger:     logger,
		notifier:   nopNotifier{},
		minBackoff: time.Second,
		maxBackoff: time.Minute,
		wake:       make(chan struct{}, 1),
		status:     Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxBackoff < e.minBackoff {
		e.maxBackoff = e.minBackoff
	}
	return e
}

// SetConnectivity lets Run stop retrying while offline. It must be called
// before Run. Without it the engine assumes the remote store is reachable.
func (e *Engine) SetConnectivity(c sales.Connectivity) {
	e.conn = c
}

func (e *Engine) online() bool {
	return e.conn == nil || e.conn.Online()
}

// Trigger requests a drain from Run. Requests made while a drain is pending
// or running collapse into a single follow-up drain. A drain refused because
// another one was running, including one started directly through DrainOnce,
// re-arms the trigger when that drain finishes.
func (e *Engine) Trigger() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) setState(state string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.State = state
}

// DrainOnce applies every queued transaction in insertion order. A failed
// transaction stays queued and the drain moves on to the next one. Once a
// transaction's remote writes start they run to completion even if ctx is
// cancelled; cancellation is only honored between transactions.
//
// Delivery is at-least-once: if a transaction is applied remotely but cannot
// be removed from the queue, the next drain applies it again.
func (e *Engine) DrainOnce(ctx context.Context) Report {
	if !e.syncing.CompareAndSwap(false, true) {
		e.logger.Debug("drain already running, scheduling a follow-up")
		e.rerun.Store(true)
		// The running drain may have finished between the CAS and the store.
		if !e.syncing.Load() && e.rerun.Swap(false) {
			e.Trigger()
		}
		return Report{Skipped: true}
	}
	defer func() {
		e.syncing.Store(false)
		if e.rerun.Swap(false) {
			e.Trigger()
		}
	}()

	e.setState(StateSyncing)
	report, lastErr := e.drain(ctx)

	e.mu.Lock()
	e.status = Status{State: StateIdle, LastRun: time.Now(), LastReport: report}
	if lastErr != nil {
		e.status.LastError = lastErr.Error()
	}
	e.mu.Unlock()

	if report.Applied > 0 || report.Failed > 0 {
		e.notifier.Notify(sales.Notification{
			Kind:    sales.NotifySyncStatus,
			Message: fmt.Sprintf("synced %d sales, %d pending", report.Applied, report.Remaining),
			Time:    time.Now(),
		})
	}

	if e.refreshAfterDrain && lastErr == nil && report.Remaining == 0 && report.Applied > 0 {
		if err := e.RefreshMirror(ctx); err != nil {
			e.logger.Warn("mirror refresh after drain failed", zap.Error(err))
		}
	}
	return report
}

func (e *Engine) drain(ctx context.Context) (Report, error) {
	var (
		report  Report
		lastErr error
	)

	txs, err := e.local.Queue.ListAll(ctx)
	switch {
	case errors.Is(err, sales.ErrInvalidRecord):
		// Unreadable rows stay in storage for manual recovery.
		e.logger.Error("skipping unreadable queued transactions", zap.Error(err))
		e.notifier.Notify(sales.Notification{
			Kind:     sales.NotifyAlert,
			Message:  "some queued sales could not be read and were not synced",
			Blocking: true,
			Time:     time.Now(),
		})
		lastErr = err
	case err != nil:
		e.logger.Error("failed to list offline queue", zap.Error(err))
		return report, err
	}

	e.logger.Info("drain started", zap.Int("queued", len(txs)))

	for _, tx := range txs {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		// Remote writes for a started transaction are not interrupted.
		txCtx := context.WithoutCancel(ctx)

		if err := sales.ApplyRemote(txCtx, e.remote, tx); err != nil {
			e.logger.Warn("transaction sync failed, leaving it queued",
				zap.String("transaction_id", tx.ID), zap.Error(err))
			report.Failed++
			lastErr = err
			continue
		}

		if err := e.complete(txCtx, tx); err != nil {
			e.logger.Error("transaction applied remotely but not removed from queue; it will be applied again",
				zap.String("transaction_id", tx.ID), zap.Error(err))
			report.Failed++
			lastErr = err
			continue
		}

		e.logger.Info("transaction synced", zap.String("transaction_id", tx.ID))
		report.Applied++
	}

	n, err := e.local.Queue.Len(context.WithoutCancel(ctx))
	if err != nil {
		e.logger.Error("failed to count offline queue", zap.Error(err))
		lastErr = err
		n = report.Failed
	}
	report.Remaining = n

	e.logger.Info("drain finished",
		zap.Int("applied", report.Applied), zap.Int("failed", report.Failed), zap.Int("remaining", report.Remaining))
	return report, lastErr
}

// complete removes a synced transaction and settles the mirror to the stock
// the remote store now holds, for products no other queued sale touches.
func (e *Engine) complete(ctx context.Context, tx sales.OfflineTransaction) error {
	e.local.Lock()
	defer e.local.Unlock()

	if err := e.local.Queue.Remove(ctx, tx.ID); err != nil {
		return err
	}

	pending, err := e.local.Queue.ListAll(ctx)
	if err != nil && !errors.Is(err, sales.ErrInvalidRecord) {
		e.logger.Warn("could not inspect queue after removal, leaving mirror as is",
			zap.String("transaction_id", tx.ID), zap.Error(err))
		return nil
	}
	referenced := map[string]bool{}
	for _, p := range pending {
		for _, item := range p.Items {
			referenced[item.ProductID] = true
		}
	}

	for _, item := range tx.Items {
		if referenced[item.ProductID] {
			continue
		}
		err := e.local.Mirror.SetStock(ctx, item.ProductID, item.ResultingStock)
		if err != nil && !errors.Is(err, sales.ErrProductNotFoundLocally) {
			e.logger.Warn("failed to settle mirror stock",
				zap.String("product_id", item.ProductID), zap.Error(err))
		}
	}
	return nil
}

// RefreshMirror replaces the mirror with the remote product list. It refuses
// with ErrPendingSales while sales are still queued.
func (e *Engine) RefreshMirror(ctx context.Context) error {
	products, err := e.remote.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("list remote products: %w", err)
	}

	e.local.Lock()
	defer e.local.Unlock()

	n, err := e.local.Queue.Len(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrPendingSales
	}
	if err := e.local.Mirror.RefreshAll(ctx, products); err != nil {
		return err
	}
	e.logger.Info("product mirror refreshed", zap.Int("products", len(products)))
	return nil
}

// Run drains on every Trigger until ctx is done. While a drain leaves failed
// transactions behind and the remote store is reachable, it retries with
// exponential backoff.
func (e *Engine) Run(ctx context.Context) error {
	var (
		retry   *time.Timer
		retryC  <-chan time.Time
		backoff = e.minBackoff
	)
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.wake:
		case <-retryC:
		}
		if retry != nil {
			retry.Stop()
			retry, retryC = nil, nil
		}

		report := e.DrainOnce(ctx)
		if report.Skipped || report.Failed == 0 || report.Remaining == 0 || !e.online() {
			backoff = e.minBackoff
			continue
		}

		e.logger.Info("scheduling sync retry", zap.Duration("backoff", backoff))
		retry = time.NewTimer(backoff)
		retryC = retry.C
		backoff *= 2
		if backoff > e.maxBackoff {
			backoff = e.maxBackoff
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(sales.Notification) {}
