package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Connectivity reports whether the remote store is currently reachable.
type Connectivity interface {
	Online() bool
}

// DrainTrigger asks the synchronization engine for a drain.
type DrainTrigger interface {
	Trigger()
}

// Service commits completed checkouts. Online sales are written straight to the
// remote store; offline sales, and online sales whose remote write fails, are
// queued locally for the synchronization engine.
type Service struct {
	local    *Local
	remote   Remote
	conn     Connectivity
	logger   *zap.Logger
	drain    DrainTrigger
	drawer   Drawer
	notifier Notifier

	cashierID string
	lowStock  int64
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithDrainTrigger makes the service request a drain after queueing a sale while online.
func WithDrainTrigger(d DrainTrigger) Option { return func(s *Service) { s.drain = d } }

// WithDrawer records every successful sale in the cash drawer ledger.
func WithDrawer(d Drawer) Option { return func(s *Service) { s.drawer = d } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithCashierID(id string) Option { return func(s *Service) { s.cashierID = id } }

// WithLowStockThreshold raises a low-stock notification when a sale leaves a
// product at or below the threshold. Negative disables it.
func WithLowStockThreshold(n int64) Option { return func(s *Service) { s.lowStock = n } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a new Service.
func NewService(local *Local, remote Remote, conn Connectivity, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	s := &Service{
		local:    local,
		remote:   remote,
		conn:     conn,
		logger:   logger,
		notifier: nopNotifier{},
		lowStock: -1,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Commit records a finalized cart. amountReceived is trusted to cover the
// total. The returned receipt is only produced when the sale is durably
// recorded, either remotely or in the offline queue; otherwise the error wraps
// ErrEnqueueFailed or ErrStorageUnavailable.
func (s *Service) Commit(ctx context.Context, lines []CartLine, amountReceived Amount) (*Receipt, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	for _, l := range lines {
		if err := Validate(l); err != nil {
			return nil, err
		}
	}

	s.local.Lock()
	defer s.local.Unlock()

	online := s.conn.Online()

	items, err := s.resolveStock(ctx, lines, online)
	if err != nil {
		return nil, err
	}

	total := Total(lines)
	tx := OfflineTransaction{
		ID:             NewTransactionID(),
		Items:          items,
		Total:          total,
		AmountReceived: amountReceived,
		Change:         amountReceived - total,
		Timestamp:      s.now().UTC(),
		CashierID:      s.cashierID,
	}

	queued := !online
	if online {
		pending, err := s.local.Queue.Len(ctx)
		switch {
		case err != nil:
			s.logger.Warn("could not inspect offline queue, writing remotely", zap.Error(err))
		case pending > 0:
			// Older queued sales must reach the remote store first.
			s.logger.Info("offline queue not empty, queueing sale behind it",
				zap.String("transaction_id", tx.ID), zap.Int("pending", pending))
			queued = true
		}
	}

	if !queued {
		if err := ApplyRemote(ctx, s.remote, tx); err != nil {
			s.logger.Warn("remote commit failed, falling back to offline queue",
				zap.String("transaction_id", tx.ID), zap.Error(err))
			queued = true
		}
	}

	if queued {
		if err := s.local.Queue.Enqueue(ctx, tx); err != nil {
			s.logger.Error("failed to enqueue offline sale",
				zap.String("transaction_id", tx.ID), zap.Any("transaction", tx), zap.Error(err))
			s.notifier.Notify(Notification{
				Kind:     NotifyAlert,
				Message:  fmt.Sprintf("sale %s could not be saved; it may be unrecorded", tx.ID),
				Blocking: true,
				Time:     s.now(),
			})
			return nil, fmt.Errorf("%w: %w", ErrEnqueueFailed, err)
		}
		s.logger.Info("sale queued offline", zap.String("transaction_id", tx.ID), zap.Int64("total", int64(total)))
		if online && s.drain != nil {
			s.drain.Trigger()
		}
	} else {
		s.logger.Info("sale committed remotely", zap.String("transaction_id", tx.ID), zap.Int64("total", int64(total)))
	}

	s.applyMirror(ctx, tx)
	s.recordDrawer(ctx, tx)

	return &Receipt{
		TransactionID:  tx.ID,
		Items:          tx.Items,
		Total:          tx.Total,
		AmountReceived: tx.AmountReceived,
		Change:         tx.Change,
		Timestamp:      tx.Timestamp,
		Offline:        queued,
	}, nil
}

// resolveStock computes each line's resulting stock from the mirror. A product
// missing locally counts as zero stock. When the mirror itself cannot be read
// and the remote store is reachable, the remote stock is used instead.
func (s *Service) resolveStock(ctx context.Context, lines []CartLine, online bool) ([]TransactionItem, error) {
	running := map[string]int64{}
	items := make([]TransactionItem, 0, len(lines))

	for _, l := range lines {
		current, seen := running[l.ProductID]
		if !seen {
			p, err := s.local.Mirror.Get(ctx, l.ProductID)
			switch {
			case err == nil:
				current = p.Stock
			case errors.Is(err, ErrProductNotFoundLocally):
				s.logger.Warn("product missing from mirror, assuming zero stock", zap.String("product_id", l.ProductID))
				current = 0
			case online:
				s.logger.Warn("mirror unreadable, using remote stock", zap.String("product_id", l.ProductID), zap.Error(err))
				rp, rerr := s.remote.GetProduct(ctx, l.ProductID)
				if rerr != nil {
					return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, errors.Join(err, rerr))
				}
				current = rp.Stock
			default:
				return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
			}
		}

		next := current - l.Quantity
		running[l.ProductID] = next
		items = append(items, TransactionItem{
			ProductID:      l.ProductID,
			ProductName:    l.Name,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			ResultingStock: next,
		})
	}
	return items, nil
}

func (s *Service) applyMirror(ctx context.Context, tx OfflineTransaction) {
	for _, item := range tx.Items {
		stock, err := s.local.Mirror.ApplyStockDelta(ctx, item.ProductID, -item.Quantity)
		if err != nil {
			if errors.Is(err, ErrProductNotFoundLocally) {
				s.logger.Warn("sold product absent from mirror", zap.String("product_id", item.ProductID))
				continue
			}
			s.logger.Error("failed to update mirror stock",
				zap.String("transaction_id", tx.ID), zap.String("product_id", item.ProductID), zap.Error(err))
			s.notifier.Notify(Notification{
				Kind:      NotifyAlert,
				Message:   "local product cache could not be updated",
				ProductID: item.ProductID,
				Blocking:  true,
				Time:      s.now(),
			})
			continue
		}
		if s.lowStock >= 0 && stock <= s.lowStock {
			s.notifier.Notify(Notification{
				Kind:      NotifyLowStock,
				Message:   fmt.Sprintf("%s is low on stock (%d left)", item.ProductName, stock),
				ProductID: item.ProductID,
				Time:      s.now(),
			})
		}
	}
}

func (s *Service) recordDrawer(ctx context.Context, tx OfflineTransaction) {
	if s.drawer == nil {
		return
	}
	entry := DrawerEntry{
		Direction:   "in",
		Amount:      tx.Total,
		Description: "Sale " + tx.ID,
		Timestamp:   tx.Timestamp,
	}
	if err := s.drawer.Record(ctx, entry); err != nil {
		s.logger.Error("failed to record cash drawer entry", zap.String("transaction_id", tx.ID), zap.Error(err))
	}
}
