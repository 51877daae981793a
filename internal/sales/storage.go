package sales

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrStorageUnavailable is returned when the local durable store cannot be
	// opened, read or written.
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrRemoteWriteFailed is returned when a single remote call is rejected.
	ErrRemoteWriteFailed = errors.New("remote write failed")

	// ErrEnqueueFailed is returned when a completed sale could not be written to
	// the offline queue. The sale may be unrecorded.
	ErrEnqueueFailed = errors.New("offline enqueue failed")

	// ErrProductNotFoundLocally is returned when the mirror holds no entry for a product.
	ErrProductNotFoundLocally = errors.New("product not found in local mirror")

	// ErrInvalidRecord is returned for records missing required fields.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrEmptyCart is returned when committing a cart without lines.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrInsufficientPayment is returned when the amount received is below the total.
	ErrInsufficientPayment = errors.New("amount received is less than total")
)

// Mirror is the device-local cache of product stock and price.
type Mirror interface {
	// RefreshAll replaces every entry with the given snapshot.
	RefreshAll(ctx context.Context, products []Product) error
	// Get returns ErrProductNotFoundLocally when the product is absent.
	Get(ctx context.Context, productID string) (Product, error)
	// ApplyStockDelta adds delta to the stored stock and returns the new value.
	ApplyStockDelta(ctx context.Context, productID string, delta int64) (int64, error)
	// SetStock overwrites the stored stock.
	SetStock(ctx context.Context, productID string, stock int64) error
	List(ctx context.Context) ([]Product, error)
}

// Queue is the durable, insertion-ordered store of unsynced sales.
type Queue interface {
	Enqueue(ctx context.Context, tx OfflineTransaction) error
	// ListAll returns pending transactions in insertion order. Rows that cannot
	// be decoded are skipped and reported in an error wrapping ErrInvalidRecord
	// alongside the readable transactions.
	ListAll(ctx context.Context) ([]OfflineTransaction, error)
	// Remove is idempotent: removing an absent id is not an error.
	Remove(ctx context.Context, id string) error
	Len(ctx context.Context) (int, error)
}

// Remote is the hosted data store. Calls are independent; there is no
// cross-table transaction.
type Remote interface {
	// InsertSale inserts a sale header and returns the remote sale id.
	InsertSale(ctx context.Context, header SaleHeader) (string, error)
	InsertSaleLine(ctx context.Context, line SaleLine) error
	SetProductStock(ctx context.Context, productID string, stock int64) error
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

// Drawer is the cash drawer ledger.
type Drawer interface {
	Record(ctx context.Context, entry DrawerEntry) error
	Balance(ctx context.Context) (Amount, error)
}

// Local groups the device-owned mirror and queue. Its lock serializes
// multi-step sequences that touch both, such as commit and post-sync
// reconciliation.
type Local struct {
	Mirror Mirror
	Queue  Queue

	mu sync.Mutex
}

// NewLocal creates a Local over the given mirror and queue.
func NewLocal(mirror Mirror, queue Queue) *Local {
	return &Local{Mirror: mirror, Queue: queue}
}

func (l *Local) Lock()   { l.mu.Lock() }
func (l *Local) Unlock() { l.mu.Unlock() }
