package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Amount is a monetary value expressed in minor currency units.
type Amount int64

// Format renders the amount with the currency's minor-unit exponent, e.g. 2000 with
// exponent 0 renders "2000 IQD" and 1999 with exponent 2 renders "19.99 USD".
func (a Amount) Format(currency string, exponent int32) string {
	s := decimal.New(int64(a), -exponent).StringFixed(exponent)
	if currency == "" {
		return s
	}
	return s + " " + currency
}

// Line bounds keep UnitPrice*Quantity within int64.
const (
	MaxLineQuantity = 1_000_000
	MaxUnitPrice    = 1_000_000_000_000
)

// Product is a product record as held by the remote store and mirrored locally.
type Product struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"product_name"`
	Price Amount `json:"product_price" validate:"gte=0"`
	Stock int64  `json:"product_stock"`
}

// CartLine is one finalized line of a checkout cart.
type CartLine struct {
	ProductID string `json:"product_id" validate:"required"`
	Name      string `json:"name"`
	UnitPrice Amount `json:"unit_price" validate:"gte=0,lte=1000000000000"`
	Quantity  int64  `json:"quantity" validate:"gt=0,lte=1000000"`
}

// Subtotal returns unit price times quantity.
func (l CartLine) Subtotal() Amount {
	return l.UnitPrice * Amount(l.Quantity)
}

// TransactionItem is a sold line together with the stock the product should hold
// once this line has been applied.
type TransactionItem struct {
	ProductID      string `json:"product_id" validate:"required"`
	ProductName    string `json:"product_name"`
	Quantity       int64  `json:"quantity" validate:"gt=0,lte=1000000"`
	UnitPrice      Amount `json:"unit_price" validate:"gte=0,lte=1000000000000"`
	ResultingStock int64  `json:"resulting_stock"`
}

// OfflineTransaction is a completed sale. It is immutable once created and is
// deleted from the queue only after it has been fully applied remotely.
type OfflineTransaction struct {
	ID             string            `json:"id" validate:"required"`
	Items          []TransactionItem `json:"items" validate:"required,min=1,dive"`
	Total          Amount            `json:"total" validate:"gte=0"`
	AmountReceived Amount            `json:"amount_received" validate:"gte=0"`
	Change         Amount            `json:"change"`
	Timestamp      time.Time         `json:"timestamp" validate:"required"`
	CashierID      string            `json:"cashier_id,omitempty"`
}

// SaleHeader is the remote record of one completed sale.
type SaleHeader struct {
	SaleDate       time.Time `json:"sale_date"`
	Total          Amount    `json:"total_amount"`
	AmountReceived Amount    `json:"amount_received"`
	Change         Amount    `json:"change"`
	CashierID      string    `json:"user_id,omitempty"`
}

// SaleLine is the remote record of one product sold within a sale header.
type SaleLine struct {
	SaleID      string `json:"sale_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
	Price       Amount `json:"price"`
}

// Header builds the remote sale header for the transaction.
func (t OfflineTransaction) Header() SaleHeader {
	return SaleHeader{
		SaleDate:       t.Timestamp,
		Total:          t.Total,
		AmountReceived: t.AmountReceived,
		Change:         t.Change,
		CashierID:      t.CashierID,
	}
}

// NewTransactionID returns a fresh client-side transaction id.
func NewTransactionID() string {
	return uuid.NewString()
}

// NotificationKind classifies operator-facing notifications.
type NotificationKind string

const (
	NotifyLowStock     NotificationKind = "low_stock"
	NotifySyncStatus   NotificationKind = "sync_status"
	NotifyConnectivity NotificationKind = "connectivity"
	NotifyAlert        NotificationKind = "alert"
)

// Notification is shown to the operator. Blocking notifications signal possible
// data loss and stay on screen until the cashier dismisses them in the UI; the
// rest are transient.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	ProductID string           `json:"product_id,omitempty"`
	Blocking  bool             `json:"blocking"`
	Time      time.Time        `json:"time"`
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}

// DrawerEntry is one movement of cash in or out of the drawer.
type DrawerEntry struct {
	Direction   string    `json:"type" validate:"oneof=in out"`
	Amount      Amount    `json:"amount" validate:"gte=0"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}
