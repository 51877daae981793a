// Package memstore provides an in-process remote store. It records every call
// in order and supports failure injection, which makes it the test double for
// the commit pipeline and the synchronization engine, and the backend for demo
// mode.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"pos_sync/internal/sales"
)

// ErrNotFound is returned for unknown products.
var ErrNotFound = errors.New("remote product not found")

// Op names a remote call.
type Op string

const (
	OpInsertSale     Op = "insert_sale"
	OpInsertSaleLine Op = "insert_sale_line"
	OpUpdateStock    Op = "update_stock"
	OpSelectProducts Op = "select_products"
)

// Call is one recorded remote call. Record holds the SaleHeader, SaleLine or
// StockUpdate that was sent.
type Call struct {
	Op     Op
	Record any
}

// StockUpdate is the record of an OpUpdateStock call.
type StockUpdate struct {
	ProductID string
	Stock     int64
}

// Sale is a stored sale header with its assigned id.
type Sale struct {
	ID     string
	Header sales.SaleHeader
}

// Store is an in-memory sales.Remote.
type Store struct {
	mu       sync.Mutex
	products map[string]sales.Product
	sales    []Sale
	lines    []sales.SaleLine
	calls    []Call
	nextID   int
	fail     func(op Op, record any) error
}

// New creates a store holding the given products.
func New(products ...sales.Product) *Store {
	s := &Store{products: map[string]sales.Product{}}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

// FailWhen installs a hook consulted before each call. A non-nil error from the
// hook fails the call without side effects. Pass nil to clear.
func (s *Store) FailWhen(fn func(op Op, record any) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fn
}

// FailAll makes every call fail with err until cleared with FailWhen(nil).
func (s *Store) FailAll(err error) {
	s.FailWhen(func(Op, any) error { return err })
}

func (s *Store) check(op Op, record any) error {
	if s.fail == nil {
		return nil
	}
	return s.fail(op, record)
}

func (s *Store) InsertSale(_ context.Context, header sales.SaleHeader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpInsertSale, header); err != nil {
		return "", err
	}
	s.nextID++
	id := fmt.Sprintf("sale-%d", s.nextID)
	s.sales = append(s.sales, Sale{ID: id, Header: header})
	s.calls = append(s.calls, Call{Op: OpInsertSale, Record: header})
	return id, nil
}

func (s *Store) InsertSaleLine(_ context.Context, line sales.SaleLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpInsertSaleLine, line); err != nil {
		return err
	}
	s.lines = append(s.lines, line)
	s.calls = append(s.calls, Call{Op: OpInsertSaleLine, Record: line})
	return nil
}

func (s *Store) SetProductStock(_ context.Context, productID string, stock int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	upd := StockUpdate{ProductID: productID, Stock: stock}
	if err := s.check(OpUpdateStock, upd); err != nil {
		return err
	}
	// Updating a missing row matches nothing, as a filtered UPDATE would.
	if p, ok := s.products[productID]; ok {
		p.Stock = stock
		s.products[productID] = p
	}
	s.calls = append(s.calls, Call{Op: OpUpdateStock, Record: upd})
	return nil
}

func (s *Store) GetProduct(_ context.Context, productID string) (sales.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpSelectProducts, productID); err != nil {
		return sales.Product{}, err
	}
	p, ok := s.products[productID]
	if !ok {
		return sales.Product{}, ErrNotFound
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context) ([]sales.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(OpSelectProducts, nil); err != nil {
		return nil, err
	}
	out := make([]sales.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutProduct creates or replaces a product, as another device or the
// dashboard would.
func (s *Store) PutProduct(p sales.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// Sales returns stored sale headers in insertion order.
func (s *Store) Sales() []Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sale(nil), s.sales...)
}

// Lines returns stored sale lines in insertion order.
func (s *Store) Lines() []sales.SaleLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sales.SaleLine(nil), s.lines...)
}

// Calls returns the successful calls in the order they were made.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Stock returns the stored stock of a product.
func (s *Store) Stock(productID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	return p.Stock, ok
}
