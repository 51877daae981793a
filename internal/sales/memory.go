package sales

import (
	"context"
	"sync"
)

// MemoryMirror provides an in-memory Mirror. It is not durable and is meant for
// tests and throwaway demo sessions.
type MemoryMirror struct {
	mu sync.Mutex
	m  map[string]Product

	// Err, when set, is returned by every call.
	Err error
}

// NewMemoryMirror instantiates a MemoryMirror seeded with the given products.
func NewMemoryMirror(products ...Product) *MemoryMirror {
	m := &MemoryMirror{m: map[string]Product{}}
	for _, p := range products {
		m.m[p.ID] = p
	}
	return m
}

func (l *MemoryMirror) RefreshAll(_ context.Context, products []Product) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	next := make(map[string]Product, len(products))
	for _, p := range products {
		if err := Validate(p); err != nil {
			return err
		}
		next[p.ID] = p
	}
	l.m = next
	return nil
}

func (l *MemoryMirror) Get(_ context.Context, productID string) (Product, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return Product{}, l.Err
	}
	p, ok := l.m[productID]
	if !ok {
		return Product{}, ErrProductNotFoundLocally
	}
	return p, nil
}

func (l *MemoryMirror) ApplyStockDelta(_ context.Context, productID string, delta int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return 0, l.Err
	}
	p, ok := l.m[productID]
	if !ok {
		return 0, ErrProductNotFoundLocally
	}
	p.Stock += delta
	l.m[productID] = p
	return p.Stock, nil
}

func (l *MemoryMirror) SetStock(_ context.Context, productID string, stock int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	p, ok := l.m[productID]
	if !ok {
		return ErrProductNotFoundLocally
	}
	p.Stock = stock
	l.m[productID] = p
	return nil
}

func (l *MemoryMirror) List(_ context.Context) ([]Product, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	products := make([]Product, 0, len(l.m))
	for _, p := range l.m {
		products = append(products, p)
	}
	return products, nil
}

// MemoryQueue provides an in-memory Queue preserving insertion order.
type MemoryQueue struct {
	mu    sync.Mutex
	order []string
	m     map[string]OfflineTransaction

	// EnqueueErr and RemoveErr, when set, are returned by the matching call.
	EnqueueErr error
	RemoveErr  error
}

// NewMemoryQueue instantiates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{m: map[string]OfflineTransaction{}}
}

func (q *MemoryQueue) Enqueue(_ context.Context, tx OfflineTransaction) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.EnqueueErr != nil {
		return q.EnqueueErr
	}
	if err := Validate(tx); err != nil {
		return err
	}
	if _, ok := q.m[tx.ID]; ok {
		return ErrInvalidRecord
	}
	q.m[tx.ID] = tx
	q.order = append(q.order, tx.ID)
	return nil
}

func (q *MemoryQueue) ListAll(_ context.Context) ([]OfflineTransaction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	txs := make([]OfflineTransaction, 0, len(q.order))
	for _, id := range q.order {
		txs = append(txs, q.m[id])
	}
	return txs, nil
}

func (q *MemoryQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.RemoveErr != nil {
		return q.RemoveErr
	}
	if _, ok := q.m[id]; !ok {
		return nil
	}
	delete(q.m, id)
	for i, o := range q.order {
		if o == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}

func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order), nil
}
