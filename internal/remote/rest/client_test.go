package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos_sync/internal/sales"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Prefer string
	APIKey string
	Body   map[string]any
}

type fakePostgREST struct {
	mu       sync.Mutex
	requests []recordedRequest
	fail     bool
}

func (f *fakePostgREST) handler(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Prefer: r.Header.Get("Prefer"),
		APIKey: r.Header.Get("apikey"),
		Body:   body,
	})
	fail := f.fail
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"message":"unavailable"}`))
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/sales":
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id": 42}]`))
	case r.Method == http.MethodPost:
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodPatch:
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && r.URL.Query().Get("id") == "eq.missing":
		w.Write([]byte(`[]`))
	case r.Method == http.MethodGet:
		w.Write([]byte(`[{"id":"A","product_name":"Tea","product_price":1000,"product_stock":5}]`))
	}
}

func (f *fakePostgREST) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakePostgREST) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func newTestClient(t *testing.T) (*Client, *fakePostgREST) {
	t.Helper()
	fake := &fakePostgREST{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "anon-key", 5*time.Second)
	t.Cleanup(func() { c.Close() })
	return c, fake
}

func TestClient_ApplyTransaction(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClient(t)

	tx := sales.OfflineTransaction{
		ID:             "tx-1",
		Items:          []sales.TransactionItem{{ProductID: "A", ProductName: "Tea", Quantity: 2, UnitPrice: 1000, ResultingStock: 3}},
		Total:          2000,
		AmountReceived: 5000,
		Change:         3000,
		Timestamp:      time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC),
		CashierID:      "cashier-1",
	}
	require.NoError(t, sales.ApplyRemote(ctx, c, tx))

	requests := fake.recorded()
	require.Len(t, requests, 3)

	header := requests[0]
	assert.Equal(t, http.MethodPost, header.Method)
	assert.Equal(t, "/sales", header.Path)
	assert.Equal(t, "return=representation", header.Prefer)
	assert.Equal(t, "anon-key", header.APIKey)
	assert.Equal(t, "2026-10-17T09:30:00Z", header.Body["sale_date"])
	assert.EqualValues(t, 2000, header.Body["total_amount"])
	assert.EqualValues(t, 5000, header.Body["amount_received"])
	assert.EqualValues(t, 3000, header.Body["change"])
	assert.Equal(t, "cashier-1", header.Body["user_id"])

	line := requests[1]
	assert.Equal(t, "/sales_items", line.Path)
	assert.Equal(t, "42", line.Body["sale_id"])
	assert.Equal(t, "A", line.Body["product_id"])
	assert.EqualValues(t, 2, line.Body["quantity"])
	assert.EqualValues(t, 1000, line.Body["price"])

	stock := requests[2]
	assert.Equal(t, http.MethodPatch, stock.Method)
	assert.Equal(t, "/products", stock.Path)
	assert.Equal(t, "id=eq.A", stock.Query)
	assert.EqualValues(t, 3, stock.Body["product_stock"])
}

func TestClient_Products(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	products, err := c.ListProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []sales.Product{{ID: "A", Name: "Tea", Price: 1000, Stock: 5}}, products)

	p, err := c.GetProduct(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.Stock)

	_, err = c.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, c.Ping(ctx))
}

func TestClient_ErrorStatus(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClient(t)
	fake.setFail(true)

	_, err := c.InsertSale(ctx, sales.SaleHeader{Total: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")

	err = sales.ApplyRemote(ctx, c, sales.OfflineTransaction{ID: "tx", Items: []sales.TransactionItem{{ProductID: "A", Quantity: 1}}})
	assert.ErrorIs(t, err, sales.ErrRemoteWriteFailed)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, "", time.Second)
	defer c.Close()
	assert.Error(t, c.Ping(context.Background()))
}
