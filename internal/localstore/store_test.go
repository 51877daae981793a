package localstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos_sync/internal/sales"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pos.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func testTx(id string, at time.Time, items ...sales.TransactionItem) sales.OfflineTransaction {
	if len(items) == 0 {
		items = []sales.TransactionItem{{ProductID: "A", ProductName: "Tea", Quantity: 1, UnitPrice: 1000, ResultingStock: 4}}
	}
	var total sales.Amount
	for _, it := range items {
		total += it.UnitPrice * sales.Amount(it.Quantity)
	}
	return sales.OfflineTransaction{
		ID:             id,
		Items:          items,
		Total:          total,
		AmountReceived: total,
		Timestamp:      at,
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpen_UnwritableLocation(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "pos.db"))
	require.Error(t, err)
	assert.ErrorIs(t, err, sales.ErrStorageUnavailable)
}

func TestMirror(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	m := s.Mirror()

	require.NoError(t, m.RefreshAll(ctx, []sales.Product{
		{ID: "A", Name: "Tea", Price: 1000, Stock: 10},
		{ID: "B", Name: "Sugar", Price: 250, Stock: 2},
	}))

	p, err := m.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, sales.Product{ID: "A", Name: "Tea", Price: 1000, Stock: 10}, p)

	stock, err := m.ApplyStockDelta(ctx, "A", -3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stock)

	require.NoError(t, m.SetStock(ctx, "B", 12))
	p, _ = m.Get(ctx, "B")
	assert.Equal(t, int64(12), p.Stock)

	_, err = m.Get(ctx, "missing")
	assert.ErrorIs(t, err, sales.ErrProductNotFoundLocally)
	_, err = m.ApplyStockDelta(ctx, "missing", -1)
	assert.ErrorIs(t, err, sales.ErrProductNotFoundLocally)
	assert.ErrorIs(t, m.SetStock(ctx, "missing", 1), sales.ErrProductNotFoundLocally)

	// Refresh replaces the whole set.
	require.NoError(t, m.RefreshAll(ctx, []sales.Product{{ID: "C", Name: "Rice", Price: 3000, Stock: 1}}))
	all, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "C", all[0].ID)
}

func TestMirror_RefreshRejectsMalformedSnapshot(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	m := s.Mirror()
	require.NoError(t, m.RefreshAll(ctx, []sales.Product{{ID: "A", Stock: 1}}))

	err := m.RefreshAll(ctx, []sales.Product{{ID: "B", Stock: 1}, {ID: ""}})
	assert.ErrorIs(t, err, sales.ErrInvalidRecord)

	_, err = m.Get(ctx, "A")
	assert.NoError(t, err, "previous snapshot must survive a rejected refresh")
}

func TestQueue_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	q := s.Queue()
	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	// Timestamps deliberately out of order: ordering follows insertion.
	for i, id := range []string{"tx-c", "tx-a", "tx-b"} {
		require.NoError(t, q.Enqueue(ctx, testTx(id, base.Add(-time.Duration(i)*time.Minute))))
	}

	txs, err := q.ListAll(ctx)
	require.NoError(t, err)
	var ids []string
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	assert.Equal(t, []string{"tx-c", "tx-a", "tx-b"}, ids)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestQueue_RoundTripsTransaction(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	q := s.Queue()

	tx := testTx("tx-1", time.Date(2026, 10, 17, 9, 0, 0, 123, time.UTC),
		sales.TransactionItem{ProductID: "A", ProductName: "Tea", Quantity: 2, UnitPrice: 1000, ResultingStock: 3},
		sales.TransactionItem{ProductID: "B", ProductName: "Sugar", Quantity: 1, UnitPrice: 250, ResultingStock: -1},
	)
	tx.AmountReceived = 5000
	tx.Change = 5000 - tx.Total
	tx.CashierID = "cashier-7"
	require.NoError(t, q.Enqueue(ctx, tx))

	txs, err := q.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, tx.Timestamp.Equal(txs[0].Timestamp))
	txs[0].Timestamp = tx.Timestamp
	assert.Equal(t, tx, txs[0])
}

func TestQueue_RejectsDuplicateAndMalformed(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	q := s.Queue()
	now := time.Now()

	require.NoError(t, q.Enqueue(ctx, testTx("tx-1", now)))
	assert.ErrorIs(t, q.Enqueue(ctx, testTx("tx-1", now)), sales.ErrStorageUnavailable)

	bad := testTx("tx-2", now)
	bad.Items = nil
	assert.ErrorIs(t, q.Enqueue(ctx, bad), sales.ErrInvalidRecord)

	n, _ := q.Len(ctx)
	assert.Equal(t, 1, n)
}

func TestQueue_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	q := s.Queue()
	require.NoError(t, q.Enqueue(ctx, testTx("tx-1", time.Now())))

	require.NoError(t, q.Remove(ctx, "tx-1"))
	txs, _ := q.ListAll(ctx)
	assert.Empty(t, txs)

	require.NoError(t, q.Remove(ctx, "tx-1"))
	txs, _ = q.ListAll(ctx)
	assert.Empty(t, txs)
}

func TestQueue_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pos.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Queue().Enqueue(ctx, testTx("tx-1", time.Now())))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	txs, err := s2.Queue().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "tx-1", txs[0].ID)
}

func TestQueue_SkipsCorruptRows(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	q := s.Queue()

	require.NoError(t, q.Enqueue(ctx, testTx("tx-1", time.Now())))
	_, err := s.db.Exec(`INSERT INTO offline_transactions (id, payload, created_at) VALUES ('tx-bad', '{"id":', 'x')`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO offline_transactions (id, payload, created_at) VALUES ('tx-empty', '{"id":"tx-empty","items":[]}', 'x')`)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, testTx("tx-2", time.Now())))

	txs, err := q.ListAll(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sales.ErrInvalidRecord))
	require.Len(t, txs, 2)
	assert.Equal(t, "tx-1", txs[0].ID)
	assert.Equal(t, "tx-2", txs[1].ID)
}

func TestStore_ClosedReportsUnavailable(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Queue().Enqueue(ctx, testTx("tx-1", time.Now())), sales.ErrStorageUnavailable)
	_, err := s.Mirror().Get(ctx, "A")
	assert.ErrorIs(t, err, sales.ErrStorageUnavailable)
	assert.ErrorIs(t, s.Ping(ctx), sales.ErrStorageUnavailable)
}

func TestDrawer(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	d := s.Drawer()

	for i, e := range []sales.DrawerEntry{
		{Direction: "in", Amount: 50000, Description: "float"},
		{Direction: "in", Amount: 2000, Description: "Sale tx-1"},
		{Direction: "out", Amount: 1500, Description: "supplier"},
	} {
		require.NoError(t, d.Record(ctx, e), fmt.Sprintf("entry %d", i))
	}
	assert.ErrorIs(t, d.Record(ctx, sales.DrawerEntry{Direction: "sideways", Amount: 1}), sales.ErrInvalidRecord)

	balance, err := d.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, sales.Amount(50500), balance)

	entries, err := d.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "supplier", entries[2].Description)
}
