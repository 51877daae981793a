package redisqueue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos_sync/internal/sales"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	prefix := "pos:test:" + uuid.NewString()
	q, err := New(context.Background(), redisURL, prefix)
	require.NoError(t, err)
	t.Cleanup(func() {
		q.client.Del(context.Background(), q.orderKey, q.txKey, q.seqKey)
		q.Close()
	})
	return q
}

func tx(id string) sales.OfflineTransaction {
	return sales.OfflineTransaction{
		ID:             id,
		Items:          []sales.TransactionItem{{ProductID: "A", ProductName: "Tea", Quantity: 2, UnitPrice: 1000, ResultingStock: 3}},
		Total:          2000,
		AmountReceived: 2000,
		Timestamp:      time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
	}
}

func TestQueue_OrderAndIdempotentRemove(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, q.Enqueue(ctx, tx(id)))
	}
	assert.ErrorIs(t, q.Enqueue(ctx, tx("a")), ErrDuplicate)

	txs, err := q.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "c", txs[0].ID)
	assert.Equal(t, "a", txs[1].ID)
	assert.Equal(t, "b", txs[2].ID)
	assert.Equal(t, int64(3), txs[0].Items[0].ResultingStock)

	require.NoError(t, q.Remove(ctx, "a"))
	require.NoError(t, q.Remove(ctx, "a"))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestQueue_SkipsCorruptPayload(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	require.NoError(t, q.Enqueue(ctx, tx("good")))
	require.NoError(t, q.client.HSet(ctx, q.txKey, "bad", "{").Err())
	require.NoError(t, q.client.ZAdd(ctx, q.orderKey, redis.Z{Score: 100, Member: "bad"}).Err())

	txs, err := q.ListAll(ctx)
	assert.ErrorIs(t, err, sales.ErrInvalidRecord)
	require.Len(t, txs, 1)
	assert.Equal(t, "good", txs[0].ID)
}

func TestNew_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := New(ctx, "redis://127.0.0.1:1/0", "")
	assert.ErrorIs(t, err, sales.ErrStorageUnavailable)
}
