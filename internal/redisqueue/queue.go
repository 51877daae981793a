// Package redisqueue implements the offline transaction queue on Redis for
// deployments where the register shares a local Redis instance configured with
// appendonly persistence.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pos_sync/internal/sales"
)

// enqueueScript adds a transaction atomically: it refuses duplicates, takes the
// next sequence number and writes both the payload and the ordering entry.
var enqueueScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 1 then
	return 0
end
local seq = redis.call('INCR', KEYS[3])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[1], seq, ARGV[1])
return 1
`)

// ErrDuplicate is returned when enqueuing an id that is already queued.
var ErrDuplicate = errors.New("transaction already queued")

type Queue struct {
	client   *redis.Client
	orderKey string
	txKey    string
	seqKey   string
}

var _ sales.Queue = (*Queue)(nil)

// New connects to redisURL and verifies the connection.
func New(ctx context.Context, redisURL, prefix string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping redis: %w", sales.ErrStorageUnavailable, err)
	}

	return NewFromClient(client, prefix), nil
}

// NewFromClient wraps an existing client. Keys are namespaced by prefix.
func NewFromClient(client *redis.Client, prefix string) *Queue {
	if prefix == "" {
		prefix = "pos:offline"
	}
	return &Queue{
		client:   client,
		orderKey: prefix + ":order",
		txKey:    prefix + ":tx",
		seqKey:   prefix + ":seq",
	}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, tx sales.OfflineTransaction) error {
	if err := sales.Validate(tx); err != nil {
		return err
	}

	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", sales.ErrInvalidRecord, tx.ID, err)
	}

	added, err := enqueueScript.Run(ctx, q.client,
		[]string{q.orderKey, q.txKey, q.seqKey}, tx.ID, string(data)).Int()
	if err != nil {
		return fmt.Errorf("%w: enqueue %s: %w", sales.ErrStorageUnavailable, tx.ID, err)
	}
	if added == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, tx.ID)
	}
	return nil
}

// ListAll returns queued transactions by ascending sequence number. Payloads
// that fail to decode or validate are skipped and reported as ErrInvalidRecord
// alongside the valid ones.
func (q *Queue) ListAll(ctx context.Context) ([]sales.OfflineTransaction, error) {
	ids, err := q.client.ZRange(ctx, q.orderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list queue: %w", sales.ErrStorageUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := q.client.HMGet(ctx, q.txKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: load queue: %w", sales.ErrStorageUnavailable, err)
	}

	var (
		txs []sales.OfflineTransaction
		bad []error
	)
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			bad = append(bad, fmt.Errorf("%w: %s has no payload", sales.ErrInvalidRecord, ids[i]))
			continue
		}
		var tx sales.OfflineTransaction
		if err := json.Unmarshal([]byte(s), &tx); err != nil {
			bad = append(bad, fmt.Errorf("%w: %s: %v", sales.ErrInvalidRecord, ids[i], err))
			continue
		}
		if err := sales.Validate(tx); err != nil {
			bad = append(bad, fmt.Errorf("%s: %w", ids[i], err))
			continue
		}
		txs = append(txs, tx)
	}
	return txs, errors.Join(bad...)
}

// Remove deletes the transaction; removing an absent id is a no-op.
func (q *Queue) Remove(ctx context.Context, id string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.orderKey, id)
		pipe.HDel(ctx, q.txKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: remove %s: %w", sales.ErrStorageUnavailable, id, err)
	}
	return nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.orderKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: count queue: %w", sales.ErrStorageUnavailable, err)
	}
	return int(n), nil
}
