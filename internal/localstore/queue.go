package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pos_sync/internal/sales"
)

// Queue is the SQLite implementation of sales.Queue. Each transaction is stored
// as one JSON row; the autoincrement seq column preserves insertion order.
type Queue struct {
	db *sql.DB
}

var _ sales.Queue = (*Queue)(nil)

// Enqueue durably appends the transaction. A duplicate id is rejected.
func (q *Queue) Enqueue(ctx context.Context, tx sales.OfflineTransaction) error {
	if err := sales.Validate(tx); err != nil {
		return err
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", sales.ErrInvalidRecord, tx.ID, err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO offline_transactions (id, payload, created_at)
		VALUES (?, ?, ?)
	`, tx.ID, string(payload), tx.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return unavailable("enqueue "+tx.ID, err)
	}
	return nil
}

// ListAll returns pending transactions in insertion order. Rows that fail to
// decode or validate are skipped; they are reported through an error wrapping
// sales.ErrInvalidRecord returned together with the valid transactions.
func (q *Queue) ListAll(ctx context.Context) ([]sales.OfflineTransaction, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, payload FROM offline_transactions ORDER BY seq ASC`)
	if err != nil {
		return nil, unavailable("list queue", err)
	}
	defer rows.Close()

	txs := []sales.OfflineTransaction{}
	var bad []error
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, unavailable("scan queue row", err)
		}
		var tx sales.OfflineTransaction
		if err := json.Unmarshal([]byte(payload), &tx); err != nil {
			bad = append(bad, fmt.Errorf("%w: row %s: %v", sales.ErrInvalidRecord, id, err))
			continue
		}
		if err := sales.Validate(tx); err != nil {
			bad = append(bad, fmt.Errorf("row %s: %w", id, err))
			continue
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list queue", err)
	}
	return txs, errors.Join(bad...)
}

// Remove deletes the transaction; an absent id is a no-op.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM offline_transactions WHERE id = ?`, id); err != nil {
		return unavailable("remove "+id, err)
	}
	return nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_transactions`).Scan(&n); err != nil {
		return 0, unavailable("count queue", err)
	}
	return n, nil
}
