package localstore

import (
	"context"
	"database/sql"
	"time"

	"pos_sync/internal/sales"
)

// Drawer is the cash drawer ledger.
type Drawer struct {
	db *sql.DB
}

var _ sales.Drawer = (*Drawer)(nil)

func (d *Drawer) Record(ctx context.Context, entry sales.DrawerEntry) error {
	if err := sales.Validate(entry); err != nil {
		return err
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO cash_drawer (direction, amount, description, created_at)
		VALUES (?, ?, ?, ?)
	`, entry.Direction, int64(entry.Amount), entry.Description, entry.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return unavailable("record drawer entry", err)
	}
	return nil
}

// Balance sums incoming minus outgoing entries.
func (d *Drawer) Balance(ctx context.Context) (sales.Amount, error) {
	var balance int64
	err := d.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE direction WHEN 'in' THEN amount ELSE -amount END), 0)
		FROM cash_drawer
	`).Scan(&balance)
	if err != nil {
		return 0, unavailable("drawer balance", err)
	}
	return sales.Amount(balance), nil
}

// Entries returns the ledger oldest first.
func (d *Drawer) Entries(ctx context.Context) ([]sales.DrawerEntry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT direction, amount, description, created_at FROM cash_drawer ORDER BY seq ASC
	`)
	if err != nil {
		return nil, unavailable("list drawer", err)
	}
	defer rows.Close()

	var entries []sales.DrawerEntry
	for rows.Next() {
		var (
			e       sales.DrawerEntry
			amount  int64
			created string
		)
		if err := rows.Scan(&e.Direction, &amount, &e.Description, &created); err != nil {
			return nil, unavailable("scan drawer entry", err)
		}
		e.Amount = sales.Amount(amount)
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list drawer", err)
	}
	return entries, nil
}
