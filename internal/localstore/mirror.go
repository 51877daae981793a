package localstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pos_sync/internal/sales"
)

// Mirror is the SQLite implementation of sales.Mirror.
type Mirror struct {
	db *sql.DB
}

var _ sales.Mirror = (*Mirror)(nil)

// RefreshAll replaces all products in one transaction. A snapshot containing an
// invalid product is rejected as a whole.
func (m *Mirror) RefreshAll(ctx context.Context, products []sales.Product) error {
	for _, p := range products {
		if err := sales.Validate(p); err != nil {
			return err
		}
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("refresh products: begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM products`); err != nil {
		return unavailable("refresh products: clear", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, p := range products {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, name, price, stock, refreshed_at)
			VALUES (?, ?, ?, ?, ?)
		`, p.ID, p.Name, int64(p.Price), p.Stock, now)
		if err != nil {
			return unavailable("refresh products: insert "+p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("refresh products: commit", err)
	}
	return nil
}

func (m *Mirror) Get(ctx context.Context, productID string) (sales.Product, error) {
	var p sales.Product
	var price int64
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, price, stock FROM products WHERE id = ?
	`, productID).Scan(&p.ID, &p.Name, &price, &p.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return sales.Product{}, sales.ErrProductNotFoundLocally
	}
	if err != nil {
		return sales.Product{}, unavailable("get product", err)
	}
	p.Price = sales.Amount(price)
	return p, nil
}

// ApplyStockDelta adds delta to the product's stock in a single statement.
func (m *Mirror) ApplyStockDelta(ctx context.Context, productID string, delta int64) (int64, error) {
	var stock int64
	err := m.db.QueryRowContext(ctx, `
		UPDATE products SET stock = stock + ? WHERE id = ? RETURNING stock
	`, delta, productID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sales.ErrProductNotFoundLocally
	}
	if err != nil {
		return 0, unavailable("apply stock delta", err)
	}
	return stock, nil
}

func (m *Mirror) SetStock(ctx context.Context, productID string, stock int64) error {
	res, err := m.db.ExecContext(ctx, `UPDATE products SET stock = ? WHERE id = ?`, stock, productID)
	if err != nil {
		return unavailable("set stock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("set stock", err)
	}
	if n == 0 {
		return sales.ErrProductNotFoundLocally
	}
	return nil
}

// List returns all products ordered by id.
func (m *Mirror) List(ctx context.Context) ([]sales.Product, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id, name, price, stock FROM products ORDER BY id`)
	if err != nil {
		return nil, unavailable("list products", err)
	}
	defer rows.Close()

	var products []sales.Product
	for rows.Next() {
		var p sales.Product
		var price int64
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.Stock); err != nil {
			return nil, unavailable("scan product", err)
		}
		p.Price = sales.Amount(price)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list products", err)
	}
	return products, nil
}
