// Package pgstore implements the remote store directly on PostgreSQL, for
// back offices that expose the database to registers instead of a REST layer.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pos_sync/internal/sales"
)

// ErrNotFound is returned when a product lookup matches no row.
var ErrNotFound = errors.New("remote product not found")

type Store struct {
	pool *pgxpool.Pool
}

var _ sales.Remote = (*Store)(nil)

// New opens a pool against connString and verifies it.
func New(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 4
	config.MinConns = 0
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database answers; the prober uses it as the
// reachability check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the tables the registers write to when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id            TEXT PRIMARY KEY,
			product_name  TEXT NOT NULL DEFAULT '',
			product_price BIGINT NOT NULL DEFAULT 0,
			product_stock BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id              BIGSERIAL PRIMARY KEY,
			sale_date       TIMESTAMPTZ NOT NULL,
			total_amount    BIGINT NOT NULL,
			amount_received BIGINT NOT NULL,
			"change"        BIGINT NOT NULL,
			user_id         TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS sales_items (
			id           BIGSERIAL PRIMARY KEY,
			sale_id      BIGINT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
			product_id   TEXT NOT NULL,
			product_name TEXT NOT NULL,
			quantity     BIGINT NOT NULL,
			price        BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_items_sale_id ON sales_items(sale_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

func (s *Store) InsertSale(ctx context.Context, header sales.SaleHeader) (string, error) {
	var userID *string
	if header.CashierID != "" {
		userID = &header.CashierID
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sales (sale_date, total_amount, amount_received, "change", user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, header.SaleDate, int64(header.Total), int64(header.AmountReceived), int64(header.Change), userID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert sale: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *Store) InsertSaleLine(ctx context.Context, line sales.SaleLine) error {
	saleID, err := strconv.ParseInt(line.SaleID, 10, 64)
	if err != nil {
		return fmt.Errorf("insert sale line: bad sale id %q: %w", line.SaleID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sales_items (sale_id, product_id, product_name, quantity, price)
		VALUES ($1, $2, $3, $4, $5)
	`, saleID, line.ProductID, line.ProductName, line.Quantity, int64(line.Price))
	if err != nil {
		return fmt.Errorf("insert sale line: %w", err)
	}
	return nil
}

// SetProductStock overwrites the stock column. A product deleted remotely
// matches no row and is not an error.
func (s *Store) SetProductStock(ctx context.Context, productID string, stock int64) error {
	if _, err := s.pool.Exec(ctx, `UPDATE products SET product_stock = $1 WHERE id = $2`, stock, productID); err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, productID string) (sales.Product, error) {
	var (
		p     sales.Product
		price int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, product_name, product_price, product_stock FROM products WHERE id = $1
	`, productID).Scan(&p.ID, &p.Name, &price, &p.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return sales.Product{}, fmt.Errorf("%w: %s", ErrNotFound, productID)
	}
	if err != nil {
		return sales.Product{}, fmt.Errorf("select product: %w", err)
	}
	p.Price = sales.Amount(price)
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]sales.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, product_name, product_price, product_stock FROM products ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var products []sales.Product
	for rows.Next() {
		var (
			p     sales.Product
			price int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Price = sales.Amount(price)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return products, nil
}

// PutProduct upserts a product row.
func (s *Store) PutProduct(ctx context.Context, p sales.Product) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, product_name, product_price, product_stock)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET product_name = EXCLUDED.product_name,
		    product_price = EXCLUDED.product_price,
		    product_stock = EXCLUDED.product_stock
	`, p.ID, p.Name, int64(p.Price), p.Stock)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}
