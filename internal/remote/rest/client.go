// Package rest implements the remote store over a PostgREST-compatible HTTP
// API such as the one fronting a hosted Supabase database. Tables follow the
// hosted schema: sales, sales_items and products.
package rest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resty.dev/v3"

	"pos_sync/internal/sales"
)

const (
	tableSales     = "sales"
	tableSaleItems = "sales_items"
	tableProducts  = "products"
)

// ErrNotFound is returned when a product lookup matches no row.
var ErrNotFound = errors.New("remote product not found")

// Client is a sales.Remote talking to PostgREST.
type Client struct {
	http *resty.Client
}

var _ sales.Remote = (*Client)(nil)

// New creates a client for baseURL (e.g. https://project.supabase.co/rest/v1).
// apiKey is sent both as the apikey header and as a bearer token.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetHeader("apikey", apiKey)
		c.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &Client{http: c}
}

func (c *Client) Close() error {
	return c.http.Close()
}

// Ping issues a cheap select against products; the prober uses it as the
// reachability check.
func (c *Client) Ping(ctx context.Context) error {
	var rows []map[string]any
	return c.selectRows(ctx, tableProducts, map[string]string{"select": "id", "limit": "1"}, &rows)
}

type insertedRow struct {
	ID any `json:"id"`
}

func (c *Client) InsertSale(ctx context.Context, header sales.SaleHeader) (string, error) {
	var rows []insertedRow
	if err := c.insert(ctx, tableSales, header, &rows); err != nil {
		return "", err
	}
	if len(rows) == 0 || rows[0].ID == nil {
		return "", fmt.Errorf("insert %s: no row returned", tableSales)
	}
	return fmt.Sprint(rows[0].ID), nil
}

func (c *Client) InsertSaleLine(ctx context.Context, line sales.SaleLine) error {
	return c.insert(ctx, tableSaleItems, line, nil)
}

func (c *Client) SetProductStock(ctx context.Context, productID string, stock int64) error {
	return c.update(ctx, tableProducts, map[string]any{"product_stock": stock}, map[string]string{"id": productID})
}

func (c *Client) GetProduct(ctx context.Context, productID string) (sales.Product, error) {
	var rows []sales.Product
	err := c.selectRows(ctx, tableProducts, map[string]string{"select": "*", "id": "eq." + productID}, &rows)
	if err != nil {
		return sales.Product{}, err
	}
	if len(rows) == 0 {
		return sales.Product{}, fmt.Errorf("%w: %s", ErrNotFound, productID)
	}
	return rows[0], nil
}

func (c *Client) ListProducts(ctx context.Context) ([]sales.Product, error) {
	var rows []sales.Product
	if err := c.selectRows(ctx, tableProducts, map[string]string{"select": "*", "order": "id"}, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// insert posts one record. When out is non-nil the inserted row is requested
// back and decoded into it.
func (c *Client) insert(ctx context.Context, table string, record, out any) error {
	req := c.http.R().SetContext(ctx).SetBody(record)
	if out != nil {
		req.SetHeader("Prefer", "return=representation").SetResult(out)
	} else {
		req.SetHeader("Prefer", "return=minimal")
	}
	res, err := req.Post("/" + table)
	return check("insert", table, res, err)
}

// update patches the rows whose columns equal the match values.
func (c *Client) update(ctx context.Context, table string, patch any, match map[string]string) error {
	params := make(map[string]string, len(match))
	for k, v := range match {
		params[k] = "eq." + v
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetQueryParams(params).
		SetBody(patch).
		Patch("/" + table)
	return check("update", table, res, err)
}

func (c *Client) selectRows(ctx context.Context, table string, filter map[string]string, out any) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(filter).
		SetResult(out).
		Get("/" + table)
	return check("select", table, res, err)
}

func check(op, table string, res *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, table, err)
	}
	if res.IsError() {
		return fmt.Errorf("%s %s: status %d: %s", op, table, res.StatusCode(), res.String())
	}
	return nil
}
