package output

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"product-image-miner/db"
	"product-image-miner/internal/product"
)

// ErrNotFound is returned by SQLTable.Get for an unknown product id.
var ErrNotFound = errors.New("product image not found")

// SQLTable stores results in the product_images table. Rows keep the order
// they were appended in through the position column.
type SQLTable struct {
	conn db.Conn
	name string
	now  func() time.Time
}

func NewSQLTable(conn db.Conn, name string) *SQLTable {
	return &SQLTable{conn: conn, name: name, now: time.Now}
}

func (s *SQLTable) Describe() string { return s.name + ":product_images" }

func (s *SQLTable) Create(ctx context.Context) (Writer, error) {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM product_images`); err != nil {
		return nil, fmt.Errorf("%w: reset product_images: %v", ErrPersistence, err)
	}
	return &rowWriter{table: s, next: 0, ready: true}, nil
}

func (s *SQLTable) Extend(ctx context.Context) (Writer, error) {
	return &rowWriter{table: s}, nil
}

// Get returns the stored result for id.
func (s *SQLTable) Get(ctx context.Context, id product.ID) (product.FetchResult, error) {
	var row struct {
		ProductID   string `db:"product_id"`
		ImageBase64 string `db:"image_base64"`
	}
	err := s.conn.GetContext(ctx, &row, s.conn.Rebind(
		`SELECT product_id, image_base64 FROM product_images WHERE product_id = ?`,
	), string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return product.FetchResult{}, ErrNotFound
	}
	if err != nil {
		return product.FetchResult{}, err
	}
	return product.FetchResult{ID: product.ID(row.ProductID), ImageBase64: row.ImageBase64}, nil
}

// List returns every stored result in append order.
func (s *SQLTable) List(ctx context.Context) ([]product.FetchResult, error) {
	var rows []struct {
		ProductID   string `db:"product_id"`
		ImageBase64 string `db:"image_base64"`
	}
	if err := s.conn.SelectContext(ctx, &rows,
		`SELECT product_id, image_base64 FROM product_images ORDER BY position`,
	); err != nil {
		return nil, err
	}
	out := make([]product.FetchResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, product.FetchResult{ID: product.ID(r.ProductID), ImageBase64: r.ImageBase64})
	}
	return out, nil
}

type rowWriter struct {
	table  *SQLTable
	next   int64
	ready  bool
	closed bool
}

func (w *rowWriter) Append(ctx context.Context, r product.FetchResult) error {
	if w.closed {
		return fmt.Errorf("%w: %s already closed", ErrPersistence, w.table.Describe())
	}
	if !w.ready {
		var last int64
		if err := w.table.conn.GetContext(ctx, &last,
			`SELECT COALESCE(MAX(position), -1) FROM product_images`,
		); err != nil {
			return fmt.Errorf("%w: read tail of product_images: %v", ErrPersistence, err)
		}
		w.next, w.ready = last+1, true
	}

	_, err := w.table.conn.ExecContext(ctx, w.table.conn.Rebind(`
INSERT INTO product_images (product_id, position, image_base64, created_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT (product_id) DO NOTHING`),
		string(r.ID), w.next, r.ImageBase64, w.table.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%w: insert %s: %v", ErrPersistence, r.ID, err)
	}
	w.next++
	return nil
}

func (w *rowWriter) Close() error {
	w.closed = true
	return nil
}
