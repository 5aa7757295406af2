package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the Postgres source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the products table read by PostgresSource.
const Schema = `CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	slug        TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	price       NUMERIC(12,2) NOT NULL CHECK (price >= 0),
	discount    NUMERIC(5,2) NOT NULL DEFAULT 0 CHECK (discount >= 0 AND discount <= 100),
	images      TEXT[] NOT NULL DEFAULT '{}',
	in_stock    BOOLEAN NOT NULL DEFAULT TRUE,
	attributes  JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const selectProduct = `SELECT id, title, slug, category, description, price::float8, discount::float8,
	images, in_stock, attributes FROM products`

// PostgresSource reads products from the products table.
type PostgresSource struct {
	DB Querier
}

// All returns every product ordered by title.
func (s PostgresSource) All(ctx context.Context) ([]Product, error) {
	rows, err := s.DB.Query(ctx, selectProduct+` ORDER BY title, id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

// Get returns one product by id.
func (s PostgresSource) Get(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, selectProduct+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// Upsert writes p, replacing any row with the same id.
func (s PostgresSource) Upsert(ctx context.Context, p Product) error {
	attrs := p.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	images := p.Images
	if images == nil {
		images = []string{}
	}
	_, err := s.DB.Exec(ctx, `INSERT INTO products (id, title, slug, category, description, price, discount, images, in_stock, attributes, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	slug = EXCLUDED.slug,
	category = EXCLUDED.category,
	description = EXCLUDED.description,
	price = EXCLUDED.price,
	discount = EXCLUDED.discount,
	images = EXCLUDED.images,
	in_stock = EXCLUDED.in_stock,
	attributes = EXCLUDED.attributes,
	updated_at = now()`,
		p.ID, p.Title, p.Slug, p.Category, p.Description, p.Price, p.Discount, images, p.InStock, attrs)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Category, &p.Description, &p.Price, &p.Discount,
		&p.Images, &p.InStock, &p.Attributes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, err
		}
		return Product{}, fmt.Errorf("scan product: %w", err)
	}
	return withDerived(p), nil
}
