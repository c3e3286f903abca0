package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/catalog-crawler/internal/record"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the Postgres connection pool used for records.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresStore writes records into a table with a unique barcode column.
// Postgres treats NULLs as distinct under UNIQUE, which matches the rule that
// a null barcode never matches another.
type PostgresStore struct {
	pool  execCloser
	table string
}

// OpenPostgres connects and ensures the table exists.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("output.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewPostgresWithPool(ctx, pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresWithPool constructs a store from an existing pool and ensures
// the schema.
func NewPostgresWithPool(ctx context.Context, pool execCloser, table string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "products"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	s := &PostgresStore{pool: pool, table: table}
	if _, err := pool.Exec(ctx, s.schema()); err != nil {
		return nil, fmt.Errorf("ensure table %s: %w", table, err)
	}
	return s, nil
}

// Append inserts p; a conflicting barcode leaves the table unchanged.
func (s *PostgresStore) Append(ctx context.Context, p record.Product) (Outcome, error) {
	images, err := imagesArg(p.Images)
	if err != nil {
		return Written, err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	price_datetime,
	price,
	price_promo,
	sku_status,
	sku_barcode,
	sku_article,
	sku_name,
	sku_category,
	sku_country,
	sku_weight_min,
	sku_volume_min,
	sku_quantity_min,
	sku_link,
	sku_images
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
) ON CONFLICT (sku_barcode) DO NOTHING`, s.table)

	tag, err := s.pool.Exec(ctx, query,
		p.CapturedAt,
		p.Price,
		p.PricePromo,
		p.InStock,
		p.Barcode,
		p.Article,
		p.Name,
		p.Category,
		p.Country,
		p.WeightMin,
		p.VolumeMin,
		p.QuantityMin,
		p.Link,
		images,
	)
	if err != nil {
		return Written, fmt.Errorf("insert record %s: %w", p, err)
	}
	if tag.RowsAffected() == 0 {
		return SkippedDuplicate, nil
	}
	return Written, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) schema() string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	price_datetime TIMESTAMPTZ NOT NULL,
	price TEXT,
	price_promo TEXT,
	sku_status BOOLEAN,
	sku_barcode BIGINT UNIQUE,
	sku_article TEXT,
	sku_name TEXT,
	sku_category TEXT NOT NULL,
	sku_country TEXT,
	sku_weight_min TEXT,
	sku_volume_min TEXT,
	sku_quantity_min INTEGER,
	sku_link TEXT NOT NULL,
	sku_images JSONB
)`, s.table)
}

func imagesArg(images []string) (any, error) {
	if images == nil {
		return nil, nil
	}
	payload, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("marshal images: %w", err)
	}
	return payload, nil
}
