package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/championcart/backend/internal/pricing"
)

// Store describes a physical store in the catalog.
type Store struct {
	ID        pricing.StoreID `json:"id"`
	Name      string          `json:"name"`
	City      string          `json:"city"`
	Address   string          `json:"address,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// PriceFilter narrows a price listing. Nil Items means every item.
type PriceFilter struct {
	City  string
	Items []string
}

// ImportBatch is a set of stores and prices observed together for one city.
type ImportBatch struct {
	City       string
	Stores     []Store
	Prices     []pricing.PriceEntry
	ObservedAt time.Time
}

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Repository persists the price catalog in PostgreSQL.
type Repository struct {
	pool DB
}

// NewRepository constructs a Repository on top of a pgx pool.
func NewRepository(pool DB) *Repository {
	return &Repository{pool: pool}
}

const listStoresSQL = `
SELECT chain, store_id, name, city, address, updated_at
FROM stores
WHERE city = $1
ORDER BY chain, store_id`

// ListStores returns the stores known in a city.
func (r *Repository) ListStores(ctx context.Context, city string) ([]Store, error) {
	rows, err := r.pool.Query(ctx, listStoresSQL, city)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	stores, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Store, error) {
		var s Store
		err := row.Scan(&s.ID.Chain, &s.ID.StoreID, &s.Name, &s.City, &s.Address, &s.UpdatedAt)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan stores: %w", err)
	}
	return stores, nil
}

// Rows are ordered by observation time so a caller applying last write wins
// sees the most recent price last.
const listPricesSQL = `
SELECT p.chain, p.store_id, p.item_name, p.unit_price
FROM store_prices p
JOIN stores s ON s.chain = p.chain AND s.store_id = p.store_id
WHERE s.city = $1
  AND ($2::text[] IS NULL OR p.item_name = ANY($2::text[]))
ORDER BY p.observed_at, p.chain, p.store_id, p.item_name`

// ListPrices returns the price entries of a city, optionally restricted to items.
func (r *Repository) ListPrices(ctx context.Context, filter PriceFilter) ([]pricing.PriceEntry, error) {
	rows, err := r.pool.Query(ctx, listPricesSQL, filter.City, filter.Items)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	prices, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.PriceEntry, error) {
		var p pricing.PriceEntry
		err := row.Scan(&p.Store.Chain, &p.Store.StoreID, &p.ItemName, &p.UnitPrice)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan prices: %w", err)
	}
	return prices, nil
}

const upsertStoreSQL = `
INSERT INTO stores (chain, store_id, name, city, address, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (chain, store_id) DO UPDATE
SET name = EXCLUDED.name, city = EXCLUDED.city, address = EXCLUDED.address, updated_at = EXCLUDED.updated_at`

// Price rows may reference stores that were not part of the batch; they are
// registered with the batch city so the foreign key holds.
const ensureStoreSQL = `
INSERT INTO stores (chain, store_id, city, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (chain, store_id) DO NOTHING`

const upsertPriceSQL = `
INSERT INTO store_prices (chain, store_id, item_name, unit_price, observed_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (chain, store_id, item_name) DO UPDATE
SET unit_price = EXCLUDED.unit_price, observed_at = EXCLUDED.observed_at
WHERE store_prices.observed_at <= EXCLUDED.observed_at`

// Import upserts a batch atomically.
func (r *Repository) Import(ctx context.Context, batch ImportBatch) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	queued := &pgx.Batch{}
	known := make(map[pricing.StoreID]struct{}, len(batch.Stores))
	for _, s := range batch.Stores {
		known[s.ID] = struct{}{}
		queued.Queue(upsertStoreSQL, s.ID.Chain, s.ID.StoreID, s.Name, batch.City, s.Address, batch.ObservedAt)
	}
	for _, p := range batch.Prices {
		if _, ok := known[p.Store]; !ok {
			known[p.Store] = struct{}{}
			queued.Queue(ensureStoreSQL, p.Store.Chain, p.Store.StoreID, batch.City, batch.ObservedAt)
		}
		queued.Queue(upsertPriceSQL, p.Store.Chain, p.Store.StoreID, p.ItemName, p.UnitPrice, batch.ObservedAt)
	}

	results := tx.SendBatch(ctx, queued)
	for i := 0; i < queued.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("import statement %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close import batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

const deleteStalePricesSQL = `
DELETE FROM store_prices p
USING stores s
WHERE s.chain = p.chain AND s.store_id = p.store_id
  AND s.city = $1
  AND p.observed_at < $2`

// DeletePricesOlderThan removes prices of a city observed before cutoff.
func (r *Repository) DeletePricesOlderThan(ctx context.Context, city string, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, deleteStalePricesSQL, city, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale prices: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
