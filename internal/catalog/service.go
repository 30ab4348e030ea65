package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/championcart/backend/internal/common"
	"github.com/championcart/backend/internal/obs"
	"github.com/championcart/backend/internal/pricing"
)

type storeProvider interface {
	ListStores(ctx context.Context, city string) ([]Store, error)
	ListPrices(ctx context.Context, filter PriceFilter) ([]pricing.PriceEntry, error)
	Import(ctx context.Context, batch ImportBatch) error
	DeletePricesOlderThan(ctx context.Context, city string, cutoff time.Time) (int64, error)
}

// Service orchestrates catalog queries, imports, and caching.
type Service struct {
	store storeProvider
	cache *Cache
	now   func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store storeProvider
	Cache *Cache
	Now   func() time.Time
}

// ImportResult summarises an applied import batch.
type ImportResult struct {
	City       string    `json:"city"`
	Stores     int       `json:"stores"`
	Prices     int       `json:"prices"`
	ObservedAt time.Time `json:"observedAt"`
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{store: cfg.Store, cache: cfg.Cache, now: now}, nil
}

// Prices returns the price entries of a city for the given items. A nil item
// list returns every known price of the city.
func (s *Service) Prices(ctx context.Context, city string, items []string) ([]pricing.PriceEntry, error) {
	city = normalizeCity(city)
	if city == "" {
		return nil, common.BadRequest("city", "city is required", nil)
	}
	key := pricesCacheKey(city, items)
	var cached []pricing.PriceEntry
	ok, err := s.cache.Get(ctx, key, &cached)
	switch {
	case err != nil:
		obs.ObservePriceCache("error")
		zerolog.Ctx(ctx).Warn().Err(err).Str("city", city).Msg("price cache read failed")
	case ok:
		obs.ObservePriceCache("hit")
		return cached, nil
	default:
		obs.ObservePriceCache("miss")
	}

	prices, err := s.store.ListPrices(ctx, PriceFilter{City: city, Items: items})
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	if prices == nil {
		prices = []pricing.PriceEntry{}
	}
	if err := s.cache.Put(ctx, city, key, prices); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("city", city).Msg("price cache write failed")
	}
	return prices, nil
}

// Stores returns the stores of a city.
func (s *Service) Stores(ctx context.Context, city string) ([]Store, error) {
	city = normalizeCity(city)
	if city == "" {
		return nil, common.BadRequest("city", "city is required", nil)
	}
	key := storesCacheKey(city)
	var cached []Store
	if ok, err := s.cache.Get(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	stores, err := s.store.ListStores(ctx, city)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	if stores == nil {
		stores = []Store{}
	}
	_ = s.cache.Put(ctx, city, key, stores)
	return stores, nil
}

// Import validates and persists a batch, then drops the cached entries of its city.
func (s *Service) Import(ctx context.Context, batch ImportBatch) (ImportResult, error) {
	batch.City = normalizeCity(batch.City)
	if batch.City == "" {
		return ImportResult{}, common.BadRequest("city", "city is required", nil)
	}
	for i, p := range batch.Prices {
		if p.UnitPrice < 0 {
			return ImportResult{}, common.BadRequest(fmt.Sprintf("prices[%d].price", i), "price must not be negative", nil)
		}
		if strings.TrimSpace(p.ItemName) == "" || p.Store.Chain == "" || p.Store.StoreID == "" {
			return ImportResult{}, common.BadRequest(fmt.Sprintf("prices[%d]", i), "chain, storeId and itemName are required", nil)
		}
	}
	if batch.ObservedAt.IsZero() {
		batch.ObservedAt = s.now().UTC()
	}
	if err := s.store.Import(ctx, batch); err != nil {
		return ImportResult{}, fmt.Errorf("import catalog: %w", err)
	}
	if err := s.cache.InvalidateCity(ctx, batch.City); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("city", batch.City).Msg("invalidate price cache")
	}
	return ImportResult{
		City:       batch.City,
		Stores:     len(batch.Stores),
		Prices:     len(batch.Prices),
		ObservedAt: batch.ObservedAt,
	}, nil
}

// Prune deletes prices of a city older than the retention window.
func (s *Service) Prune(ctx context.Context, city string, retention time.Duration) (int64, error) {
	city = normalizeCity(city)
	if retention <= 0 {
		return 0, nil
	}
	deleted, err := s.store.DeletePricesOlderThan(ctx, city, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		_ = s.cache.InvalidateCity(ctx, city)
	}
	return deleted, nil
}

// Cities are stored lower-cased so lookups are case-insensitive.
func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
