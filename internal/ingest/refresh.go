package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/championcart/backend/internal/catalog"
	"github.com/championcart/backend/internal/lock"
	"github.com/championcart/backend/internal/obs"
	"github.com/championcart/backend/internal/pricing"
)

// ErrRefreshInProgress is returned when another worker is refreshing the city.
var ErrRefreshInProgress = errors.New("ingest: refresh already in progress")

// Fetcher downloads the remote snapshot of a city.
type Fetcher interface {
	Fetch(ctx context.Context, city string) (Snapshot, error)
}

// Importer persists converted batches and prunes stale prices.
type Importer interface {
	Import(ctx context.Context, batch catalog.ImportBatch) (catalog.ImportResult, error)
	Prune(ctx context.Context, city string, retention time.Duration) (int64, error)
}

// Locker runs fn while holding a named lock, failing fast when it is taken.
type Locker interface {
	TryWithLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error
}

// Report summarises one refresh.
type Report struct {
	City     string
	Stores   int
	Imported int
	Rejected int
	Pruned   int64
}

// Refresher pulls a city's catalog from the remote API into the local catalog.
type Refresher struct {
	Fetcher   Fetcher
	Catalog   Importer
	Locker    Locker
	LockTTL   time.Duration
	Retention time.Duration
	Now       func() time.Time
}

// Refresh fetches, converts and imports the catalog of city. Only one refresh
// per city runs at a time across workers.
func (r *Refresher) Refresh(ctx context.Context, city string) (Report, error) {
	city = strings.ToLower(strings.TrimSpace(city))
	if city == "" {
		return Report{}, errors.New("ingest: city is required")
	}
	ctx, span := otel.Tracer("ingest.Refresher").Start(ctx, "Refresher.Refresh")
	defer span.End()
	span.SetAttributes(attribute.String("catalog.city", city))

	logger := zerolog.Ctx(ctx).With().Str("city", city).Logger()
	ctx = logger.WithContext(ctx)

	var report Report
	run := func(ctx context.Context) error {
		var err error
		report, err = r.refresh(ctx, city)
		return err
	}
	var err error
	if r.Locker == nil {
		err = run(ctx)
	} else {
		err = r.Locker.TryWithLock(ctx, "catalog:refresh:"+city, r.lockTTL(), run)
		if errors.Is(err, lock.ErrLocked) {
			err = ErrRefreshInProgress
		}
	}

	switch {
	case errors.Is(err, ErrRefreshInProgress):
		obs.ObserveCatalogRefresh(city, "skipped")
		logger.Info().Msg("catalog refresh already running elsewhere")
	case err != nil:
		obs.ObserveCatalogRefresh(city, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("catalog refresh failed")
	default:
		obs.ObserveCatalogRefresh(city, "ok")
		span.SetAttributes(
			attribute.Int("catalog.imported", report.Imported),
			attribute.Int("catalog.rejected", report.Rejected),
		)
		logger.Info().
			Int("stores", report.Stores).
			Int("imported", report.Imported).
			Int("rejected", report.Rejected).
			Int64("pruned", report.Pruned).
			Msg("catalog refreshed")
	}
	return report, err
}

func (r *Refresher) refresh(ctx context.Context, city string) (Report, error) {
	snap, err := r.Fetcher.Fetch(ctx, city)
	if err != nil {
		return Report{}, err
	}
	batch, rejected := Convert(ctx, city, snap)
	batch.ObservedAt = r.now()
	report := Report{City: city, Stores: len(batch.Stores), Rejected: rejected}
	if len(batch.Prices) == 0 {
		return report, nil
	}
	if _, err := r.Catalog.Import(ctx, batch); err != nil {
		return report, fmt.Errorf("import %s: %w", city, err)
	}
	report.Imported = len(batch.Prices)

	pruned, err := r.Catalog.Prune(ctx, city, r.Retention)
	if err != nil {
		// The import already landed; stale rows are retried on the next run.
		zerolog.Ctx(ctx).Warn().Err(err).Msg("prune stale prices")
	}
	report.Pruned = pruned
	return report, nil
}

// Convert turns a remote snapshot into an import batch. Rows with missing
// identifiers or prices that are negative or not decimal are dropped, logged
// and counted.
func Convert(ctx context.Context, city string, snap Snapshot) (catalog.ImportBatch, int) {
	batch := catalog.ImportBatch{
		City:   city,
		Stores: make([]catalog.Store, 0, len(snap.Stores)),
		Prices: make([]pricing.PriceEntry, 0, len(snap.Prices)),
	}
	for _, s := range snap.Stores {
		if strings.TrimSpace(s.Chain) == "" || strings.TrimSpace(s.StoreID) == "" {
			obs.ObserveRejectedPrice("incomplete_store")
			continue
		}
		batch.Stores = append(batch.Stores, catalog.Store{
			ID:      pricing.StoreID{Chain: s.Chain, StoreID: s.StoreID},
			Name:    s.Name,
			City:    city,
			Address: s.Address,
		})
	}

	rejected := 0
	logger := zerolog.Ctx(ctx)
	for _, p := range snap.Prices {
		item := strings.TrimSpace(p.ItemName)
		if item == "" || p.Chain == "" || p.StoreID == "" {
			rejected++
			obs.ObserveRejectedPrice("incomplete")
			continue
		}
		amount, err := pricing.ParseMoney(p.Price)
		if err != nil {
			rejected++
			obs.ObserveRejectedPrice("malformed_price")
			logger.Debug().Err(err).Str("chain", p.Chain).Str("store_id", p.StoreID).Str("item", item).Str("price", p.Price).Msg("rejected remote price")
			continue
		}
		batch.Prices = append(batch.Prices, pricing.PriceEntry{
			Store:     pricing.StoreID{Chain: p.Chain, StoreID: p.StoreID},
			ItemName:  item,
			UnitPrice: amount,
		})
	}
	if rejected > 0 {
		logger.Warn().Int("rejected", rejected).Msg("remote catalog contained invalid prices")
	}
	return batch, rejected
}

func (r *Refresher) lockTTL() time.Duration {
	if r.LockTTL <= 0 {
		return 5 * time.Minute
	}
	return r.LockTTL
}

func (r *Refresher) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}
