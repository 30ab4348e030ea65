package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/championcart/backend/internal/catalog"
	"github.com/championcart/backend/internal/pricing"
)

type fakeStore struct {
	stores   []catalog.Store
	prices   []pricing.PriceEntry
	imported []catalog.ImportBatch
	filters  []catalog.PriceFilter
	cutoff   time.Time
}

func (f *fakeStore) ListStores(_ context.Context, city string) ([]catalog.Store, error) {
	out := []catalog.Store{}
	for _, s := range f.stores {
		if s.City == city {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPrices(_ context.Context, filter catalog.PriceFilter) ([]pricing.PriceEntry, error) {
	f.filters = append(f.filters, filter)
	if filter.Items == nil {
		return f.prices, nil
	}
	wanted := map[string]struct{}{}
	for _, item := range filter.Items {
		wanted[item] = struct{}{}
	}
	out := []pricing.PriceEntry{}
	for _, p := range f.prices {
		if _, ok := wanted[p.ItemName]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) Import(_ context.Context, batch catalog.ImportBatch) error {
	f.imported = append(f.imported, batch)
	return nil
}

func (f *fakeStore) DeletePricesOlderThan(_ context.Context, _ string, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, nil
}

var (
	shufersal = pricing.StoreID{Chain: "shufersal", StoreID: "001"}
	victory   = pricing.StoreID{Chain: "victory", StoreID: "017"}
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		stores: []catalog.Store{
			{ID: shufersal, Name: "Shufersal Deal Carmel", City: "haifa"},
			{ID: victory, Name: "Victory Hadar", City: "haifa"},
		},
		prices: []pricing.PriceEntry{
			{Store: shufersal, ItemName: "milk", UnitPrice: 590},
			{Store: victory, ItemName: "milk", UnitPrice: 550},
			{Store: victory, ItemName: "bread", UnitPrice: 890},
		},
	}
}

func TestCatalogHandlers(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: store, Now: func() time.Time { return now }})
	require.NoError(t, err)
	handler := catalog.NewHandler(catalog.HandlerConfig{Service: svc})

	t.Run("stores", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Stores(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stores?city=Haifa", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data []catalog.Store `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 2)
	})

	t.Run("stores require city", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Stores(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stores", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("prices filtered by item", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Prices(rec, httptest.NewRequest(http.MethodGet, "/api/v1/prices?city=haifa&item=milk&item=+", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "2", rec.Header().Get("X-Total-Count"))
		var resp struct {
			Data []catalog.PriceView `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 2)
		require.Equal(t, "5.90", resp.Data[0].PriceLabel)
		require.Equal(t, []string{"milk"}, store.filters[len(store.filters)-1].Items)
	})

	t.Run("import", func(t *testing.T) {
		body := `{"city":"Haifa","stores":[{"chain":"rami-levy","storeId":"9","name":"Rami Levy Check Post"}],
			"prices":[{"chain":"rami-levy","storeId":"9","itemName":"milk","price":"4.90"}]}`
		rec := httptest.NewRecorder()
		handler.Import(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/prices", strings.NewReader(body)))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.Len(t, store.imported, 1)
		batch := store.imported[0]
		require.Equal(t, "haifa", batch.City)
		require.Equal(t, now, batch.ObservedAt)
		require.Equal(t, pricing.Money(490), batch.Prices[0].UnitPrice)
	})

	t.Run("import rejects malformed price", func(t *testing.T) {
		for _, price := range []string{"-4", "+-4", "4.-0", "4.+5"} {
			body := `{"city":"haifa","prices":[{"chain":"rami-levy","storeId":"9","itemName":"milk","price":"` + price + `"}]}`
			rec := httptest.NewRecorder()
			handler.Import(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/prices", strings.NewReader(body)))
			require.Equal(t, http.StatusBadRequest, rec.Code, price)
		}
		require.Len(t, store.imported, 1)
	})

	t.Run("import rejects blank names", func(t *testing.T) {
		body := `{"city":"haifa","prices":[{"chain":"rami-levy","storeId":"9","itemName":"   ","price":"4"}]}`
		rec := httptest.NewRecorder()
		handler.Import(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/prices", strings.NewReader(body)))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.Contains(t, rec.Body.String(), "prices[0].itemName")
	})

	t.Run("import validates body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Import(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/prices", strings.NewReader(`{"city":"haifa","prices":[]}`)))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestServicePricesUsesCache(t *testing.T) {
	store := newFakeStore()
	cache, _ := catalog.NewCacheForTest(t)
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: store, Cache: cache})
	require.NoError(t, err)
	ctx := context.Background()

	first, err := svc.Prices(ctx, "haifa", []string{"milk", "bread"})
	require.NoError(t, err)
	second, err := svc.Prices(ctx, "HAIFA", []string{"bread", "milk"})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, store.filters, 1, "second lookup should be served from cache")

	_, err = svc.Import(ctx, catalog.ImportBatch{City: "haifa", Prices: []pricing.PriceEntry{{Store: victory, ItemName: "eggs", UnitPrice: 1290}}})
	require.NoError(t, err)
	_, err = svc.Prices(ctx, "haifa", []string{"milk", "bread"})
	require.NoError(t, err)
	require.Len(t, store.filters, 2, "import should invalidate the city cache")
}

func TestServicePrune(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: store, Now: func() time.Time { return now }})
	require.NoError(t, err)

	deleted, err := svc.Prune(context.Background(), "haifa", 7*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(3), deleted)
	require.Equal(t, now.Add(-7*24*time.Hour), store.cutoff)

	deleted, err = svc.Prune(context.Background(), "haifa", 0)
	require.NoError(t, err)
	require.Zero(t, deleted)
}
