package catalog

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/championcart/backend/internal/common"
	"github.com/championcart/backend/internal/pricing"
)

// Handler exposes catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// PriceView is the public shape of a price entry.
type PriceView struct {
	Chain      string `json:"chain"`
	StoreID    string `json:"storeId"`
	ItemName   string `json:"itemName"`
	UnitPrice  int64  `json:"unitPrice"`
	PriceLabel string `json:"price"`
}

// ImportRequest is the body of POST /api/v1/admin/prices.
type ImportRequest struct {
	City       string       `json:"city" validate:"notblank"`
	ObservedAt *time.Time   `json:"observedAt,omitempty"`
	Stores     []StoreInput `json:"stores" validate:"dive"`
	Prices     []PriceInput `json:"prices" validate:"required,min=1,dive"`
}

// StoreInput describes a store in an import request.
type StoreInput struct {
	Chain   string `json:"chain" validate:"notblank"`
	StoreID string `json:"storeId" validate:"notblank"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// PriceInput is a decimal price of one item at one store.
type PriceInput struct {
	Chain    string `json:"chain" validate:"notblank"`
	StoreID  string `json:"storeId" validate:"notblank"`
	ItemName string `json:"itemName" validate:"notblank"`
	Price    string `json:"price" validate:"required"`
}

// Stores handles GET /api/v1/stores?city=.
func (h *Handler) Stores(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	stores, err := h.service.Stores(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, stores)
}

// Prices handles GET /api/v1/prices?city=&item=milk&item=bread.
func (h *Handler) Prices(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	query := r.URL.Query()
	var items []string
	for _, item := range query["item"] {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	prices, err := h.service.Prices(r.Context(), query.Get("city"), items)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	views := make([]PriceView, 0, len(prices))
	for _, p := range prices {
		views = append(views, PriceView{
			Chain:      p.Store.Chain,
			StoreID:    p.Store.StoreID,
			ItemName:   p.ItemName,
			UnitPrice:  p.UnitPrice,
			PriceLabel: pricing.FormatMoney(p.UnitPrice),
		})
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(views)))
	common.Data(w, http.StatusOK, views)
}

// Import handles POST /api/v1/admin/prices.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	var req ImportRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.WriteError(w, err)
		return
	}
	batch, err := req.Batch()
	if err != nil {
		common.WriteError(w, err)
		return
	}
	result, err := h.service.Import(r.Context(), batch)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, result)
}

// Batch converts the request into an ImportBatch, parsing decimal prices.
func (req ImportRequest) Batch() (ImportBatch, error) {
	batch := ImportBatch{
		City:   req.City,
		Stores: make([]Store, 0, len(req.Stores)),
		Prices: make([]pricing.PriceEntry, 0, len(req.Prices)),
	}
	if req.ObservedAt != nil {
		batch.ObservedAt = req.ObservedAt.UTC()
	}
	for _, s := range req.Stores {
		batch.Stores = append(batch.Stores, Store{
			ID:      pricing.StoreID{Chain: s.Chain, StoreID: s.StoreID},
			Name:    s.Name,
			City:    req.City,
			Address: s.Address,
		})
	}
	for i, p := range req.Prices {
		amount, err := pricing.ParseMoney(p.Price)
		if err != nil {
			return ImportBatch{}, common.BadRequest("prices["+strconv.Itoa(i)+"].price", "price must be a non-negative decimal with at most two fraction digits", err)
		}
		batch.Prices = append(batch.Prices, pricing.PriceEntry{
			Store:     pricing.StoreID{Chain: p.Chain, StoreID: p.StoreID},
			ItemName:  strings.TrimSpace(p.ItemName),
			UnitPrice: amount,
		})
	}
	return batch, nil
}
