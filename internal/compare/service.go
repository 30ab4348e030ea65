package compare

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
	"go.opentelemetry.io/otel/metric"

	"github.com/championcart/backend/internal/common"
	"github.com/championcart/backend/internal/obs"
	"github.com/championcart/backend/internal/pricing"
)

// PriceSource resolves the catalog prices of a city for a set of items.
type PriceSource interface {
	Prices(ctx context.Context, city string, items []string) ([]pricing.PriceEntry, error)
}

// Request bounds. With prices capped at pricing.MaxAmount they keep every
// store total well inside int64.
const (
	MaxQuantity  = 10_000
	MaxCartLines = 500
)

// LineInput is one cart line of a comparison request.
type LineInput struct {
	ItemName string `json:"itemName" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1,max=10000"`
}

// PriceInput is an inline decimal price supplied by the caller.
type PriceInput struct {
	Chain    string `json:"chain" validate:"required"`
	StoreID  string `json:"storeId" validate:"required"`
	ItemName string `json:"itemName" validate:"required"`
	Price    string `json:"price" validate:"required"`
}

// Request is the body of POST /api/v1/compare. Inline prices replace the
// catalog lookup, in which case city may be omitted.
type Request struct {
	City   string       `json:"city" validate:"required_without=Prices"`
	Cart   []LineInput  `json:"cart" validate:"required,min=1,max=500,dive"`
	Prices []PriceInput `json:"prices,omitempty" validate:"omitempty,dive"`
}

// trimmed returns a copy with surrounding whitespace removed from every name,
// so blank names fail the required rules.
func (r Request) trimmed() Request {
	out := Request{City: strings.TrimSpace(r.City)}
	out.Cart = make([]LineInput, len(r.Cart))
	for i, l := range r.Cart {
		out.Cart[i] = LineInput{ItemName: strings.TrimSpace(l.ItemName), Quantity: l.Quantity}
	}
	if r.Prices != nil {
		out.Prices = make([]PriceInput, len(r.Prices))
		for i, p := range r.Prices {
			out.Prices[i] = PriceInput{
				Chain:    strings.TrimSpace(p.Chain),
				StoreID:  strings.TrimSpace(p.StoreID),
				ItemName: strings.TrimSpace(p.ItemName),
				Price:    p.Price,
			}
		}
	}
	return out
}

// BreakdownRequest is the body of POST /api/v1/compare/breakdown.
type BreakdownRequest struct {
	Request
	Chain   string `json:"chain" validate:"required"`
	StoreID string `json:"storeId" validate:"required"`
}

// Outcome of a comparison, also used as a metric label.
const (
	OutcomeFound   = "found"
	OutcomeEmpty   = "empty"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Comparison carries the engine result together with the inputs it was computed from.
type Comparison struct {
	Cart   []pricing.CartLine
	Result pricing.CheapestCartResult
	Found  bool
	At     time.Time
}

// StoreBreakdown is the per-line cost of a cart at one store.
type StoreBreakdown struct {
	Store pricing.StoreID
	Lines []pricing.BreakdownLine
	Total pricing.StoreTotal
	At    time.Time
}

var engineRuns, _ = otel.Meter("championcart/compare").Int64Counter(
	"compare.engine.runs",
	metric.WithDescription("Pricing engine invocations by outcome."),
)

// Service compares carts against the price catalog.
type Service struct {
	Prices PriceSource
	Now    func() time.Time
}

// Compare finds the cheapest store for a cart.
func (s *Service) Compare(ctx context.Context, req Request) (Comparison, error) {
	ctx, span := otel.Tracer("compare.Service").Start(ctx, "CompareService.Compare")
	defer span.End()

	outcome := OutcomeError
	stores := 0
	savings := 0.0
	defer func() {
		span.SetAttributes(
			attribute.String("compare.outcome", outcome),
			attribute.Int("compare.stores", stores),
		)
		obs.ObserveCompare(outcome, stores, savings)
	}()
	defer func() {
		if outcome == OutcomeFound || outcome == OutcomeEmpty {
			engineRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}()

	req = req.trimmed()
	if err := common.Validate(req); err != nil {
		outcome = OutcomeInvalid
		return Comparison{}, err
	}
	cart := normalize(req.Cart)
	span.SetAttributes(attribute.Int("compare.cart_size", len(cart)))

	prices, err := s.resolvePrices(ctx, req, cart)
	if err != nil {
		if common.IsAppError(err) {
			outcome = OutcomeInvalid
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return Comparison{}, err
	}

	result, found := pricing.ComputeCheapestCart(cart, prices)
	cmp := Comparison{Cart: cart, Result: result, Found: found, At: s.now()}
	if !found {
		outcome = OutcomeEmpty
		return cmp, nil
	}
	outcome = OutcomeFound
	stores = len(result.PerStoreTotals)
	savings = result.SavingsPercent
	zerolog.Ctx(ctx).Debug().
		Str("best_store", result.BestStore.String()).
		Int64("total", result.TotalPrice).
		Int("stores", stores).
		Msg("cart compared")
	return cmp, nil
}

// Breakdown returns the per-line cost of a cart at the requested store.
func (s *Service) Breakdown(ctx context.Context, req BreakdownRequest) (StoreBreakdown, error) {
	ctx, span := otel.Tracer("compare.Service").Start(ctx, "CompareService.Breakdown")
	defer span.End()

	req.Request = req.Request.trimmed()
	req.Chain = strings.TrimSpace(req.Chain)
	req.StoreID = strings.TrimSpace(req.StoreID)
	if err := common.Validate(req); err != nil {
		return StoreBreakdown{}, err
	}
	cart := normalize(req.Cart)
	store := pricing.StoreID{Chain: req.Chain, StoreID: req.StoreID}
	span.SetAttributes(
		attribute.String("compare.store", store.String()),
		attribute.Int("compare.cart_size", len(cart)),
	)

	prices, err := s.resolvePrices(ctx, req.Request, cart)
	if err != nil {
		return StoreBreakdown{}, err
	}
	lines := pricing.BreakdownForStore(cart, store, prices)
	total := pricing.StoreTotal{Store: store, MissingItemNames: []string{}}
	if result, ok := pricing.ComputeCheapestCart(cart, prices); ok {
		for _, t := range result.PerStoreTotals {
			if t.Store == store {
				total = t
				break
			}
		}
	}
	if total.AvailableItemCount == 0 {
		total.MissingItemNames = pricing.ItemNames(cart)
	}
	return StoreBreakdown{Store: store, Lines: lines, Total: total, At: s.now()}, nil
}

func (s *Service) resolvePrices(ctx context.Context, req Request, cart []pricing.CartLine) ([]pricing.PriceEntry, error) {
	if len(req.Prices) > 0 {
		return inlinePrices(req.Prices)
	}
	if s.Prices == nil {
		return nil, errors.New("compare: price source not configured")
	}
	prices, err := s.Prices.Prices(ctx, req.City, pricing.ItemNames(cart))
	if err != nil {
		return nil, fmt.Errorf("resolve prices: %w", err)
	}
	return prices, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func normalize(lines []LineInput) []pricing.CartLine {
	cart := make([]pricing.CartLine, 0, len(lines))
	for _, l := range lines {
		cart = append(cart, pricing.CartLine{ItemName: l.ItemName, Quantity: l.Quantity})
	}
	return pricing.NormalizeCart(cart)
}

func inlinePrices(in []PriceInput) ([]pricing.PriceEntry, error) {
	out := make([]pricing.PriceEntry, 0, len(in))
	for i, p := range in {
		amount, err := pricing.ParseMoney(p.Price)
		if err != nil {
			return nil, common.BadRequest(fmt.Sprintf("prices[%d].price", i), "price must be a non-negative decimal with at most two fraction digits", err)
		}
		out = append(out, pricing.PriceEntry{
			Store:     pricing.StoreID{Chain: p.Chain, StoreID: p.StoreID},
			ItemName:  p.ItemName,
			UnitPrice: amount,
		})
	}
	return out, nil
}
