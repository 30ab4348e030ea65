package compare

import (
	"net/http"
	"time"

	"github.com/championcart/backend/internal/common"
	"github.com/championcart/backend/internal/pricing"
)

// Handler exposes the cart comparison endpoints.
type Handler struct {
	service     *Service
	defaultTopN int
}

// NewHandler constructs a Handler. defaultTopN bounds perStoreTotals when the
// caller passes no limit; zero lists every store.
func NewHandler(service *Service, defaultTopN int) *Handler {
	if defaultTopN < 0 {
		defaultTopN = 0
	}
	return &Handler{service: service, defaultTopN: defaultTopN}
}

// Amount renders money both as minor units and as a decimal label.
type Amount struct {
	Minor int64  `json:"minor"`
	Label string `json:"label"`
}

func amountOf(m pricing.Money) Amount {
	return Amount{Minor: m, Label: pricing.FormatMoney(m)}
}

// StoreTotalView is the public shape of a per-store total.
type StoreTotalView struct {
	Store              pricing.StoreID `json:"store"`
	Total              Amount          `json:"total"`
	AvailableItemCount int             `json:"availableItemCount"`
	MissingItemNames   []string        `json:"missingItemNames"`
	Complete           bool            `json:"complete"`
}

// ResultView is the public shape of a comparison.
type ResultView struct {
	BestStore      pricing.StoreID  `json:"bestStore"`
	Total          Amount           `json:"total"`
	Worst          Amount           `json:"worst"`
	Savings        Amount           `json:"savings"`
	SavingsPercent float64          `json:"savingsPercent"`
	StoreCount     int              `json:"storeCount"`
	PerStoreTotals []StoreTotalView `json:"perStoreTotals"`
	ComparedAt     time.Time        `json:"comparedAt"`
}

// BreakdownLineView is one priced cart line.
type BreakdownLineView struct {
	ItemName  string `json:"itemName"`
	Quantity  int    `json:"quantity"`
	UnitPrice Amount `json:"unitPrice"`
	LineTotal Amount `json:"lineTotal"`
	Available bool   `json:"available"`
}

// BreakdownView is the public shape of a store breakdown.
type BreakdownView struct {
	Store      pricing.StoreID     `json:"store"`
	Lines      []BreakdownLineView `json:"lines"`
	Total      StoreTotalView      `json:"total"`
	ComparedAt time.Time           `json:"comparedAt"`
}

// Compare handles POST /api/v1/compare?limit=N.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "compare service not configured", nil)
		return
	}
	limit, err := common.QueryInt(r, "limit", h.defaultTopN)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if limit < 0 {
		common.WriteError(w, common.BadRequest("limit", "limit must not be negative", nil))
		return
	}
	var req Request
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	cmp, err := h.service.Compare(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if !cmp.Found {
		common.JSON(w, http.StatusOK, common.Envelope{Empty: true})
		return
	}
	common.Data(w, http.StatusOK, resultView(cmp, limit))
}

// Breakdown handles POST /api/v1/compare/breakdown.
func (h *Handler) Breakdown(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "compare service not configured", nil)
		return
	}
	var req BreakdownRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	bd, err := h.service.Breakdown(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	missing := make(map[string]struct{}, len(bd.Total.MissingItemNames))
	for _, name := range bd.Total.MissingItemNames {
		missing[name] = struct{}{}
	}
	lines := make([]BreakdownLineView, 0, len(bd.Lines))
	for _, l := range bd.Lines {
		_, gone := missing[l.ItemName]
		lines = append(lines, BreakdownLineView{
			ItemName:  l.ItemName,
			Quantity:  l.Quantity,
			UnitPrice: amountOf(l.UnitPrice),
			LineTotal: amountOf(l.LineTotal),
			Available: !gone,
		})
	}
	common.Data(w, http.StatusOK, BreakdownView{
		Store:      bd.Store,
		Lines:      lines,
		Total:      storeTotalView(bd.Total, len(bd.Lines)),
		ComparedAt: bd.At,
	})
}

func resultView(cmp Comparison, limit int) ResultView {
	res := cmp.Result
	top := pricing.TopN(res, limit)
	totals := make([]StoreTotalView, 0, len(top))
	for _, t := range top {
		totals = append(totals, storeTotalView(t, len(cmp.Cart)))
	}
	return ResultView{
		BestStore:      res.BestStore,
		Total:          amountOf(res.TotalPrice),
		Worst:          amountOf(res.WorstPrice),
		Savings:        amountOf(res.SavingsAmount),
		SavingsPercent: res.SavingsPercent,
		StoreCount:     len(res.PerStoreTotals),
		PerStoreTotals: totals,
		ComparedAt:     cmp.At,
	}
}

func storeTotalView(t pricing.StoreTotal, cartSize int) StoreTotalView {
	missing := t.MissingItemNames
	if missing == nil {
		missing = []string{}
	}
	return StoreTotalView{
		Store:              t.Store,
		Total:              amountOf(t.TotalPrice),
		AvailableItemCount: t.AvailableItemCount,
		MissingItemNames:   missing,
		Complete:           pricing.IsComplete(t, cartSize),
	}
}
