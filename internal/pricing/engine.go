package pricing

import (
	"sort"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// CartLine is one desired item and how many units the shopper wants.
type CartLine struct {
	ItemName string `json:"itemName"`
	Quantity int    `json:"quantity"`
}

// StoreID identifies a physical store by chain and chain-specific store id.
type StoreID struct {
	Chain   string `json:"chain"`
	StoreID string `json:"storeId"`
}

// Less orders store identifiers by chain, then store id.
func (s StoreID) Less(other StoreID) bool {
	if s.Chain != other.Chain {
		return s.Chain < other.Chain
	}
	return s.StoreID < other.StoreID
}

// String renders the identifier as chain/storeId.
func (s StoreID) String() string {
	return s.Chain + "/" + s.StoreID
}

// PriceEntry is one observed unit price of one item at one store.
type PriceEntry struct {
	Store     StoreID `json:"store"`
	ItemName  string  `json:"itemName"`
	UnitPrice Money   `json:"unitPrice"`
}

// StoreTotal aggregates what a single store can supply for a cart.
type StoreTotal struct {
	Store              StoreID
	TotalPrice         Money
	AvailableItemCount int
	MissingItemNames   []string
}

// CheapestCartResult is the outcome of comparing a cart across stores.
type CheapestCartResult struct {
	BestStore      StoreID
	TotalPrice     Money
	WorstPrice     Money
	SavingsAmount  Money
	SavingsPercent float64
	PerStoreTotals []StoreTotal
}

// BreakdownLine is the per-line cost of a cart at one store.
type BreakdownLine struct {
	ItemName  string
	Quantity  int
	UnitPrice Money
	LineTotal Money
}

// ComputeCheapestCart finds the store with the lowest total for the cart. The
// boolean is false when no store prices any cart item.
//
// A store's total only covers the lines it can supply, so a store missing
// expensive items can rank first. Callers must check MissingItemNames.
func ComputeCheapestCart(cart []CartLine, prices []PriceEntry) (CheapestCartResult, bool) {
	catalog, order := groupByStore(prices)

	totals := make([]StoreTotal, 0, len(order))
	for _, store := range order {
		total := storeTotal(cart, store, catalog[store])
		if total.AvailableItemCount == 0 {
			continue
		}
		totals = append(totals, total)
	}
	if len(totals) == 0 {
		return CheapestCartResult{}, false
	}

	sort.SliceStable(totals, func(i, j int) bool {
		if totals[i].TotalPrice != totals[j].TotalPrice {
			return totals[i].TotalPrice < totals[j].TotalPrice
		}
		return totals[i].Store.Less(totals[j].Store)
	})

	best := totals[0]
	worst := totals[len(totals)-1].TotalPrice
	savings := worst - best.TotalPrice
	return CheapestCartResult{
		BestStore:      best.Store,
		TotalPrice:     best.TotalPrice,
		WorstPrice:     worst,
		SavingsAmount:  savings,
		SavingsPercent: SavingsPercent(savings, worst),
		PerStoreTotals: totals,
	}, true
}

// BreakdownForStore returns one line per cart line, in cart order. Lines the
// store does not carry are kept with a zero unit price.
func BreakdownForStore(cart []CartLine, store StoreID, prices []PriceEntry) []BreakdownLine {
	known := make(map[string]Money)
	for _, p := range prices {
		if p.Store == store {
			known[p.ItemName] = p.UnitPrice
		}
	}
	lines := make([]BreakdownLine, 0, len(cart))
	for _, line := range cart {
		unit := known[line.ItemName]
		lines = append(lines, BreakdownLine{
			ItemName:  line.ItemName,
			Quantity:  line.Quantity,
			UnitPrice: unit,
			LineTotal: unit * Money(line.Quantity),
		})
	}
	return lines
}

// SavingsPercent expresses savings as a percentage of worst. Zero when worst is not positive.
func SavingsPercent(savings, worst Money) float64 {
	if worst <= 0 {
		return 0
	}
	return float64(savings) / float64(worst) * 100
}

// TopN returns at most n leading store totals. n <= 0 returns all of them.
func TopN(result CheapestCartResult, n int) []StoreTotal {
	if n <= 0 || n >= len(result.PerStoreTotals) {
		return result.PerStoreTotals
	}
	return result.PerStoreTotals[:n]
}

// IsComplete reports whether the store carries every line of a cart of the given size.
func IsComplete(total StoreTotal, cartSize int) bool {
	return len(total.MissingItemNames) == 0 && total.AvailableItemCount == cartSize
}

// NormalizeCart merges lines naming the same item, keeping first-seen order.
func NormalizeCart(cart []CartLine) []CartLine {
	index := make(map[string]int, len(cart))
	out := make([]CartLine, 0, len(cart))
	for _, line := range cart {
		if i, ok := index[line.ItemName]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[line.ItemName] = len(out)
		out = append(out, line)
	}
	return out
}

// ItemNames lists the distinct item names of a cart in order.
func ItemNames(cart []CartLine) []string {
	seen := make(map[string]struct{}, len(cart))
	names := make([]string, 0, len(cart))
	for _, line := range cart {
		if _, ok := seen[line.ItemName]; ok {
			continue
		}
		seen[line.ItemName] = struct{}{}
		names = append(names, line.ItemName)
	}
	return names
}

// groupByStore builds store -> item -> price, last write wins. order lists
// stores by first appearance.
func groupByStore(prices []PriceEntry) (map[StoreID]map[string]Money, []StoreID) {
	catalog := make(map[StoreID]map[string]Money)
	order := make([]StoreID, 0)
	for _, p := range prices {
		items, ok := catalog[p.Store]
		if !ok {
			items = make(map[string]Money)
			catalog[p.Store] = items
			order = append(order, p.Store)
		}
		items[p.ItemName] = p.UnitPrice
	}
	return catalog, order
}

func storeTotal(cart []CartLine, store StoreID, items map[string]Money) StoreTotal {
	total := StoreTotal{Store: store}
	missing := make(map[string]struct{})
	for _, line := range cart {
		unit, ok := items[line.ItemName]
		if !ok {
			missing[line.ItemName] = struct{}{}
			continue
		}
		total.AvailableItemCount++
		total.TotalPrice += unit * Money(line.Quantity)
	}
	total.MissingItemNames = make([]string, 0, len(missing))
	for name := range missing {
		total.MissingItemNames = append(total.MissingItemNames, name)
	}
	sort.Strings(total.MissingItemNames)
	return total
}
