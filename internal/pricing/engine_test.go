package pricing

import (
	"math"
	"reflect"
	"testing"
)

var (
	storeA = StoreID{Chain: "shufersal", StoreID: "001"}
	storeB = StoreID{Chain: "victory", StoreID: "017"}
)

func TestComputeCheapestCartPicksLowestTotal(t *testing.T) {
	cart := []CartLine{{ItemName: "milk", Quantity: 2}, {ItemName: "bread", Quantity: 1}}
	prices := []PriceEntry{
		{Store: storeA, ItemName: "milk", UnitPrice: 500},
		{Store: storeA, ItemName: "bread", UnitPrice: 400},
		{Store: storeB, ItemName: "milk", UnitPrice: 450},
		{Store: storeB, ItemName: "bread", UnitPrice: 450},
	}

	result, ok := ComputeCheapestCart(cart, prices)
	if !ok {
		t.Fatal("expected a result")
	}
	if result.BestStore != storeB {
		t.Fatalf("expected best store %v, got %v", storeB, result.BestStore)
	}
	if result.TotalPrice != 1350 || result.WorstPrice != 1400 || result.SavingsAmount != 50 {
		t.Fatalf("unexpected totals: %+v", result)
	}
	if math.Abs(result.SavingsPercent-3.5714) > 0.001 {
		t.Fatalf("expected savings percent ~3.57, got %v", result.SavingsPercent)
	}
	if len(result.PerStoreTotals) != 2 || result.PerStoreTotals[0].Store != storeB {
		t.Fatalf("unexpected ordering: %+v", result.PerStoreTotals)
	}
}

func TestComputeCheapestCartEmptyWhenNoStoreMatches(t *testing.T) {
	cart := []CartLine{{ItemName: "eggs", Quantity: 1}}
	prices := []PriceEntry{{Store: storeA, ItemName: "milk", UnitPrice: 500}}

	if _, ok := ComputeCheapestCart(cart, prices); ok {
		t.Fatal("expected empty result")
	}
	if _, ok := ComputeCheapestCart(cart, nil); ok {
		t.Fatal("expected empty result for empty catalog")
	}
}

func TestComputeCheapestCartKeepsStoreMissingItems(t *testing.T) {
	cart := []CartLine{{ItemName: "milk", Quantity: 1}, {ItemName: "rare_item", Quantity: 1}}
	prices := []PriceEntry{
		{Store: storeA, ItemName: "milk", UnitPrice: 300},
		{Store: storeB, ItemName: "milk", UnitPrice: 350},
		{Store: storeB, ItemName: "rare_item", UnitPrice: 1000},
	}

	result, ok := ComputeCheapestCart(cart, prices)
	if !ok {
		t.Fatal("expected a result")
	}
	if result.BestStore != storeA || result.TotalPrice != 300 {
		t.Fatalf("expected store A at 300, got %v at %d", result.BestStore, result.TotalPrice)
	}
	best := result.PerStoreTotals[0]
	if !reflect.DeepEqual(best.MissingItemNames, []string{"rare_item"}) {
		t.Fatalf("unexpected missing items: %v", best.MissingItemNames)
	}
	if best.AvailableItemCount != 1 {
		t.Fatalf("expected 1 available item, got %d", best.AvailableItemCount)
	}
	if IsComplete(best, len(cart)) {
		t.Fatal("store A should not be complete")
	}
	if !IsComplete(result.PerStoreTotals[1], len(cart)) {
		t.Fatal("store B should be complete")
	}
}

func TestComputeCheapestCartLastPriceWins(t *testing.T) {
	cart := []CartLine{{ItemName: "milk", Quantity: 1}}
	prices := []PriceEntry{
		{Store: storeA, ItemName: "milk", UnitPrice: 500},
		{Store: storeA, ItemName: "milk", UnitPrice: 400},
	}

	result, ok := ComputeCheapestCart(cart, prices)
	if !ok {
		t.Fatal("expected a result")
	}
	if result.TotalPrice != 400 {
		t.Fatalf("expected 400, got %d", result.TotalPrice)
	}
}

func TestComputeCheapestCartSingleStore(t *testing.T) {
	cart := []CartLine{{ItemName: "milk", Quantity: 3}}
	prices := []PriceEntry{{Store: storeA, ItemName: "milk", UnitPrice: 590}}

	result, ok := ComputeCheapestCart(cart, prices)
	if !ok {
		t.Fatal("expected a result")
	}
	if result.BestStore != storeA || result.WorstPrice != result.TotalPrice || result.SavingsAmount != 0 {
		t.Fatalf("unexpected single store result: %+v", result)
	}
	if result.SavingsPercent != 0 {
		t.Fatalf("expected 0%% savings, got %v", result.SavingsPercent)
	}
}

func TestComputeCheapestCartTieBreaksByStoreID(t *testing.T) {
	cart := []CartLine{{ItemName: "milk", Quantity: 1}}
	a2 := StoreID{Chain: "shufersal", StoreID: "002"}
	prices := []PriceEntry{
		{Store: storeB, ItemName: "milk", UnitPrice: 500},
		{Store: a2, ItemName: "milk", UnitPrice: 500},
		{Store: storeA, ItemName: "milk", UnitPrice: 500},
	}

	result, ok := ComputeCheapestCart(cart, prices)
	if !ok {
		t.Fatal("expected a result")
	}
	got := []StoreID{result.PerStoreTotals[0].Store, result.PerStoreTotals[1].Store, result.PerStoreTotals[2].Store}
	want := []StoreID{storeA, a2, storeB}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
}

func TestComputeCheapestCartFreeItems(t *testing.T) {
	cart := []CartLine{{ItemName: "sample", Quantity: 2}}
	prices := []PriceEntry{{Store: storeA, ItemName: "sample", UnitPrice: 0}}

	result, ok := ComputeCheapestCart(cart, prices)
	if !ok {
		t.Fatal("free items still make a store comparable")
	}
	if result.SavingsPercent != 0 {
		t.Fatalf("expected 0 savings percent when worst price is zero, got %v", result.SavingsPercent)
	}
}

func TestComputeCheapestCartDoesNotMutateInput(t *testing.T) {
	cart := []CartLine{{ItemName: "milk", Quantity: 1}}
	prices := []PriceEntry{
		{Store: storeB, ItemName: "milk", UnitPrice: 300},
		{Store: storeA, ItemName: "milk", UnitPrice: 500},
	}
	snapshot := append([]PriceEntry(nil), prices...)

	ComputeCheapestCart(cart, prices)
	if !reflect.DeepEqual(prices, snapshot) {
		t.Fatalf("prices mutated: %+v", prices)
	}
}

func TestBreakdownForStore(t *testing.T) {
	cart := []CartLine{{ItemName: "milk", Quantity: 2}, {ItemName: "rare_item", Quantity: 1}}
	prices := []PriceEntry{
		{Store: storeA, ItemName: "milk", UnitPrice: 500},
		{Store: storeB, ItemName: "rare_item", UnitPrice: 1000},
		{Store: storeA, ItemName: "milk", UnitPrice: 450},
	}

	lines := BreakdownForStore(cart, storeA, prices)
	want := []BreakdownLine{
		{ItemName: "milk", Quantity: 2, UnitPrice: 450, LineTotal: 900},
		{ItemName: "rare_item", Quantity: 1, UnitPrice: 0, LineTotal: 0},
	}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("unexpected breakdown: %+v", lines)
	}
}

func TestTopN(t *testing.T) {
	result := CheapestCartResult{PerStoreTotals: make([]StoreTotal, 7)}
	if got := len(TopN(result, 5)); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	if got := len(TopN(result, 0)); got != 7 {
		t.Fatalf("expected all 7, got %d", got)
	}
	if got := len(TopN(result, 10)); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestNormalizeCart(t *testing.T) {
	cart := []CartLine{{ItemName: "milk", Quantity: 1}, {ItemName: "bread", Quantity: 1}, {ItemName: "milk", Quantity: 2}}
	got := NormalizeCart(cart)
	want := []CartLine{{ItemName: "milk", Quantity: 3}, {ItemName: "bread", Quantity: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected normalised cart: %+v", got)
	}
	if cart[0].Quantity != 1 {
		t.Fatal("input cart mutated")
	}
	if names := ItemNames(cart); !reflect.DeepEqual(names, []string{"milk", "bread"}) {
		t.Fatalf("unexpected item names: %v", names)
	}
}
