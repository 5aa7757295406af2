package cart

import (
	"github.com/noah-isme/storefront/internal/pricing"
)

// Attributes carries product fields the cart does not interpret (title, image, slug, ...).
// They travel with the line item unchanged.
type Attributes map[string]any

// Product is the catalog-facing input to Add.
type Product struct {
	ID              string
	ProductPrice    float64
	ProductDiscount float64
	Attributes      Attributes
}

// LineItem is one product entry in the cart.
type LineItem struct {
	ID              string
	ProductPrice    float64
	ProductDiscount float64
	Quantity        int
	Attributes      Attributes
}

// UnitPrice returns the discounted per-unit price of the line.
func (li LineItem) UnitPrice() float64 {
	return pricing.UnitPrice(li.ProductPrice, li.ProductDiscount)
}

// Total returns the discounted line total.
func (li LineItem) Total() float64 {
	return pricing.LineTotal(li.ProductPrice, li.ProductDiscount, li.Quantity)
}

// State is the full cart: ordered line items plus totals derived from them.
type State struct {
	Items      []LineItem `json:"items"`
	TotalQty   int        `json:"totalQty"`
	TotalPrice float64    `json:"totalPrice"`
}

// Empty returns the initial cart state.
func Empty() State {
	return State{Items: []LineItem{}}
}

// Clone returns a deep copy: neither the items nor their attributes are shared with s.
func (s State) Clone() State {
	items := make([]LineItem, len(s.Items))
	for i, it := range s.Items {
		it.Attributes = cloneAttributes(it.Attributes)
		items[i] = it
	}
	return State{Items: items, TotalQty: s.TotalQty, TotalPrice: s.TotalPrice}
}

func cloneAttributes(a Attributes) Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[k] = cloneValue(x)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	default:
		return v
	}
}

// Find returns the index of the line item with the given id, or -1.
func (s State) Find(id string) int {
	for i, it := range s.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// Kind names a cart action.
type Kind string

const (
	KindAdd         Kind = "cart/add"
	KindRemove      Kind = "cart/remove"
	KindSetQuantity Kind = "cart/set-quantity"
	KindIncrease    Kind = "cart/increase"
	KindDecrease    Kind = "cart/decrease"
	KindClear       Kind = "cart/clear"
)

// Action describes one cart mutation. Which fields are read depends on Kind.
type Action struct {
	Kind     Kind
	Product  Product
	ID       string
	Quantity int
}

// Add adds qty units of p. A qty below 1 adds a single unit.
func Add(p Product, qty int) Action {
	return Action{Kind: KindAdd, Product: p, ID: p.ID, Quantity: qty}
}

// Remove deletes the line item for id.
func Remove(id string) Action { return Action{Kind: KindRemove, ID: id} }

// SetQuantity sets the quantity of the line item for id. A quantity of zero or less removes it.
func SetQuantity(id string, qty int) Action {
	return Action{Kind: KindSetQuantity, ID: id, Quantity: qty}
}

// Increase adds one unit to the line item for id.
func Increase(id string) Action { return Action{Kind: KindIncrease, ID: id} }

// Decrease removes one unit from the line item for id, dropping the line at zero.
func Decrease(id string) Action { return Action{Kind: KindDecrease, ID: id} }

// Clear empties the cart.
func Clear() Action { return Action{Kind: KindClear} }

// Reduce computes the state that follows s after a. Unknown kinds and operations on absent
// ids return s unchanged.
func Reduce(s State, a Action) State {
	next, _ := Apply(s, a)
	return next
}

// Apply is Reduce that also reports whether the action changed anything. When it did not,
// the returned state is s itself.
func Apply(s State, a Action) (State, bool) {
	switch a.Kind {
	case KindAdd:
		return add(s, a.Product, a.Quantity)
	case KindRemove:
		idx := s.Find(a.ID)
		if idx < 0 {
			return s, false
		}
		return withItems(removeAt(s.Items, idx)), true
	case KindSetQuantity:
		idx := s.Find(a.ID)
		if idx < 0 {
			return s, false
		}
		if a.Quantity <= 0 {
			return withItems(removeAt(s.Items, idx)), true
		}
		if s.Items[idx].Quantity == a.Quantity {
			return s, false
		}
		return withItems(setQty(s.Items, idx, a.Quantity)), true
	case KindIncrease:
		idx := s.Find(a.ID)
		if idx < 0 {
			return s, false
		}
		return withItems(setQty(s.Items, idx, s.Items[idx].Quantity+1)), true
	case KindDecrease:
		idx := s.Find(a.ID)
		if idx < 0 {
			return s, false
		}
		qty := s.Items[idx].Quantity - 1
		if qty <= 0 {
			return withItems(removeAt(s.Items, idx)), true
		}
		return withItems(setQty(s.Items, idx, qty)), true
	case KindClear:
		if len(s.Items) == 0 && s.TotalQty == 0 && s.TotalPrice == 0 {
			return Empty(), false
		}
		return Empty(), true
	default:
		return s, false
	}
}

func add(s State, p Product, qty int) (State, bool) {
	if p.ID == "" {
		return s, false
	}
	if qty < 1 {
		qty = 1
	}
	if idx := s.Find(p.ID); idx >= 0 {
		return withItems(setQty(s.Items, idx, s.Items[idx].Quantity+qty)), true
	}
	items := make([]LineItem, len(s.Items), len(s.Items)+1)
	copy(items, s.Items)
	items = append(items, LineItem{
		ID:              p.ID,
		ProductPrice:    p.ProductPrice,
		ProductDiscount: p.ProductDiscount,
		Quantity:        qty,
		Attributes:      jsonAttributes(p.Attributes),
	})
	return withItems(items), true
}

func setQty(items []LineItem, idx, qty int) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	out[idx].Quantity = qty
	return out
}

func removeAt(items []LineItem, idx int) []LineItem {
	out := make([]LineItem, 0, len(items)-1)
	out = append(out, items[:idx]...)
	return append(out, items[idx+1:]...)
}

// withItems builds a state from items, recomputing both totals from scratch.
func withItems(items []LineItem) State {
	if items == nil {
		items = []LineItem{}
	}
	qty, price := Totals(items)
	return State{Items: items, TotalQty: qty, TotalPrice: price}
}

// Totals sums quantities and discounted line totals.
func Totals(items []LineItem) (int, float64) {
	var (
		qty   int
		price float64
	)
	for _, it := range items {
		qty += it.Quantity
		price += it.Total()
	}
	return qty, price
}

// PricingItems converts the cart lines into pricing engine input.
func (s State) PricingItems() []pricing.Item {
	out := make([]pricing.Item, 0, len(s.Items))
	for _, it := range s.Items {
		out = append(out, pricing.Item{Qty: it.Quantity, UnitPrice: it.ProductPrice, DiscountPct: it.ProductDiscount})
	}
	return out
}
