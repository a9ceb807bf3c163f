package domain

import (
	"sort"
)

// OrderBook is the queue of open orders in arrival order.
// Arrival order drives matching; price order is only used by SortedView.
type OrderBook struct {
	orders []*Order
}

// NewOrderBook creates an empty book.
func NewOrderBook() *OrderBook {
	return &OrderBook{}
}

// Len returns the number of open orders.
func (b *OrderBook) Len() int {
	return len(b.orders)
}

// Submit appends an order at the tail.
func (b *OrderBook) Submit(o *Order) {
	b.orders = append(b.orders, o)
}

// TakeNext pops the head of the queue.
func (b *OrderBook) TakeNext() (*Order, bool) {
	if len(b.orders) == 0 {
		return nil, false
	}
	o := b.orders[0]
	b.orders[0] = nil
	b.orders = b.orders[1:]
	return o, true
}

// RemoveFirstMatch removes and returns the first order, scanning from the
// head, for which match returns true.
func (b *OrderBook) RemoveFirstMatch(match func(*Order) bool) (*Order, bool) {
	for i, o := range b.orders {
		if match(o) {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			return o, true
		}
	}
	return nil, false
}

// Mark captures the current queue so Restore can roll it back.
// Orders are never mutated in place, so sharing the pointers is safe.
func (b *OrderBook) Mark() []*Order {
	return append([]*Order(nil), b.orders...)
}

// Restore resets the queue to a previous Mark.
func (b *OrderBook) Restore(mark []*Order) {
	b.orders = append(b.orders[:0:0], mark...)
}

// Orders returns copies of the open orders in queue order.
func (b *OrderBook) Orders() []Order {
	result := make([]Order, len(b.orders))
	for i, o := range b.orders {
		result[i] = *o
	}
	return result
}

// ProductBook is the display view of one product.
type ProductBook struct {
	Bids []Order `json:"buy"`  // price descending
	Asks []Order `json:"sell"` // price ascending
}

// SortedView groups open orders by product with bids sorted by price
// descending and asks ascending. Orders with equal prices keep arrival order.
// The book itself is not modified.
func (b *OrderBook) SortedView() map[Pair]*ProductBook {
	view := make(map[Pair]*ProductBook)
	for _, o := range b.orders {
		pb, ok := view[o.Pair]
		if !ok {
			pb = &ProductBook{Bids: []Order{}, Asks: []Order{}}
			view[o.Pair] = pb
		}
		if o.Side == SideBuy {
			pb.Bids = append(pb.Bids, *o)
		} else {
			pb.Asks = append(pb.Asks, *o)
		}
	}

	for _, pb := range view {
		sort.SliceStable(pb.Bids, func(i, j int) bool {
			return pb.Bids[i].Price.GreaterThan(pb.Bids[j].Price)
		})
		sort.SliceStable(pb.Asks, func(i, j int) bool {
			return pb.Asks[i].Price.LessThan(pb.Asks[j].Price)
		})
	}
	return view
}
