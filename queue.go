package spotcore

import (
	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"
)

// bookLevel aggregates all resting orders at one price. Orders hang off an
// intrusive FIFO list so that time priority within the level is the
// insertion order, and open tracks the total unfilled quantity for depth
// reporting without re-scanning the list.
type bookLevel struct {
	price decimal.Decimal
	open  decimal.Decimal
	head  *Order
	tail  *Order
	count int64
}

// queue is one side of an order book. Price levels live in a skip list keyed
// by price (best price at the front), so matching can walk the book in
// priority order directly; an unsorted scan would violate both priority
// correctness and performance.
type queue struct {
	side        Side
	totalOrders int64
	depthList   *skiplist.SkipList
	orders      map[string]*Order
}

// newBidQueue creates the buy side: prices sorted descending, highest first.
func newBidQueue() *queue {
	return &queue{
		side: Buy,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)
			return d2.Cmp(d1)
		})),
		orders: make(map[string]*Order),
	}
}

// newAskQueue creates the sell side: prices sorted ascending, lowest first.
func newAskQueue() *queue {
	return &queue{
		side: Sell,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			d1, _ := lhs.(decimal.Decimal)
			d2, _ := rhs.(decimal.Decimal)
			return d1.Cmp(d2)
		})),
		orders: make(map[string]*Order),
	}
}

// order finds a resting order by its ID.
func (q *queue) order(id string) *Order {
	return q.orders[id]
}

// insertOrder appends an order to the FIFO of its price level, creating the
// level if needed. The level aggregate grows by the order's open quantity.
func (q *queue) insertOrder(order *Order) {
	el := q.depthList.Get(order.Price)
	if el != nil {
		level, _ := el.Value.(*bookLevel)
		order.prev = level.tail
		order.next = nil
		if level.tail != nil {
			level.tail.next = order
		}
		level.tail = order
		if level.head == nil {
			level.head = order
		}
		level.open = level.open.Add(order.Remaining())
		level.count++
	} else {
		level := &bookLevel{
			price: order.Price,
			open:  order.Remaining(),
			head:  order,
			tail:  order,
			count: 1,
		}
		order.next = nil
		order.prev = nil
		q.depthList.Set(order.Price, level)
	}

	q.orders[order.ID] = order
	q.totalOrders++
}

// removeOrder unlinks a resting order from its level and drops the level
// when it empties.
func (q *queue) removeOrder(order *Order) {
	el := q.depthList.Get(order.Price)
	if el == nil {
		return
	}
	level, _ := el.Value.(*bookLevel)

	if _, ok := q.orders[order.ID]; !ok {
		return
	}

	if order.prev != nil {
		order.prev.next = order.next
	} else {
		level.head = order.next
	}
	if order.next != nil {
		order.next.prev = order.prev
	} else {
		level.tail = order.prev
	}
	order.next = nil
	order.prev = nil

	level.open = level.open.Sub(order.Remaining())
	level.count--
	delete(q.orders, order.ID)
	q.totalOrders--

	if level.count == 0 {
		q.depthList.RemoveElement(el)
	}
}

// fillOrder consumes qty from a resting order. The level aggregate shrinks
// by the same amount, and an order reaching Filled == Quantity is removed in
// the same operation, so the book never holds a fully filled order.
func (q *queue) fillOrder(order *Order, qty decimal.Decimal) {
	el := q.depthList.Get(order.Price)
	if el == nil {
		return
	}
	level, _ := el.Value.(*bookLevel)

	order.Filled = order.Filled.Add(qty)
	level.open = level.open.Sub(qty)

	if order.Remaining().IsZero() {
		if order.prev != nil {
			order.prev.next = order.next
		} else {
			level.head = order.next
		}
		if order.next != nil {
			order.next.prev = order.prev
		} else {
			level.tail = order.prev
		}
		order.next = nil
		order.prev = nil

		level.count--
		delete(q.orders, order.ID)
		q.totalOrders--

		if level.count == 0 {
			q.depthList.RemoveElement(el)
		}
	}
}

// peekHead returns the highest-priority resting order (best price, earliest
// sequence) without removing it.
func (q *queue) peekHead() *Order {
	el := q.depthList.Front()
	if el == nil {
		return nil
	}
	level, _ := el.Value.(*bookLevel)
	return level.head
}

// levelQuantity returns the open aggregate at a price, zero if the level is
// absent.
func (q *queue) levelQuantity(price decimal.Decimal) decimal.Decimal {
	el := q.depthList.Get(price)
	if el == nil {
		return decimal.Zero
	}
	level, _ := el.Value.(*bookLevel)
	return level.open
}

// depth returns every non-empty price level, best price first.
func (q *queue) depth() []PriceLevel {
	result := make([]PriceLevel, 0, q.depthList.Len())
	for el := q.depthList.Front(); el != nil; el = el.Next() {
		level, _ := el.Value.(*bookLevel)
		result = append(result, PriceLevel{Price: level.price, Quantity: level.open})
	}
	return result
}

// openOrders returns the user's resting orders in priority order. Linear in
// book size, which is the contract.
func (q *queue) openOrders(userID string) []*Order {
	var result []*Order
	for el := q.depthList.Front(); el != nil; el = el.Next() {
		level, _ := el.Value.(*bookLevel)
		for order := level.head; order != nil; order = order.next {
			if order.UserID == userID {
				result = append(result, order)
			}
		}
	}
	return result
}

// orderCount returns the total number of resting orders on this side.
func (q *queue) orderCount() int64 {
	return q.totalOrders
}

// depthCount returns the number of non-empty price levels on this side.
func (q *queue) depthCount() int64 {
	return int64(q.depthList.Len())
}

// toSnapshot serializes the side in priority order so a restore that
// re-inserts sequentially reproduces both price and time priority.
func (q *queue) toSnapshot() []Order {
	snapshots := make([]Order, 0, q.totalOrders)
	for el := q.depthList.Front(); el != nil; el = el.Next() {
		level, _ := el.Value.(*bookLevel)
		for order := level.head; order != nil; order = order.next {
			snapshots = append(snapshots, Order{
				ID:       order.ID,
				Market:   order.Market,
				Side:     order.Side,
				Price:    order.Price,
				Quantity: order.Quantity,
				Filled:   order.Filled,
				UserID:   order.UserID,
				Sequence: order.Sequence,
			})
		}
	}
	return snapshots
}
