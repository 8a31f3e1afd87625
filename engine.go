package spotcore

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"spotcore/protocol"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
)

// pendingRequest pairs an inbound request with the channel its correlated
// response is delivered on.
type pendingRequest struct {
	req  *protocol.Request
	resp chan *protocol.Response
}

// Engine is the single logical writer: it owns every order book and the
// ledger, and all mutations flow through one sequential loop that dequeues
// requests strictly in arrival order. That makes each multi-step operation
// (lock funds, match, settle, emit events) atomic with respect to every
// other request by construction. Reads take the same path so they never
// observe a half-settled state.
type Engine struct {
	cfg        *Config
	books      map[string]*OrderBook
	ledger     *Ledger
	publisher  EventPublisher
	store      SnapshotStore
	serializer protocol.Serializer
	requests   chan pendingRequest
	isShutdown atomic.Bool
}

// NewEngine creates an engine from a validated config. Call Bootstrap to
// load state and Run to start processing.
func NewEngine(cfg *Config, publisher EventPublisher, store SnapshotStore) *Engine {
	return &Engine{
		cfg:        cfg,
		books:      make(map[string]*OrderBook),
		ledger:     NewLedger(),
		publisher:  publisher,
		store:      store,
		serializer: &protocol.DefaultJSONSerializer{},
		requests:   make(chan pendingRequest, cfg.RequestBuffer),
	}
}

// Ledger exposes the ledger for inspection. Reading it while Run is
// processing requests can observe intermediate states; tests and tooling
// should only call it on a quiesced engine.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Bootstrap loads the latest snapshot, or cold starts with the configured
// markets and seed balances when none exists. A snapshot that fails
// validation is fatal: silently starting empty would destroy fund records.
func (e *Engine) Bootstrap() error {
	snap, err := e.store.Load()
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}

	if snap != nil {
		for _, bs := range snap.Orderbooks {
			book := NewOrderBook(bs.Market, bs.BaseAsset, bs.QuoteAsset)
			book.Restore(bs)
			e.books[bs.Market] = book
		}
		e.ledger.Restore(snap.Balances)
	}

	// Markets configured after the snapshot was taken start empty.
	for _, m := range e.cfg.Markets {
		if _, ok := e.books[m.ID]; !ok {
			e.books[m.ID] = NewOrderBook(m.ID, m.BaseAsset, m.QuoteAsset)
		}
	}

	if snap == nil {
		for userID, assets := range e.cfg.SeedBalances {
			for asset, amount := range assets {
				amt, err := decimal.NewFromString(amount)
				if err != nil {
					return fmt.Errorf("seed balance %s/%s: %w", userID, asset, err)
				}
				if err := e.ledger.Deposit(userID, asset, amt); err != nil {
					return fmt.Errorf("seed balance %s/%s: %w", userID, asset, err)
				}
			}
		}
		logger.Info("cold start", "markets", len(e.books))
	} else {
		logger.Info("state restored from snapshot", "markets", len(e.books))
	}

	return nil
}

// Run processes requests until the context is cancelled. Snapshots are taken
// on the same timeline as request processing, between requests, so a
// snapshot can never observe a torn state. On shutdown the inbound queue is
// drained and a final snapshot written.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SnapshotInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.isShutdown.Store(true)
			e.drain()
			return e.saveSnapshot()
		case pending := <-e.requests:
			resp, err := e.process(pending.req)
			if err != nil {
				// A fault that escapes process would stall or skip the single
				// writer; treat it as fatal rather than swallowing it.
				e.isShutdown.Store(true)
				return fmt.Errorf("process request %s: %w", pending.req.CorrelationID, err)
			}
			pending.resp <- resp
		case <-ticker.C:
			if err := e.saveSnapshot(); err != nil {
				logger.Error("snapshot save failed", "error", err)
			}
		}
	}
}

// drain answers every request already queued before shutdown completes.
func (e *Engine) drain() {
	for {
		select {
		case pending := <-e.requests:
			resp, err := e.process(pending.req)
			if err != nil {
				logger.Error("process failed during drain", "error", err)
				return
			}
			pending.resp <- resp
		default:
			return
		}
	}
}

// Submit enqueues a request tagged with a correlation ID and waits for the
// response published against that same ID. Context expiry maps to
// ErrEngineUnavailable, distinct from a substantive rejection: the engine
// either never received the request or has not yet answered it, so a retry
// is safe for the caller to reason about.
func (e *Engine) Submit(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if e.isShutdown.Load() {
		return nil, ErrShutdown
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	pending := pendingRequest{req: req, resp: make(chan *protocol.Response, 1)}

	select {
	case e.requests <- pending:
	case <-ctx.Done():
		return nil, ErrEngineUnavailable
	}

	// There is no server-side cancellation: a caller that stops waiting
	// leaves its response unconsumed in the buffered channel.
	select {
	case resp := <-pending.resp:
		return resp, nil
	case <-ctx.Done():
		return nil, ErrEngineUnavailable
	}
}

// process dispatches one request. It returns an error only for faults that
// must stop the engine; every rejectable condition becomes a typed response.
func (e *Engine) process(req *protocol.Request) (*protocol.Response, error) {
	switch req.Type {
	case protocol.ReqCreateOrder:
		return e.handleCreateOrder(req)
	case protocol.ReqCancelOrder:
		return e.handleCancelOrder(req)
	case protocol.ReqGetDepth:
		return e.handleGetDepth(req)
	case protocol.ReqGetOpenOrders:
		return e.handleGetOpenOrders(req)
	case protocol.ReqDeposit:
		return e.handleDeposit(req)
	default:
		return e.respond(req.CorrelationID, protocol.RespOrderRejected, &protocol.OrderRejectedPayload{
			Reason: protocol.RejectReasonInvalidRequest,
			Detail: fmt.Sprintf("unknown request type %d", req.Type),
		})
	}
}

func (e *Engine) handleCreateOrder(req *protocol.Request) (*protocol.Response, error) {
	var p protocol.CreateOrderRequest
	if err := e.serializer.Unmarshal(req.Payload, &p); err != nil {
		return e.rejectOrder(req.CorrelationID, protocol.RejectReasonInvalidRequest, err.Error())
	}

	book, ok := e.books[p.Market]
	if !ok {
		return e.rejectOrder(req.CorrelationID, protocol.RejectReasonMarketNotFound, p.Market)
	}

	side, err := sideFromWire(p.Side)
	if err != nil {
		return e.rejectOrder(req.CorrelationID, protocol.RejectReasonInvalidRequest, err.Error())
	}
	price, err := decimal.NewFromString(p.Price)
	if err != nil || !price.IsPositive() {
		return e.rejectOrder(req.CorrelationID, protocol.RejectReasonInvalidRequest, "price must be a positive decimal")
	}
	quantity, err := decimal.NewFromString(p.Quantity)
	if err != nil || !quantity.IsPositive() {
		return e.rejectOrder(req.CorrelationID, protocol.RejectReasonInvalidRequest, "quantity must be a positive decimal")
	}
	if p.UserID == "" {
		return e.rejectOrder(req.CorrelationID, protocol.RejectReasonInvalidRequest, "user id is required")
	}

	// Lock the worst case before matching: the order's full limit notional
	// for a buy, its full quantity for a sell.
	asset, amount := reservation(side, book.BaseAsset(), book.QuoteAsset(), price, quantity)
	if err := e.ledger.LockFunds(p.UserID, asset, amount); err != nil {
		return e.rejectOrder(req.CorrelationID, protocol.RejectReasonInsufficientFunds, asset)
	}

	order := &Order{
		ID:       xid.New().String(),
		Market:   p.Market,
		Side:     side,
		Price:    price,
		Quantity: quantity,
		Filled:   decimal.Zero,
		UserID:   p.UserID,
	}

	executed, fills := book.AddOrder(order)

	if err := e.ledger.Settle(book.BaseAsset(), book.QuoteAsset(), order, fills); err != nil {
		return nil, err
	}

	e.publishTrades(book, order, fills)
	e.publishDepthChanges(book, order, fills, executed)

	payload := &protocol.OrderPlacedPayload{
		OrderID:     order.ID,
		ExecutedQty: executed.String(),
		Fills:       make([]protocol.FillPayload, 0, len(fills)),
	}
	for _, fill := range fills {
		payload.Fills = append(payload.Fills, protocol.FillPayload{
			TradeID:      fill.TradeID,
			Price:        fill.Price.String(),
			Quantity:     fill.Quantity.String(),
			MakerOrderID: fill.MakerOrderID,
			MakerUserID:  fill.MakerUserID,
		})
	}

	return e.respond(req.CorrelationID, protocol.RespOrderPlaced, payload)
}

func (e *Engine) handleCancelOrder(req *protocol.Request) (*protocol.Response, error) {
	var p protocol.CancelOrderRequest
	if err := e.serializer.Unmarshal(req.Payload, &p); err != nil {
		return e.rejectCancel(req.CorrelationID, p.OrderID, protocol.RejectReasonInvalidRequest)
	}

	book, ok := e.books[p.Market]
	if !ok {
		return e.rejectCancel(req.CorrelationID, p.OrderID, protocol.RejectReasonMarketNotFound)
	}

	side, err := sideFromWire(p.Side)
	if err != nil {
		return e.rejectCancel(req.CorrelationID, p.OrderID, protocol.RejectReasonInvalidRequest)
	}

	// Another user's order ID is indistinguishable from an absent one.
	order := book.Order(p.OrderID, side)
	if order == nil || order.UserID != p.UserID {
		return e.rejectCancel(req.CorrelationID, p.OrderID, protocol.RejectReasonOrderNotFound)
	}

	if _, err := book.CancelOrder(p.OrderID, side); err != nil {
		return e.rejectCancel(req.CorrelationID, p.OrderID, protocol.RejectReasonOrderNotFound)
	}

	// Release exactly what is still reserved: remaining×price quote for a
	// bid, remaining base for an ask.
	asset, amount := reservation(side, book.BaseAsset(), book.QuoteAsset(), order.Price, order.Remaining())
	if err := e.ledger.UnlockFunds(p.UserID, asset, amount); err != nil {
		return nil, err
	}

	e.publishDepth(book, side, order.Price)

	return e.respond(req.CorrelationID, protocol.RespOrderCancelled, &protocol.OrderCancelledPayload{
		OrderID:      order.ID,
		RemainingQty: order.Remaining().String(),
	})
}

func (e *Engine) handleGetDepth(req *protocol.Request) (*protocol.Response, error) {
	var p protocol.GetDepthRequest
	if err := e.serializer.Unmarshal(req.Payload, &p); err != nil {
		return e.rejectOrder(req.CorrelationID, protocol.RejectReasonInvalidRequest, err.Error())
	}

	payload := &protocol.DepthPayload{Bids: [][2]string{}, Asks: [][2]string{}}

	// Reads always succeed; an unknown market is an empty book.
	if book, ok := e.books[p.Market]; ok {
		depth := book.Depth()
		for _, level := range depth.Bids {
			payload.Bids = append(payload.Bids, [2]string{level.Price.String(), level.Quantity.String()})
		}
		for _, level := range depth.Asks {
			payload.Asks = append(payload.Asks, [2]string{level.Price.String(), level.Quantity.String()})
		}
	}

	return e.respond(req.CorrelationID, protocol.RespDepth, payload)
}

func (e *Engine) handleGetOpenOrders(req *protocol.Request) (*protocol.Response, error) {
	var p protocol.GetOpenOrdersRequest
	if err := e.serializer.Unmarshal(req.Payload, &p); err != nil {
		return e.rejectOrder(req.CorrelationID, protocol.RejectReasonInvalidRequest, err.Error())
	}

	payload := &protocol.OpenOrdersPayload{Orders: []protocol.OpenOrderPayload{}}

	if book, ok := e.books[p.Market]; ok {
		for _, order := range book.OpenOrders(p.UserID) {
			payload.Orders = append(payload.Orders, protocol.OpenOrderPayload{
				OrderID:  order.ID,
				Market:   order.Market,
				Side:     sideToWire(order.Side),
				Price:    order.Price.String(),
				Quantity: order.Quantity.String(),
				Filled:   order.Filled.String(),
				UserID:   order.UserID,
			})
		}
	}

	return e.respond(req.CorrelationID, protocol.RespOpenOrders, payload)
}

func (e *Engine) handleDeposit(req *protocol.Request) (*protocol.Response, error) {
	var p protocol.DepositRequest
	if err := e.serializer.Unmarshal(req.Payload, &p); err != nil {
		return e.rejectOrder(req.CorrelationID, protocol.RejectReasonInvalidRequest, err.Error())
	}

	amount, err := decimal.NewFromString(p.Amount)
	if err != nil || !amount.IsPositive() {
		return e.rejectOrder(req.CorrelationID, protocol.RejectReasonInvalidRequest, "amount must be a positive decimal")
	}
	if p.UserID == "" || p.Asset == "" {
		return e.rejectOrder(req.CorrelationID, protocol.RejectReasonInvalidRequest, "user id and asset are required")
	}

	if err := e.ledger.Deposit(p.UserID, p.Asset, amount); err != nil {
		return nil, err
	}

	return e.respond(req.CorrelationID, protocol.RespDepositAccepted, &protocol.DepositAcceptedPayload{
		UserID: p.UserID,
		Asset:  p.Asset,
		Amount: amount.String(),
	})
}

// publishTrades emits one trade event per fill.
func (e *Engine) publishTrades(book *OrderBook, taker *Order, fills []*Fill) {
	now := time.Now().UnixMilli()
	for _, fill := range fills {
		e.publisher.PublishTrade(&TradeEvent{
			Market:      book.Market(),
			TradeID:     fill.TradeID,
			Price:       fill.Price.String(),
			Quantity:    fill.Quantity.String(),
			MakerUserID: fill.MakerUserID,
			TakerSide:   taker.Side,
			Timestamp:   now,
		})
	}
}

// publishDepthChanges emits one depth event per price level the order
// touched: each distinct maker level consumed, plus the taker's own level
// when a remainder rested.
func (e *Engine) publishDepthChanges(book *OrderBook, taker *Order, fills []*Fill, executed decimal.Decimal) {
	makerSide := taker.Side.Opposite()
	seen := make(map[string]struct{}, len(fills))
	for _, fill := range fills {
		key := fill.Price.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		e.publishDepth(book, makerSide, fill.Price)
	}

	if executed.LessThan(taker.Quantity) {
		e.publishDepth(book, taker.Side, taker.Price)
	}
}

// publishDepth emits the new aggregate at one price level; "0" when the
// level emptied.
func (e *Engine) publishDepth(book *OrderBook, side Side, price decimal.Decimal) {
	e.publisher.PublishDepth(&DepthEvent{
		Market:    book.Market(),
		Side:      side,
		Price:     price.String(),
		Quantity:  book.LevelQuantity(side, price).String(),
		Timestamp: time.Now().UnixMilli(),
	})
}

// saveSnapshot serializes all books and the ledger and hands them to the
// store. Runs between requests on the engine timeline, so the state is
// consistent by construction.
func (e *Engine) saveSnapshot() error {
	return e.store.Save(e.snapshot())
}

// snapshot builds the full engine state, markets sorted for deterministic
// output.
func (e *Engine) snapshot() *EngineSnapshot {
	markets := make([]string, 0, len(e.books))
	for market := range e.books {
		markets = append(markets, market)
	}
	sort.Strings(markets)

	books := make([]*OrderBookSnapshot, 0, len(markets))
	for _, market := range markets {
		books = append(books, e.books[market].Snapshot())
	}

	return &EngineSnapshot{
		Orderbooks: books,
		Balances:   e.ledger.Snapshot(),
	}
}

func (e *Engine) respond(correlationID string, t protocol.ResponseType, payload any) (*protocol.Response, error) {
	bytes, err := e.serializer.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return &protocol.Response{CorrelationID: correlationID, Type: t, Payload: bytes}, nil
}

func (e *Engine) rejectOrder(correlationID string, reason protocol.RejectReason, detail string) (*protocol.Response, error) {
	return e.respond(correlationID, protocol.RespOrderRejected, &protocol.OrderRejectedPayload{
		Reason: reason,
		Detail: detail,
	})
}

func (e *Engine) rejectCancel(correlationID, orderID string, reason protocol.RejectReason) (*protocol.Response, error) {
	return e.respond(correlationID, protocol.RespCancelRejected, &protocol.CancelRejectedPayload{
		OrderID: orderID,
		Reason:  reason,
	})
}

func sideFromWire(s protocol.Side) (Side, error) {
	switch s {
	case protocol.SideBuy:
		return Buy, nil
	case protocol.SideSell:
		return Sell, nil
	default:
		return 0, fmt.Errorf("%w: side %q", ErrInvalidParam, s)
	}
}

func sideToWire(s Side) protocol.Side {
	if s == Buy {
		return protocol.SideBuy
	}
	return protocol.SideSell
}
