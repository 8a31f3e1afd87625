package protocol

// RequestType identifies the payload type for fast routing (uint8 for
// compact serialization).
type RequestType uint8

const (
	ReqUnknown       RequestType = 0
	ReqCreateOrder   RequestType = 1
	ReqCancelOrder   RequestType = 2
	ReqGetDepth      RequestType = 3
	ReqGetOpenOrders RequestType = 4
	ReqDeposit       RequestType = 5
)

// ResponseType identifies the payload carried by a Response.
type ResponseType uint8

const (
	RespUnknown         ResponseType = 0
	RespOrderPlaced     ResponseType = 1
	RespOrderRejected   ResponseType = 2
	RespOrderCancelled  ResponseType = 3
	RespCancelRejected  ResponseType = 4
	RespDepth           ResponseType = 5
	RespOpenOrders      ResponseType = 6
	RespDepositAccepted ResponseType = 7
)

// Side is the wire representation of an order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// RejectReason is a machine-readable reason carried by rejection responses.
type RejectReason string

const (
	RejectReasonMarketNotFound    RejectReason = "market_not_found"
	RejectReasonInsufficientFunds RejectReason = "insufficient_funds"
	RejectReasonOrderNotFound     RejectReason = "order_not_found"
	RejectReasonInvalidRequest    RejectReason = "invalid_request"
)

// Request is the carrier for requests entering the engine. The API tier
// tags each request with a unique correlation ID and awaits the response
// published against that same ID; the engine never sees two requests under
// one ID. Payload stays serialized until the engine dispatches on Type.
type Request struct {
	CorrelationID string      `json:"correlation_id"`
	Type          RequestType `json:"type"`
	MarketID      string      `json:"market_id"`
	Payload       []byte      `json:"payload"`
}

// Response is the reply correlated to one Request.
type Response struct {
	CorrelationID string       `json:"correlation_id"`
	Type          ResponseType `json:"type"`
	Payload       []byte       `json:"payload"`
}

// CreateOrderRequest is the payload for placing a new limit order.
// Prices and quantities are strings to prevent precision loss in JSON.
type CreateOrderRequest struct {
	Market   string `json:"market"`
	Side     Side   `json:"side"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	UserID   string `json:"user_id"`
}

// CancelOrderRequest is the payload for cancelling a resting order.
type CancelOrderRequest struct {
	Market  string `json:"market"`
	OrderID string `json:"order_id"`
	Side    Side   `json:"side"`
	UserID  string `json:"user_id"`
}

// GetDepthRequest is the payload for querying aggregated depth.
type GetDepthRequest struct {
	Market string `json:"market"`
}

// GetOpenOrdersRequest is the payload for listing a user's resting orders.
type GetOpenOrdersRequest struct {
	Market string `json:"market"`
	UserID string `json:"user_id"`
}

// DepositRequest is the payload for crediting a user's available balance
// (on-ramp from an external custody system).
type DepositRequest struct {
	UserID string `json:"user_id"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// FillPayload is one executed match inside an OrderPlacedPayload.
type FillPayload struct {
	TradeID      uint64 `json:"trade_id"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	MakerOrderID string `json:"maker_order_id"`
	MakerUserID  string `json:"maker_user_id"`
}

// OrderPlacedPayload answers a CreateOrderRequest.
type OrderPlacedPayload struct {
	OrderID     string        `json:"order_id"`
	ExecutedQty string        `json:"executed_qty"`
	Fills       []FillPayload `json:"fills"`
}

// OrderRejectedPayload answers a CreateOrderRequest that was refused. The
// book and ledger are untouched.
type OrderRejectedPayload struct {
	Reason RejectReason `json:"reason"`
	Detail string       `json:"detail,omitempty"`
}

// OrderCancelledPayload answers a successful CancelOrderRequest.
type OrderCancelledPayload struct {
	OrderID      string `json:"order_id"`
	RemainingQty string `json:"remaining_qty"`
}

// CancelRejectedPayload answers a CancelOrderRequest that matched no resting
// order; the cancel was a no-op.
type CancelRejectedPayload struct {
	OrderID string       `json:"order_id"`
	Reason  RejectReason `json:"reason"`
}

// DepthPayload answers a GetDepthRequest: [price, aggregate] pairs per side.
type DepthPayload struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

// OpenOrderPayload is one resting order inside an OpenOrdersPayload.
type OpenOrderPayload struct {
	OrderID  string `json:"order_id"`
	Market   string `json:"market"`
	Side     Side   `json:"side"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Filled   string `json:"filled"`
	UserID   string `json:"user_id"`
}

// OpenOrdersPayload answers a GetOpenOrdersRequest.
type OpenOrdersPayload struct {
	Orders []OpenOrderPayload `json:"orders"`
}

// DepositAcceptedPayload answers a DepositRequest.
type DepositAcceptedPayload struct {
	UserID string `json:"user_id"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}
