package spotcore

import (
	"context"
	"fmt"

	"spotcore/protocol"
)

// Typed wrappers over Submit for in-process callers. Each builds the
// request envelope, waits for the correlated response, and maps rejection
// reasons onto the package's sentinel errors.

// CreateOrder places a limit order and returns the placement result.
// Rejections surface as ErrMarketNotFound, ErrInsufficientFunds or
// ErrInvalidParam.
func (e *Engine) CreateOrder(ctx context.Context, cmd *protocol.CreateOrderRequest) (*protocol.OrderPlacedPayload, error) {
	resp, err := e.submitPayload(ctx, protocol.ReqCreateOrder, cmd.Market, cmd)
	if err != nil {
		return nil, err
	}

	switch resp.Type {
	case protocol.RespOrderPlaced:
		var payload protocol.OrderPlacedPayload
		if err := e.serializer.Unmarshal(resp.Payload, &payload); err != nil {
			return nil, err
		}
		return &payload, nil
	case protocol.RespOrderRejected:
		var payload protocol.OrderRejectedPayload
		if err := e.serializer.Unmarshal(resp.Payload, &payload); err != nil {
			return nil, err
		}
		return nil, rejectReasonError(payload.Reason)
	default:
		return nil, fmt.Errorf("unexpected response type %d", resp.Type)
	}
}

// CancelOrder cancels a resting order. An unknown order ID surfaces as
// ErrOrderNotFound; the cancel was a no-op.
func (e *Engine) CancelOrder(ctx context.Context, cmd *protocol.CancelOrderRequest) (*protocol.OrderCancelledPayload, error) {
	resp, err := e.submitPayload(ctx, protocol.ReqCancelOrder, cmd.Market, cmd)
	if err != nil {
		return nil, err
	}

	switch resp.Type {
	case protocol.RespOrderCancelled:
		var payload protocol.OrderCancelledPayload
		if err := e.serializer.Unmarshal(resp.Payload, &payload); err != nil {
			return nil, err
		}
		return &payload, nil
	case protocol.RespCancelRejected:
		var payload protocol.CancelRejectedPayload
		if err := e.serializer.Unmarshal(resp.Payload, &payload); err != nil {
			return nil, err
		}
		return nil, rejectReasonError(payload.Reason)
	default:
		return nil, fmt.Errorf("unexpected response type %d", resp.Type)
	}
}

// GetDepth returns all non-empty price levels of a market; an unknown
// market yields empty depth.
func (e *Engine) GetDepth(ctx context.Context, market string) (*protocol.DepthPayload, error) {
	resp, err := e.submitPayload(ctx, protocol.ReqGetDepth, market, &protocol.GetDepthRequest{Market: market})
	if err != nil {
		return nil, err
	}

	var payload protocol.DepthPayload
	if err := e.serializer.Unmarshal(resp.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// GetOpenOrders returns the user's resting orders; empty for unknown
// markets or users.
func (e *Engine) GetOpenOrders(ctx context.Context, market, userID string) (*protocol.OpenOrdersPayload, error) {
	resp, err := e.submitPayload(ctx, protocol.ReqGetOpenOrders, market, &protocol.GetOpenOrdersRequest{Market: market, UserID: userID})
	if err != nil {
		return nil, err
	}

	var payload protocol.OpenOrdersPayload
	if err := e.serializer.Unmarshal(resp.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Deposit credits a user's available balance.
func (e *Engine) Deposit(ctx context.Context, cmd *protocol.DepositRequest) error {
	resp, err := e.submitPayload(ctx, protocol.ReqDeposit, "", cmd)
	if err != nil {
		return err
	}
	if resp.Type != protocol.RespDepositAccepted {
		return ErrInvalidParam
	}
	return nil
}

func (e *Engine) submitPayload(ctx context.Context, t protocol.RequestType, market string, payload any) (*protocol.Response, error) {
	bytes, err := e.serializer.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return e.Submit(ctx, &protocol.Request{
		Type:     t,
		MarketID: market,
		Payload:  bytes,
	})
}

func rejectReasonError(reason protocol.RejectReason) error {
	switch reason {
	case protocol.RejectReasonMarketNotFound:
		return ErrMarketNotFound
	case protocol.RejectReasonInsufficientFunds:
		return ErrInsufficientFunds
	case protocol.RejectReasonOrderNotFound:
		return ErrOrderNotFound
	default:
		return ErrInvalidParam
	}
}
