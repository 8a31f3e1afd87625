package spotcore

import "errors"

var (
	ErrMarketNotFound    = errors.New("market not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOrderNotFound     = errors.New("order not found")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrSnapshotCorrupt   = errors.New("snapshot is corrupt")
	ErrShutdown          = errors.New("engine is shutting down")
	ErrInvalidParam      = errors.New("the param is invalid")
)
