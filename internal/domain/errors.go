package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRateLimited       = errors.New("rate limited")
	ErrAlreadyClaimed    = errors.New("activity already claimed")
	ErrInsufficientFunds = errors.New("insufficient balance or allowance")
	ErrEmptyOrderBook    = errors.New("order book side is empty")
	ErrSlippageExceeded  = errors.New("price slippage exceeded")
	ErrLockHeld          = errors.New("lock already held")
	ErrWSDisconnect      = errors.New("websocket disconnected")
)
