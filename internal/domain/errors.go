package domain

import "errors"

var (
	ErrNotReady     = errors.New("connection not ready")
	ErrTransport    = errors.New("transport failure")
	ErrDecode       = errors.New("malformed response")
	ErrNotFound     = errors.New("not found")
	ErrSubscription = errors.New("subscription establishment failed")
	ErrConfig       = errors.New("missing required configuration")
	ErrFeedBusy     = errors.New("feed request already in flight")
	ErrClosed       = errors.New("closed")
	ErrInvalidBet   = errors.New("invalid bet parameters")
	ErrLockHeld     = errors.New("lock already held")
)
