package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrAlreadyRunning      = errors.New("bot already running")
	ErrBotStopped          = errors.New("bot stopped")
	ErrInvalidConfig       = errors.New("invalid bot configuration")
	ErrInvalidTargetGain   = errors.New("invalid target gain")
	ErrInvalidStopLoss     = errors.New("invalid stop loss")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAmountOverflow      = errors.New("amount overflows int64")
	ErrInvalidQuoteRequest = errors.New("invalid quote request")
	ErrNoRoute             = errors.New("no route found")
	ErrSwapFailed          = errors.New("swap failed")
	ErrSwapVerification    = errors.New("swap verification failed")
	ErrTimeout             = errors.New("timed out")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrSigningFailed       = errors.New("signing failed")
	ErrLockHeld            = errors.New("lock already held")
)
