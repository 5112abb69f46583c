package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Rejection kinds for game transactions. Handlers wrap these with context via
// fmt.Errorf("...: %w", err) so callers can branch with errors.Is and react
// (re-purchase, re-auth, refresh) instead of treating every failure the same.
var (
	// Input validation, rejected before any state is touched.
	ErrInvalidTier     = errors.New("unknown ball tier")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrUnknownSlot     = errors.New("slot index out of range")

	// Invariant protection: state is consistent, the action is not allowed.
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrInsufficientBalls   = errors.New("insufficient balls")
	ErrNoExchangeRate      = errors.New("no exchange rate set for currency")
	ErrSlotInactive        = errors.New("slot has no active creature")
	ErrSlotOccupied        = errors.New("slot already holds an active creature")
	ErrSlotExhausted       = errors.New("slot attempts exhausted")
	ErrSlotPending         = errors.New("slot has a pending reposition")
	ErrUnknownRequest      = errors.New("unknown randomness request")
	ErrAlreadyResolved     = errors.New("randomness request already resolved")
	ErrUnknownPull         = errors.New("unknown reward pull")
	ErrRewardCapacity      = errors.New("reward inventory at capacity")
	ErrNonceMismatch       = errors.New("nonce mismatch")
	ErrPaused              = errors.New("game is paused")
	ErrUnauthorized        = errors.New("sender not authorized for this operation")
)
