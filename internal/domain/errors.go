package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrAlreadyClosed    = errors.New("position already closed")
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrContestNotActive = errors.New("contest not active")
	ErrInvalidRules     = errors.New("invalid ranking rules")
	ErrLockHeld         = errors.New("lock already held")
	ErrContextDone      = errors.New("context cancelled")
)
