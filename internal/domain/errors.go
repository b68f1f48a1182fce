package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrDuplicateSettlement  = errors.New("settlement already recorded for plan")
	ErrOpportunityExpired   = errors.New("opportunity expired")
	ErrPlanExpired          = errors.New("execution plan expired")
	ErrQuoteStale           = errors.New("loan quote stale")
	ErrProviderUnavailable  = errors.New("loan provider unavailable")
	ErrInsufficientCapacity = errors.New("insufficient provider capacity")
	ErrBreakerActive        = errors.New("circuit breaker active")
	ErrRateLimited          = errors.New("rate limited")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrSigningFailed        = errors.New("signing failed")
	ErrWSDisconnect         = errors.New("websocket disconnected")
	ErrLockHeld             = errors.New("lock already held")
)
