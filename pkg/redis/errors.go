package redis

import "errors"

var (
	ErrEmptyConnectionURL           = errors.New("redis: connection url is empty")
	ErrFailedToParseRedisConnString = errors.New("redis: invalid connection url")
	ErrRedisNotReady                = errors.New("redis: server not reachable")
	ErrHealthcheckFailed            = errors.New("redis: healthcheck failed")
	// ErrLockNotHeld is logged when a lock expired before its holder
	// released it, meaning another process may have overlapped.
	ErrLockNotHeld = errors.New("redis: lock expired before release")
)
