package rate

import "errors"

// ErrRateLimited is returned when an attempt budget is exhausted.
var ErrRateLimited = errors.New("rate limited")

// ErrRedisUnavailable wraps Redis I/O failures.
var ErrRedisUnavailable = errors.New("redis unavailable")
