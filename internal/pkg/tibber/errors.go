package tibber

import "errors"

var (
	// ErrAuthentication means the access token was rejected. Never retried;
	// callers must surface it as a configuration problem.
	ErrAuthentication = errors.New("tibber: invalid access token or unauthorized access")
	// ErrRateLimit means the API throttled us. Callers keep their cached
	// data and try again on the next natural tick.
	ErrRateLimit = errors.New("tibber: rate limit exceeded")
	// ErrCommunication covers network and timeout failures.
	ErrCommunication = errors.New("tibber: communication error")
)
