package service

import "errors"

// Sentinel kinds for cycle setup errors.
var (
	ErrNoStore   = errors.New("service has no roster store")
	ErrNoGateway = errors.New("service has no model gateway")
)
