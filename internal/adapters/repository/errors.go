package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrLoad    = errors.New("load roster document")
	ErrPersist = errors.New("persist roster document")
	ErrLocked  = errors.New("roster document is locked by another writer")
)
