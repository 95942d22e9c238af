package memory

import "errors"

// Sentinel errors for store and vector operations.
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrLoadFailed  = errors.New("load failed")
	ErrSaveFailed  = errors.New("save failed")
	ErrEmptyText   = errors.New("memory text is empty")
	ErrNotFound    = errors.New("snippet not found")
)
