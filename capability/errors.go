package capability

import "errors"

// Sentinel errors for extraction and the registry.
var (
	ErrEmptyName         = errors.New("capability name is empty")
	ErrNoFactory         = errors.New("capability has no factory")
	ErrUnknownCapability = errors.New("capability not in catalog")
	ErrTruncated         = errors.New("argument payload is truncated")
	ErrMalformed         = errors.New("argument payload is malformed")
)
