package extension

import "errors"

// Sentinel errors for the extension pipeline.
var (
	ErrUnknownPoint     = errors.New("unknown extension point")
	ErrEmptyName        = errors.New("extension name is empty")
	ErrNilExtension     = errors.New("extension is nil")
	ErrUnknownExtension = errors.New("extension not in catalog")
)
