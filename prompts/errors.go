package prompts

import "errors"

// Sentinel errors for the prompt library and versions.
var (
	ErrPromptNotFound  = errors.New("prompt not found")
	ErrVersionNotFound = errors.New("prompt version not found")
	ErrInvalidName     = errors.New("invalid prompt file name")
	ErrReadOnly        = errors.New("prompt library has no store")
)
