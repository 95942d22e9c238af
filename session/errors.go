package session

import "errors"

var (
	ErrNotFound   = errors.New("session not found")
	ErrExists     = errors.New("session already exists")
	ErrBusy       = errors.New("session busy")
	ErrTerminated = errors.New("session terminated")
)
