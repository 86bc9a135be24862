package server

import "errors"

var (
	ErrFeedClosed     = errors.New("feed is closed")
	ErrNotRunning     = errors.New("feed is not listening")
	ErrAlreadyRunning = errors.New("feed is already listening")
	ErrInvalidConfig  = errors.New("invalid feed configuration")
	ErrListen         = errors.New("feed listen failed")
)
