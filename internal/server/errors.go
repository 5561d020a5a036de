package server

import "errors"

var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerNotRunning     = errors.New("server is not running")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrUnknownTransport     = errors.New("unknown transport kind")
	ErrUnknownRegistry      = errors.New("unknown registry kind")
	ErrUnknownService       = errors.New("unknown service")
)
