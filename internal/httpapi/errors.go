package httpapi

import "errors"

var (
	// ErrStart indicates that the server failed to start.
	ErrStart = errors.New("httpapi: failed to start server")
	// ErrShutdown indicates that graceful shutdown failed.
	ErrShutdown = errors.New("httpapi: failed to shut down server gracefully")
	// ErrAlreadyRunning is returned by Run on a server that is already serving.
	ErrAlreadyRunning = errors.New("httpapi: server already running")
)
