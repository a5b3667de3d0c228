package notifications

import "errors"

var (
	// ErrClosed is returned by Initialize after Close.
	ErrClosed = errors.New("notifications: engine is closed")

	// ErrNoMirror is returned by Restore when no mirror is configured.
	ErrNoMirror = errors.New("notifications: no mirror configured")
)
