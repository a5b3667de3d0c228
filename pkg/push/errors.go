package push

import "errors"

var (
	// ErrLocalUnavailable is returned when the platform cannot present local notifications.
	ErrLocalUnavailable = errors.New("push: local notifications are not available")

	// ErrNoToken is returned by platforms that cannot register for remote push.
	ErrNoToken = errors.New("push: remote push token unavailable")

	// ErrInvalidTrigger is returned for nil or malformed schedule triggers.
	ErrInvalidTrigger = errors.New("push: invalid trigger")

	// ErrTriggerInPast is returned when a one-shot trigger resolves to a time already passed.
	ErrTriggerInPast = errors.New("push: trigger time is in the past")

	// ErrPermissionDenied is reported by platforms when the user declined notifications.
	ErrPermissionDenied = errors.New("push: notification permission denied")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("push: adapter is closed")
)
