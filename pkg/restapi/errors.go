package restapi

import "errors"

var (
	// ErrNoBaseURL is returned by NewClient when Config.BaseURL is empty.
	ErrNoBaseURL = errors.New("restapi: base url is not configured")

	// ErrInvalidBaseURL is returned by NewClient for a base url that is not absolute http(s).
	ErrInvalidBaseURL = errors.New("restapi: invalid base url")

	// ErrEmptyID is returned by MarkRead and Delete for an empty notification id.
	ErrEmptyID = errors.New("restapi: notification id is empty")

	// ErrPermanentFailure wraps responses that will not succeed on retry (4xx).
	ErrPermanentFailure = errors.New("restapi: permanent failure")

	// ErrTemporaryFailure wraps network errors and 5xx responses.
	ErrTemporaryFailure = errors.New("restapi: temporary failure")

	// ErrTimeout wraps requests that exceeded Config.Timeout.
	ErrTimeout = errors.New("restapi: request timeout")

	// ErrDecode is returned when a response body is not the expected JSON.
	ErrDecode = errors.New("restapi: malformed response")
)
