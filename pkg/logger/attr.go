package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Panic records a recovered panic value under the key "panic".
func Panic(v any) slog.Attr {
	if v == nil {
		return slog.Attr{}
	}
	return slog.Any("panic", v)
}

// UserID records the user identifier under the key "user_id".
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// UserCategory records the user category (student, parent, teacher...).
func UserCategory(category string) slog.Attr {
	if category == "" {
		return slog.Attr{}
	}
	return slog.String("user_category", category)
}

// NotificationID records the notification identifier.
func NotificationID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("notification_id", id)
}

// ActionID records the identifier of a notification action.
func ActionID(id string) slog.Attr {
	return slog.String("action_id", id)
}

// Source records which transport a notification came from.
func Source(source string) slog.Attr {
	return slog.String("source", source)
}

// Room records a realtime room identifier.
func Room(room string) slog.Attr {
	return slog.String("room", room)
}

// Event records the wire event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Attempt records a reconnect or retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// ListenerID records a listener registration id.
func ListenerID(id uint64) slog.Attr {
	return slog.Uint64("listener_id", id)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Count records a number of affected items.
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// StatusCode records an HTTP status code.
func StatusCode(code int) slog.Attr {
	return slog.Int("status_code", code)
}

// Method records an HTTP method.
func Method(method string) slog.Attr {
	return slog.String("method", method)
}

// Path records a request path.
func Path(path string) slog.Attr {
	return slog.String("path", path)
}
