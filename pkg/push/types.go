package push

import (
	"context"
	"time"
)

// Level is the platform-native importance of a notification.
type Level string

const (
	LevelLow     Level = "low"
	LevelDefault Level = "default"
	LevelHigh    Level = "high"
	LevelMax     Level = "max"
)

// DefaultActionID is the action identifier platforms report when the user
// taps the notification body rather than a button.
const DefaultActionID = "default"

// ActionButton is a button rendered on a presented notification.
type ActionButton struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Content is what the adapter asks the platform to present.
type Content struct {
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data,omitempty"`
	Level    Level          `json:"level,omitempty"`
	Sound    bool           `json:"sound,omitempty"`
	Badge    *int           `json:"badge,omitempty"`
	Category string         `json:"category,omitempty"`
	Buttons  []ActionButton `json:"buttons,omitempty"`
}

// Message is a notification delivered by the platform, either a remote push
// or a presented local notification, while the app is in the foreground.
type Message struct {
	Identifier string         `json:"identifier"`
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	Data       map[string]any `json:"data,omitempty"`
	Level      Level          `json:"level,omitempty"`
	Date       time.Time      `json:"date"`
	Remote     bool           `json:"remote"`
}

// Response describes the user interacting with a presented notification.
type Response struct {
	Message  Message `json:"message"`
	ActionID string  `json:"action_id"`
	UserText string  `json:"user_text,omitempty"`
}

// Capabilities reports what Initialize managed to set up. PushAvailable and
// LocalAvailable are independent and can diverge.
type Capabilities struct {
	PermissionGranted bool   `json:"permission_granted"`
	PushAvailable     bool   `json:"push_available"`
	LocalAvailable    bool   `json:"local_available"`
	Token             string `json:"token,omitempty"`
}

// Platform is the device notification primitive the adapter drives.
type Platform interface {
	// RequestPermissions asks the user for notification permission.
	RequestPermissions(ctx context.Context) (bool, error)

	// RegisterToken obtains a remote push token.
	RegisterToken(ctx context.Context) (string, error)

	// LocalSupported reports whether local notifications can be presented.
	LocalSupported() bool

	// Present shows content immediately under the given identifier.
	Present(ctx context.Context, id string, content Content) error

	// SetBadge updates the application badge.
	SetBadge(ctx context.Context, count int) error

	// Listen starts delivering inbound platform events. The returned func
	// stops delivery.
	Listen(received func(Message), responded func(Response)) (stop func(), err error)
}
