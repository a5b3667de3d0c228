package notifications

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"
)

// Type is the notification category.
type Type string

const (
	TypeAcademic  Type = "academic"
	TypePayment   Type = "payment"
	TypeEvent     Type = "event"
	TypeGeneral   Type = "general"
	TypeEmergency Type = "emergency"
)

// ParseType maps s onto a known type. Unknown and empty values become TypeGeneral.
func ParseType(s string) Type {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeAcademic, TypePayment, TypeEvent, TypeGeneral, TypeEmergency:
		return t
	}
	return TypeGeneral
}

// Priority represents the notification priority level.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps s onto a known priority. Unknown and empty values become PriorityNormal.
func ParsePriority(s string) Priority {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p
	}
	return PriorityNormal
}

// Rank orders priorities from low (0) to urgent (3).
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 1
	}
}

// Source records where a notification came from. It is set once at conversion.
type Source string

const (
	SourceLocal     Source = "local"
	SourcePush      Source = "push"
	SourceWebSocket Source = "websocket"
	SourceAPI       Source = "api"
)

// Built-in action identifiers understood by Engine.HandleNotificationAction.
const (
	ActionTapped  = "tapped"
	ActionDismiss = "dismiss"
)

// ActionHandler runs a custom action. Errors are logged by the engine, never returned to the caller.
type ActionHandler func(ctx context.Context, n Notification, data map[string]any) error

// Action is a user-actionable follow-up on a notification.
type Action struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Kind    string        `json:"kind,omitempty"`
	URL     string        `json:"url,omitempty"`
	Screen  string        `json:"screen,omitempty"`
	Handler ActionHandler `json:"-"`
}

// Notification is the canonical record every source is converted into.
type Notification struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Body         string         `json:"body"`
	Type         Type           `json:"type"`
	Category     string         `json:"category,omitempty"`
	Priority     Priority       `json:"priority"`
	Source       Source         `json:"source"`
	Read         bool           `json:"read"`
	ReadAt       *time.Time     `json:"read_at,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	UserID       string         `json:"user_id,omitempty"`
	UserCategory string         `json:"user_category,omitempty"`
	StudentID    string         `json:"student_id,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Actions      []Action       `json:"actions,omitempty"`
}

// MarkAsRead marks the notification as read at the given time. It reports
// whether anything changed; read never reverts to unread.
func (n *Notification) MarkAsRead(at time.Time) bool {
	if n.Read {
		return false
	}
	n.Read = true
	n.ReadAt = &at
	return true
}

// Action returns the action with the given id.
func (n Notification) Action(id string) (Action, bool) {
	for _, a := range n.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}

// clone returns a copy that shares no mutable state with n.
func (n Notification) clone() Notification {
	n.Data = maps.Clone(n.Data)
	n.Actions = slices.Clone(n.Actions)
	if n.ReadAt != nil {
		at := *n.ReadAt
		n.ReadAt = &at
	}
	return n
}

// Input describes a locally originated notification.
type Input struct {
	Title        string         `json:"title"`
	Body         string         `json:"body"`
	Type         Type           `json:"type,omitempty"`
	Category     string         `json:"category,omitempty"`
	Priority     Priority       `json:"priority,omitempty"`
	UserID       string         `json:"user_id,omitempty"`
	UserCategory string         `json:"user_category,omitempty"`
	StudentID    string         `json:"student_id,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Actions      []Action       `json:"actions,omitempty"`
}
