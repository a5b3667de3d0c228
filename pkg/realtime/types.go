package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Inbound event names.
const (
	EventNotification     = "notification"
	EventRealtimeUpdate   = "real-time-update"
	EventAttendanceUpdate = "attendance-update"
	EventGradeUpdate      = "grade-update"
	EventAnnouncement     = "announcement"
	EventCalendarUpdate   = "calendar-update"
)

// Outbound event names.
const (
	EventSendNotification = "send-notification"
	EventSendUpdate       = "send-update"
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
)

// UpdateKind is the closed set of real-time update kinds.
type UpdateKind string

const (
	UpdateUserStatus   UpdateKind = "user_status"
	UpdateAttendance   UpdateKind = "attendance"
	UpdateGrade        UpdateKind = "grade"
	UpdateAnnouncement UpdateKind = "announcement"
	UpdateCalendar     UpdateKind = "calendar"
)

// Valid reports whether k is one of the known update kinds.
func (k UpdateKind) Valid() bool {
	switch k {
	case UpdateUserStatus, UpdateAttendance, UpdateGrade, UpdateAnnouncement, UpdateCalendar:
		return true
	}
	return false
}

// Envelope is a single websocket frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Action is a follow-up attached to a notification on the wire.
type Action struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Kind   string `json:"type,omitempty"`
	URL    string `json:"url,omitempty"`
	Screen string `json:"screen,omitempty"`
}

// ID is an identifier servers send either as a JSON string or a number.
// It always encodes as a string.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*id = ID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Notification is the payload of the "notification" event. Timestamp is the
// raw value from the server; conversion parses it, so the canonical record
// re-encodes it in RFC 3339 form.
type Notification struct {
	ID           ID             `json:"id"`
	Title        string         `json:"title"`
	Body         string         `json:"body"`
	Category     string         `json:"category,omitempty"`
	Priority     string         `json:"priority,omitempty"`
	Timestamp    string         `json:"timestamp,omitempty"`
	UserID       string         `json:"userId,omitempty"`
	UserCategory string         `json:"userCategory,omitempty"`
	StudentID    string         `json:"studentId,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Actions      []Action       `json:"actions,omitempty"`
}

// Update is a real-time update that is not itself a notification.
type Update struct {
	Type         UpdateKind     `json:"type"`
	Data         map[string]any `json:"data,omitempty"`
	Timestamp    string         `json:"timestamp,omitempty"`
	UserID       string         `json:"userId,omitempty"`
	UserCategory string         `json:"userCategory,omitempty"`
}

// roomRequest is the payload of join-room and leave-room.
type roomRequest struct {
	Room string `json:"room"`
}

// dedicatedUpdateKinds maps per-kind event names to their update kind.
var dedicatedUpdateKinds = map[string]UpdateKind{
	EventAttendanceUpdate: UpdateAttendance,
	EventGradeUpdate:      UpdateGrade,
	EventAnnouncement:     UpdateAnnouncement,
	EventCalendarUpdate:   UpdateCalendar,
}

// decodeUpdate turns an update event into an Update. Generic
// real-time-update frames carry the kind in the payload; dedicated events
// carry the bare data and imply the kind.
func decodeUpdate(event string, raw json.RawMessage) (Update, error) {
	if event == EventRealtimeUpdate {
		var u Update
		if err := json.Unmarshal(raw, &u); err != nil {
			return Update{}, err
		}
		if !u.Type.Valid() {
			return Update{}, fmt.Errorf("unknown update kind %q", u.Type)
		}
		return u, nil
	}

	kind, ok := dedicatedUpdateKinds[event]
	if !ok {
		return Update{}, fmt.Errorf("unknown update event %q", event)
	}

	var data map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return Update{}, err
		}
	}

	u := Update{Type: kind, Data: data}
	if ts, ok := data["timestamp"].(string); ok {
		u.Timestamp = ts
	}
	if id, ok := data["userId"].(string); ok {
		u.UserID = id
	}
	return u, nil
}
