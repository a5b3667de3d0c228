package notifications

import (
	"encoding/json"
	"maps"
	"strings"
	"time"

	"github.com/dmitrymomot/schoolfeed/pkg/push"
	"github.com/dmitrymomot/schoolfeed/pkg/realtime"
)

// DataNotificationID is the data key local surfacings carry so push events
// can be traced back to the record they mirror.
const DataNotificationID = "notificationId"

// Converter turns source payloads into canonical records.
type Converter struct {
	IDs   *IDGenerator
	Now   func() time.Time
	Texts TextSource
}

// TextSource resolves localized texts for synthetic notifications.
type TextSource interface {
	Text(key string) (string, bool)
}

func (c Converter) text(key, fallback string) string {
	if c.Texts != nil {
		if s, ok := c.Texts.Text(key); ok {
			return s
		}
	}
	return fallback
}

// NewConverter creates a converter using ids and clock. Nil arguments fall back to defaults.
func NewConverter(ids *IDGenerator, now func() time.Time) Converter {
	if now == nil {
		now = time.Now
	}
	if ids == nil {
		ids = NewIDGenerator(now)
	}
	return Converter{IDs: ids, Now: now}
}

// FromInput builds a local record.
func (c Converter) FromInput(in Input) Notification {
	return Notification{
		ID:           c.IDs.Next(SourceLocal),
		Title:        in.Title,
		Body:         in.Body,
		Type:         ParseType(string(in.Type)),
		Category:     in.Category,
		Priority:     ParsePriority(string(in.Priority)),
		Source:       SourceLocal,
		Timestamp:    c.Now(),
		UserID:       in.UserID,
		UserCategory: in.UserCategory,
		StudentID:    in.StudentID,
		Data:         maps.Clone(in.Data),
		Actions:      append([]Action(nil), in.Actions...),
	}
}

// pushPriorities maps platform levels onto priorities. Anything else is normal.
var pushPriorities = map[push.Level]Priority{
	push.LevelLow:     PriorityLow,
	push.LevelDefault: PriorityNormal,
	push.LevelHigh:    PriorityHigh,
	push.LevelMax:     PriorityUrgent,
}

// PriorityFromLevel maps a platform level onto a priority.
func PriorityFromLevel(l push.Level) Priority {
	if p, ok := pushPriorities[l]; ok {
		return p
	}
	return PriorityNormal
}

// LevelFromPriority is the inverse of PriorityFromLevel.
func LevelFromPriority(p Priority) push.Level {
	for l, candidate := range pushPriorities {
		if candidate == p {
			return l
		}
	}
	return push.LevelDefault
}

// FromPush converts a delivered push message. The type comes from data["type"].
func (c Converter) FromPush(msg push.Message) Notification {
	ts := msg.Date
	if ts.IsZero() {
		ts = c.Now()
	}
	return Notification{
		ID:           c.IDs.Next(SourcePush),
		Title:        msg.Title,
		Body:         msg.Body,
		Type:         ParseType(stringField(msg.Data, "type")),
		Category:     stringField(msg.Data, "category"),
		Priority:     PriorityFromLevel(msg.Level),
		Source:       SourcePush,
		Timestamp:    ts,
		UserID:       stringField(msg.Data, "userId"),
		UserCategory: stringField(msg.Data, "userCategory"),
		StudentID:    stringField(msg.Data, "studentId"),
		Data:         maps.Clone(msg.Data),
	}
}

// FromRealtime converts a websocket notification. The server's id is kept
// and its timestamp parsed; either is generated when missing or unparseable.
func (c Converter) FromRealtime(m realtime.Notification) Notification {
	id := string(m.ID)
	if id == "" {
		id = c.IDs.Next(SourceWebSocket)
	}
	ts, ok := parseTime(m.Timestamp)
	if !ok {
		ts = c.Now()
	}

	actions := make([]Action, 0, len(m.Actions))
	for _, a := range m.Actions {
		actions = append(actions, Action{ID: a.ID, Title: a.Title, Kind: a.Kind, URL: a.URL, Screen: a.Screen})
	}
	if len(actions) == 0 {
		actions = nil
	}

	return Notification{
		ID:           id,
		Title:        m.Title,
		Body:         m.Body,
		Type:         ParseType(m.Category),
		Category:     m.Category,
		Priority:     ParsePriority(m.Priority),
		Source:       SourceWebSocket,
		Timestamp:    ts,
		UserID:       m.UserID,
		UserCategory: m.UserCategory,
		StudentID:    m.StudentID,
		Data:         maps.Clone(m.Data),
		Actions:      actions,
	}
}

// FromUpdate converts real-time updates of academic significance into
// synthetic notifications. It reports false for kinds that never surface.
func (c Converter) FromUpdate(u realtime.Update) (Notification, bool) {
	n := Notification{
		Source:       SourceWebSocket,
		UserID:       u.UserID,
		UserCategory: u.UserCategory,
		StudentID:    stringField(u.Data, "studentId"),
	}

	switch u.Type {
	case realtime.UpdateAttendance:
		n.Type = TypeAcademic
		n.Priority = PriorityNormal
		n.Category = "attendance"
		n.Title = c.text("updates.attendance.title", "Attendance Updated")
		n.Body = c.text("updates.attendance.body", "Your attendance record has been updated.")
	case realtime.UpdateGrade:
		n.Type = TypeAcademic
		n.Priority = PriorityHigh
		n.Category = "grade"
		n.Title = c.text("updates.grade.title", "New Grade Posted")
		n.Body = c.text("updates.grade.body", "A new grade has been posted.")
	case realtime.UpdateAnnouncement:
		n.Type = TypeGeneral
		n.Priority = PriorityHigh
		n.Category = "announcement"
		n.Title = stringField(u.Data, "title")
		if n.Title == "" {
			n.Title = c.text("updates.announcement.title", "New Announcement")
		}
		n.Body = stringField(u.Data, "message")
		if n.Body == "" {
			n.Body = stringField(u.Data, "body")
		}
	default:
		return Notification{}, false
	}

	n.ID = c.IDs.Next(SourceWebSocket)
	ts, ok := parseTime(u.Timestamp)
	if !ok {
		ts = c.Now()
	}
	n.Timestamp = ts

	n.Data = maps.Clone(u.Data)
	if n.Data == nil {
		n.Data = make(map[string]any, 1)
	}
	n.Data["updateType"] = string(u.Type)
	return n, true
}

// FromAPI converts a record fetched from the backend. The backend id is kept.
func (c Converter) FromAPI(r APIRecord) Notification {
	id := r.ID
	if id == "" {
		id = c.IDs.Next(SourceAPI)
	}
	ts := r.CreatedAt
	if ts.IsZero() {
		ts = c.Now()
	}
	n := Notification{
		ID:           id,
		Title:        r.Title,
		Body:         r.Body,
		Type:         ParseType(r.Type),
		Category:     r.Category,
		Priority:     ParsePriority(r.Priority),
		Source:       SourceAPI,
		Timestamp:    ts,
		UserID:       r.UserID,
		UserCategory: r.UserCategory,
		StudentID:    r.StudentID,
		Data:         maps.Clone(r.Data),
	}
	if r.Read {
		at := ts
		if r.ReadAt != nil {
			at = *r.ReadAt
		}
		n.MarkAsRead(at)
	}
	return n
}

// APIRecord is a notification as the REST backend returns it. Decoding
// accepts both the legacy and current field names, so the rest of the
// package only ever sees this one shape.
type APIRecord struct {
	ID           string
	Title        string
	Body         string
	Type         string
	Category     string
	Priority     string
	Read         bool
	ReadAt       *time.Time
	CreatedAt    time.Time
	UserID       string
	UserCategory string
	StudentID    string
	Data         map[string]any
}

type apiRecordWire struct {
	ID             flexString     `json:"id"`
	Title          string         `json:"title"`
	Body           *string        `json:"body"`
	Message        *string        `json:"message"`
	Type           string         `json:"type"`
	Category       string         `json:"category"`
	Priority       string         `json:"priority"`
	Read           *bool          `json:"read"`
	IsRead         *bool          `json:"is_read"`
	ReadAt         *string        `json:"read_at"`
	CreatedAt      string         `json:"createdAt"`
	CreatedAtSnake string         `json:"created_at"`
	UserID         flexString     `json:"userId"`
	UserIDSnake    flexString     `json:"user_id"`
	UserCategory   string         `json:"userCategory"`
	UserCatSnake   string         `json:"user_category"`
	StudentID      flexString     `json:"studentId"`
	StudentIDSnake flexString     `json:"student_id"`
	Data           map[string]any `json:"data"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *APIRecord) UnmarshalJSON(b []byte) error {
	var w apiRecordWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	*r = APIRecord{
		ID:           string(w.ID),
		Title:        w.Title,
		Type:         w.Type,
		Category:     w.Category,
		Priority:     w.Priority,
		UserID:       firstNonEmpty(string(w.UserID), string(w.UserIDSnake)),
		UserCategory: firstNonEmpty(w.UserCategory, w.UserCatSnake),
		StudentID:    firstNonEmpty(string(w.StudentID), string(w.StudentIDSnake)),
		Data:         w.Data,
	}

	switch {
	case w.Body != nil:
		r.Body = *w.Body
	case w.Message != nil:
		r.Body = *w.Message
	}

	switch {
	case w.IsRead != nil:
		r.Read = *w.IsRead
	case w.Read != nil:
		r.Read = *w.Read
	}
	if w.ReadAt != nil {
		if at, ok := parseTime(*w.ReadAt); ok {
			r.ReadAt = &at
			r.Read = true
		}
	}

	if ts, ok := parseTime(firstNonEmpty(w.CreatedAt, w.CreatedAtSnake)); ok {
		r.CreatedAt = ts
	}
	return nil
}

// MarshalJSON writes the current field names.
func (r APIRecord) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"id":         r.ID,
		"title":      r.Title,
		"body":       r.Body,
		"type":       r.Type,
		"priority":   r.Priority,
		"is_read":    r.Read,
		"created_at": r.CreatedAt.Format(time.RFC3339Nano),
	}
	if r.Category != "" {
		out["category"] = r.Category
	}
	if r.ReadAt != nil {
		out["read_at"] = r.ReadAt.Format(time.RFC3339Nano)
	}
	if r.UserID != "" {
		out["user_id"] = r.UserID
	}
	if r.UserCategory != "" {
		out["user_category"] = r.UserCategory
	}
	if r.StudentID != "" {
		out["student_id"] = r.StudentID
	}
	if r.Data != nil {
		out["data"] = r.Data
	}
	return json.Marshal(out)
}

// flexString decodes JSON strings and numbers alike.
type flexString = realtime.ID

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
