package notifications

import "time"

// Filters narrows the records returned by queries. Zero fields match everything.
type Filters struct {
	Type      Type
	Priority  Priority
	Source    Source
	Read      *bool
	StudentID string
	UserID    string
	From      time.Time // inclusive
	To        time.Time // inclusive
}

// Match reports whether n satisfies every set field of f.
func (f Filters) Match(n Notification) bool {
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Priority != "" && n.Priority != f.Priority {
		return false
	}
	if f.Source != "" && n.Source != f.Source {
		return false
	}
	if f.Read != nil && n.Read != *f.Read {
		return false
	}
	if f.StudentID != "" && n.StudentID != f.StudentID {
		return false
	}
	if f.UserID != "" && n.UserID != f.UserID {
		return false
	}
	if !f.From.IsZero() && n.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && n.Timestamp.After(f.To) {
		return false
	}
	return true
}

// Unread returns a filter pointer for the read field.
func Unread() *bool {
	v := false
	return &v
}

// Stats aggregates a filtered set of records.
type Stats struct {
	Total      int              `json:"total"`
	Unread     int              `json:"unread"`
	ByType     map[Type]int     `json:"by_type"`
	ByPriority map[Priority]int `json:"by_priority"`
	BySource   map[Source]int   `json:"by_source"`
}

func computeStats(records []Notification) Stats {
	s := Stats{
		ByType:     make(map[Type]int),
		ByPriority: make(map[Priority]int),
		BySource:   make(map[Source]int),
	}
	for _, n := range records {
		s.Total++
		if !n.Read {
			s.Unread++
		}
		s.ByType[n.Type]++
		s.ByPriority[n.Priority]++
		s.BySource[n.Source]++
	}
	return s
}
