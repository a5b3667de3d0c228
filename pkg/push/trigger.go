package push

import (
	"fmt"
	"time"
)

// Trigger determines when a scheduled notification fires.
type Trigger interface {
	// Next returns the next fire time after from.
	Next(from time.Time) time.Time
	// Repeats reports whether the trigger fires more than once.
	Repeats() bool
	String() string
}

type atTrigger struct {
	at time.Time
}

// At fires once at t.
func At(t time.Time) Trigger { return atTrigger{at: t} }

func (t atTrigger) Next(time.Time) time.Time { return t.at }
func (t atTrigger) Repeats() bool            { return false }
func (t atTrigger) String() string           { return "at " + t.at.Format(time.RFC3339) }

type afterTrigger struct {
	delay time.Duration
}

// After fires once, d after scheduling.
func After(d time.Duration) Trigger { return afterTrigger{delay: d} }

func (t afterTrigger) Next(from time.Time) time.Time { return from.Add(t.delay) }
func (t afterTrigger) Repeats() bool                 { return false }
func (t afterTrigger) String() string                { return fmt.Sprintf("after %v", t.delay) }

type everyTrigger struct {
	interval time.Duration
}

// Every fires repeatedly with a fixed interval.
func Every(d time.Duration) Trigger { return everyTrigger{interval: d} }

func (t everyTrigger) Next(from time.Time) time.Time { return from.Add(t.interval) }
func (t everyTrigger) Repeats() bool                 { return true }
func (t everyTrigger) String() string                { return fmt.Sprintf("every %v", t.interval) }

type dailyTrigger struct {
	hour, minute int
}

// Daily fires every day at hour:minute in the local time zone of the
// scheduling time.
func Daily(hour, minute int) Trigger { return dailyTrigger{hour: hour, minute: minute} }

func (t dailyTrigger) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), t.hour, t.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
func (t dailyTrigger) Repeats() bool  { return true }
func (t dailyTrigger) String() string { return fmt.Sprintf("daily at %02d:%02d", t.hour, t.minute) }

// validateTrigger rejects triggers that can never fire.
func validateTrigger(tr Trigger, now time.Time) error {
	switch t := tr.(type) {
	case nil:
		return ErrInvalidTrigger
	case afterTrigger:
		if t.delay < 0 {
			return fmt.Errorf("%w: negative delay %v", ErrInvalidTrigger, t.delay)
		}
	case everyTrigger:
		if t.interval <= 0 {
			return fmt.Errorf("%w: interval must be positive", ErrInvalidTrigger)
		}
	case dailyTrigger:
		if t.hour < 0 || t.hour > 23 || t.minute < 0 || t.minute > 59 {
			return fmt.Errorf("%w: %s", ErrInvalidTrigger, t)
		}
	case atTrigger:
		if t.at.Before(now) {
			return ErrTriggerInPast
		}
	}
	return nil
}
