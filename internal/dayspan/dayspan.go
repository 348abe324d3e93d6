// Package dayspan computes the inclusive [start, end] bounds of a calendar
// day in server-local time. A day runs from 00:00:00.000000000 to
// 23:59:59.999999999: a record stamped exactly at midnight belongs to that
// day, one stamped at the last nanosecond still belongs to it, and one
// stamped at the next midnight does not.
package dayspan

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for day parameters ("2006-01-02").
const DateLayout = "2006-01-02"

// Span is one calendar day with its inclusive query bounds.
type Span struct {
	Start time.Time
	End   time.Time
}

// Of returns the span of the day containing t, in t's location.
func Of(t time.Time) Span {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return Span{
		Start: start,
		End:   start.AddDate(0, 0, 1).Add(-time.Nanosecond),
	}
}

// Today returns the span of the current server-local day.
func Today() Span {
	return Of(time.Now())
}

// Parse interprets an optional "2006-01-02" value in server-local time.
// An empty value means today.
func Parse(value string) (Span, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Today(), nil
	}
	day, err := time.ParseInLocation(DateLayout, value, time.Local)
	if err != nil {
		return Span{}, fmt.Errorf("invalid date %q: expected %s", value, DateLayout)
	}
	return Of(day), nil
}

// Contains reports whether t falls inside the span, boundaries included.
func (s Span) Contains(t time.Time) bool {
	return !t.Before(s.Start) && !t.After(s.End)
}

// Date formats the span's day for display and audit detail.
func (s Span) Date() string {
	return s.Start.Format(DateLayout)
}
