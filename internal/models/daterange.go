package models

import (
	"fmt"
	"time"
)

// RangeError reports which bound of a day range was rejected.
type RangeError struct {
	Field  string
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ParseDayRange reads from and to as calendar days in loc. Both days are
// inclusive, so To is returned as the start of the day after to. An empty
// bound stays open.
func ParseDayRange(from, to string, loc *time.Location) (DateRange, error) {
	var r DateRange
	if from != "" {
		t, err := time.ParseInLocation(time.DateOnly, from, loc)
		if err != nil {
			return DateRange{}, &RangeError{Field: "from", Reason: "must be YYYY-MM-DD"}
		}
		r.From = t
	}
	if to != "" {
		t, err := time.ParseInLocation(time.DateOnly, to, loc)
		if err != nil {
			return DateRange{}, &RangeError{Field: "to", Reason: "must be YYYY-MM-DD"}
		}
		r.To = t.AddDate(0, 0, 1)
	}
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return DateRange{}, &RangeError{Field: "to", Reason: "must not be before " + from}
	}
	return r, nil
}
