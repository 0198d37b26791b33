package domain

import (
	"fmt"
	"strings"
	"time"
)

// Window is the half-open reporting range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

func (w Window) ContainsMillis(ms int64) bool {
	return ms >= w.From.UnixMilli() && ms < w.To.UnixMilli()
}

// Today is the calendar day containing now, in now's location.
func Today(now time.Time) Window {
	return Last(now, 1)
}

// Last covers the given number of whole calendar days ending with today.
func Last(now time.Time, days int) Window {
	if days < 1 {
		days = 1
	}
	end := startOfDay(now).AddDate(0, 0, 1)
	return Window{From: end.AddDate(0, 0, -days), To: end}
}

// ParseWindow reads from/to query values as YYYY-MM-DD (to inclusive) or
// RFC3339 instants (to exclusive). Missing values default to today; a lone
// to covers the single day it ends in.
func ParseWindow(from, to string, now time.Time) (Window, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" && to == "" {
		return Today(now), nil
	}

	loc := now.Location()
	w := Today(now)
	if from != "" {
		t, _, err := parseBound(from, loc)
		if err != nil {
			return Window{}, fmt.Errorf("%w: from: %v", ErrInvalidInput, err)
		}
		w.From = t
	}
	if to != "" {
		t, dateOnly, err := parseBound(to, loc)
		if err != nil {
			return Window{}, fmt.Errorf("%w: to: %v", ErrInvalidInput, err)
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		w.To = t
		if from == "" {
			w.From = startOfDay(t.Add(-time.Nanosecond).In(loc))
		}
	} else if from != "" {
		w.To = startOfDay(w.From).AddDate(0, 0, 1)
		if now.After(w.To) {
			w.To = startOfDay(now).AddDate(0, 0, 1)
		}
	}
	if !w.From.Before(w.To) {
		return Window{}, fmt.Errorf("%w: from must be before to", ErrInvalidInput)
	}
	return w, nil
}

func parseBound(value string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.In(loc), false, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
