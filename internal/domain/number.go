package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Number is a loosely typed numeric field. Records written by older clients
// store numbers as JSON numbers, numeric strings, or null; all of them decode
// here so nothing downstream branches on the wire shape.
type Number struct {
	Value float64
	Set   bool
}

func NumberOf(v float64) Number {
	return Number{Value: v, Set: true}
}

func (n Number) Finite() bool {
	return n.Set && !math.IsNaN(n.Value) && !math.IsInf(n.Value, 0)
}

func (n Number) Positive() bool {
	return n.Finite() && n.Value > 0
}

// Int64 rounds half away from zero. Non-finite values yield 0.
func (n Number) Int64() int64 {
	if !n.Finite() {
		return 0
	}
	return int64(math.Round(n.Value))
}

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	v, set := parseLooseNumber(data)
	n.Value, n.Set = v, set
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Set {
		return []byte("null"), nil
	}
	if !n.Finite() {
		return json.Marshal(strconv.FormatFloat(n.Value, 'g', -1, 64))
	}
	return []byte(strconv.FormatFloat(n.Value, 'f', -1, 64)), nil
}

// Timestamp is an epoch-millisecond field that tolerates numeric strings.
// Anything that is not numeric decodes as set-but-zero, which Valid rejects.
type Timestamp struct {
	Millis int64
	Set    bool
}

func TimestampOf(t time.Time) Timestamp {
	return Timestamp{Millis: t.UnixMilli(), Set: true}
}

func MillisOf(ms int64) Timestamp {
	return Timestamp{Millis: ms, Set: true}
}

func (t Timestamp) Valid() bool {
	return t.Set && t.Millis > 0
}

func (t Timestamp) Time() time.Time {
	return time.UnixMilli(t.Millis)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}
	v, set := parseLooseNumber(data)
	if !set {
		return nil
	}
	t.Set = true
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	t.Millis = int64(v)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.Millis, 10)), nil
}

// Date holds a calendar date or instant recorded by cost and purchase forms.
// Zone-less text ("2024-03-01") is kept verbatim and resolved against the
// store's location when it is read.
type Date struct {
	Millis int64
	Text   string
}

var dateLayouts = []string{"2006-01-02", "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04"}

func DateOf(t time.Time) Date {
	return Date{Millis: t.UnixMilli()}
}

// In returns the instant the date denotes in loc, or false when unparseable.
func (d Date) In(loc *time.Location) (time.Time, bool) {
	if d.Text == "" {
		if d.Millis > 0 {
			return time.UnixMilli(d.Millis).In(loc), true
		}
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.ParseInLocation(layout, d.Text, loc); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func (d *Date) UnmarshalJSON(data []byte) error {
	*d = Date{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil
		}
		text = strings.TrimSpace(text)
		if ms, err := strconv.ParseFloat(text, 64); err == nil && !math.IsNaN(ms) && !math.IsInf(ms, 0) {
			d.Millis = int64(ms)
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339, text); err == nil {
			d.Millis = parsed.UnixMilli()
			return nil
		}
		d.Text = text
		return nil
	}
	if v, set := parseLooseNumber(trimmed); set && !math.IsNaN(v) && !math.IsInf(v, 0) {
		d.Millis = int64(v)
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.Text != "" {
		return json.Marshal(d.Text)
	}
	if d.Millis == 0 {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(d.Millis, 10)), nil
}

// parseLooseNumber reports set=false for null/empty input. Values that are
// present but not numeric come back as NaN so Finite checks reject them.
func parseLooseNumber(data []byte) (float64, bool) {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return math.NaN(), true
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return 0, false
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return math.NaN(), true
		}
		return v, true
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return math.NaN(), true
	}
	return v, true
}
