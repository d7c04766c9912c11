package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownFrequency = errors.New("unknown frequency")
	ErrUnknownWeekday   = errors.New("unknown weekday")
	ErrInvalidOrdinal   = errors.New("invalid ordinal")
)

// Frequency is the base period of a recurrence rule.
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

// Frequencies lists the selectable frequencies in display order.
var Frequencies = []Frequency{Daily, Weekly, Monthly, Yearly}

func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFrequency, s)
	}
	return f, nil
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// Label is the form label ("Daily", "Weekly", ...).
func (f Frequency) Label() string {
	if !f.Valid() {
		return string(f)
	}
	s := string(f)
	return s[:1] + strings.ToLower(s[1:])
}

// Unit is the singular noun used in summaries ("day", "week", ...).
func (f Frequency) Unit() string {
	switch f {
	case Daily:
		return "day"
	case Weekly:
		return "week"
	case Monthly:
		return "month"
	case Yearly:
		return "year"
	}
	return ""
}

// Weekday uses time.Weekday numbering: Sunday = 0 ... Saturday = 6.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// Weekdays lists weekdays in form order (Sun..Sat).
var Weekdays = []Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

var weekdayLabels = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

func (w Weekday) Valid() bool {
	return w >= Sunday && w <= Saturday
}

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayLabels[w]
}

func (w Weekday) Time() time.Weekday {
	return time.Weekday(w)
}

// ParseWeekday accepts a label ("Mon", "monday"), an RFC 5545 code ("MO")
// or the form index ("1").
func ParseWeekday(s string) (Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if len(v) == 1 && v[0] >= '0' && v[0] <= '6' {
		return Weekday(v[0] - '0'), nil
	}
	codes := map[string]Weekday{
		"su": Sunday, "mo": Monday, "tu": Tuesday, "we": Wednesday,
		"th": Thursday, "fr": Friday, "sa": Saturday,
	}
	if w, ok := codes[v]; ok {
		return w, nil
	}
	for _, w := range Weekdays {
		label := strings.ToLower(w.String())
		full := strings.ToLower(w.Time().String())
		if v == label || v == full {
			return w, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWeekday, s)
}

// WeekdaySet is a set of weekdays stored as a bit mask (bit n = Weekday n).
type WeekdaySet uint8

func NewWeekdaySet(days ...Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.Add(d)
	}
	return s
}

func (s WeekdaySet) Has(w Weekday) bool {
	return w.Valid() && s&(1<<uint(w)) != 0
}

func (s WeekdaySet) Add(w Weekday) WeekdaySet {
	if !w.Valid() {
		return s
	}
	return s | 1<<uint(w)
}

func (s WeekdaySet) Remove(w Weekday) WeekdaySet {
	if !w.Valid() {
		return s
	}
	return s &^ (1 << uint(w))
}

// Toggle adds w if absent and removes it if present.
func (s WeekdaySet) Toggle(w Weekday) WeekdaySet {
	if !w.Valid() {
		return s
	}
	return s ^ 1<<uint(w)
}

func (s WeekdaySet) Empty() bool {
	return s == 0
}

func (s WeekdaySet) Len() int {
	n := 0
	for _, w := range Weekdays {
		if s.Has(w) {
			n++
		}
	}
	return n
}

// Days returns the members in Sun..Sat order.
func (s WeekdaySet) Days() []Weekday {
	out := make([]Weekday, 0, 7)
	for _, w := range Weekdays {
		if s.Has(w) {
			out = append(out, w)
		}
	}
	return out
}

func (s WeekdaySet) String() string {
	days := s.Days()
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = d.String()
	}
	return strings.Join(parts, ", ")
}

// Ordinal selects the n-th weekday of a month; Last is -1.
type Ordinal int

const (
	First  Ordinal = 1
	Second Ordinal = 2
	Third  Ordinal = 3
	Fourth Ordinal = 4
	Last   Ordinal = -1
)

// Ordinals lists the selectable ordinals in form order.
var Ordinals = []Ordinal{First, Second, Third, Fourth, Last}

func (o Ordinal) Valid() bool {
	switch o {
	case First, Second, Third, Fourth, Last:
		return true
	}
	return false
}

func (o Ordinal) String() string {
	switch o {
	case First:
		return "First"
	case Second:
		return "Second"
	case Third:
		return "Third"
	case Fourth:
		return "Fourth"
	case Last:
		return "Last"
	}
	return fmt.Sprintf("Ordinal(%d)", int(o))
}

// ParseOrdinal accepts the numeric form value ("1".."4", "-1") or a label.
func ParseOrdinal(s string) (Ordinal, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, o := range Ordinals {
		if v == fmt.Sprint(int(o)) || v == strings.ToLower(o.String()) {
			return o, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidOrdinal, s)
}

// NthWeekday is "the Ordinal-th Weekday of the month".
type NthWeekday struct {
	Ordinal Ordinal
	Weekday Weekday
}

func (n NthWeekday) String() string {
	return strings.ToLower(n.Ordinal.String()) + " " + n.Weekday.String()
}

// Matches reports whether t is the n-th (or last) such weekday of its month.
func (n NthWeekday) Matches(t time.Time) bool {
	if t.Weekday() != n.Weekday.Time() {
		return false
	}
	if n.Ordinal == Last {
		return t.AddDate(0, 0, 7).Month() != t.Month()
	}
	return (t.Day()-1)/7+1 == int(n.Ordinal)
}

// Preview is the derived (rule text, upcoming dates) pair shown to the user.
type Preview struct {
	RuleText    string
	Occurrences []time.Time
}
