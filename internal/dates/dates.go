package dates

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// ISODate is the display pattern for preview dates.
const ISODate = "yyyy-MM-dd"

var ErrUnparsableDate = errors.New("unparsable date")

var numericDate = regexp.MustCompile(`^\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}$`)

// Parser turns date-picker input into calendar days. It accepts the strict
// yyyy-MM-dd form first and falls back to natural language ("next friday",
// "in 2 weeks") relative to a reference time.
type Parser struct {
	w   *when.Parser
	loc *time.Location
}

func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{w: w, loc: loc}
}

// Location is the zone days are anchored in.
func (p *Parser) Location() *time.Location {
	return p.loc
}

// Parse returns the day named by input at 00:00 in the parser's location.
func (p *Parser) Parse(input string, ref time.Time) (time.Time, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, fmt.Errorf("dates: %w: empty input", ErrUnparsableDate)
	}

	if t, err := time.ParseInLocation("2006-01-02", s, p.loc); err == nil {
		return t, nil
	}
	// Numeric dates never reach the natural-language parser: it would read
	// "2024-02-30" as some unrelated day.
	if numericDate.MatchString(s) {
		return time.Time{}, fmt.Errorf("dates: %w: %q is not a valid yyyy-MM-dd date", ErrUnparsableDate, s)
	}

	res, err := p.w.Parse(s, ref.In(p.loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("dates: %w: %q: %v", ErrUnparsableDate, s, err)
	}
	if res == nil {
		return time.Time{}, fmt.Errorf("dates: %w: %q", ErrUnparsableDate, s)
	}
	return StartOfDay(res.Time, p.loc), nil
}

// ParseOptional treats empty input as "no date", the cleared state of an
// optional picker.
func (p *Parser) ParseOptional(input string, ref time.Time) (time.Time, bool, error) {
	if strings.TrimSpace(input) == "" {
		return time.Time{}, false, nil
	}
	t, err := p.Parse(input, ref)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// StartOfDay returns 00:00 of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = t.Location()
	}
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDay returns the last whole second of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Second)
}

// tokens maps date-fns pattern tokens to Go layout fragments, longest first.
var tokens = []struct {
	token  string
	layout string
}{
	{"yyyy", "2006"},
	{"EEEE", "Monday"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"EEE", "Mon"},
	{"yy", "06"},
	{"MM", "01"},
	{"dd", "02"},
	{"HH", "15"},
	{"mm", "04"},
	{"ss", "05"},
	{"M", "1"},
	{"d", "2"},
}

// Layout converts a date-fns style pattern ("yyyy-MM-dd", "EEE d MMM") into
// a Go time layout. Text in single quotes is copied literally.
func Layout(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		if pattern[i] == '\'' {
			end := strings.IndexByte(pattern[i+1:], '\'')
			if end < 0 {
				b.WriteString(pattern[i+1:])
				break
			}
			b.WriteString(pattern[i+1 : i+1+end])
			i += end + 2
			continue
		}
		matched := false
		for _, tk := range tokens {
			if strings.HasPrefix(pattern[i:], tk.token) {
				b.WriteString(tk.layout)
				i += len(tk.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(pattern[i])
			i++
		}
	}
	return b.String()
}

// Format renders t using a date-fns style pattern.
func Format(t time.Time, pattern string) string {
	return t.Format(Layout(pattern))
}

// FormatAll formats every date with pattern.
func FormatAll(ts []time.Time, pattern string) []string {
	layout := Layout(pattern)
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Format(layout)
	}
	return out
}
