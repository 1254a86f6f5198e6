// Package timeparse turns the natural-language dates and times found in travel requests
// ("tomorrow", "next friday", "2:30pm", "noon") into concrete values.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical date format handed to tools.
const DateLayout = "2006-01-02"

// DefaultTime is used by NormalizeTime when the input cannot be understood.
const DefaultTime = "09:00"

var (
	// ErrInvalidDate is returned for date expressions the parser does not understand.
	ErrInvalidDate = errors.New("unrecognized date")
	// ErrInvalidTime is returned for time expressions the parser does not understand.
	ErrInvalidTime = errors.New("unrecognized time")
)

var (
	reClock12 = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))?\s*([ap])\.?\s*m\.?$`)
	reClock24 = regexp.MustCompile(`^(\d{1,2})(?:[:h.](\d{2})|h)?$`)
	reInDays  = regexp.MustCompile(`^in\s+(\d+|a|one|two|three)\s+(day|days|week|weeks)$`)
	reISO     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	reDotted  = regexp.MustCompile(`^(\d{1,2})[./](\d{1,2})(?:[./](\d{2,4}))?\.?$`)
)

var namedTimes = map[string][2]int{
	"noon":      {12, 0},
	"midday":    {12, 0},
	"midnight":  {0, 0},
	"morning":   {8, 0},
	"afternoon": {14, 0},
	"evening":   {18, 0},
	"tonight":   {20, 0},
	"night":     {20, 0},
}

var smallNumbers = map[string]int{"a": 1, "one": 1, "two": 2, "three": 3}

// Parsed is the result of ParseDatetime.
type Parsed struct {
	// Date is formatted as YYYY-MM-DD.
	Date          string
	DepartureTime time.Time
	Hours         int
	Minutes       int
}

// Time returns the "HH:MM" form of the parsed clock time.
func (p Parsed) Time() string {
	return fmt.Sprintf("%02d:%02d", p.Hours, p.Minutes)
}

// Parser resolves relative expressions against a clock.
type Parser struct {
	now func() time.Time
	loc *time.Location
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock sets the reference clock used for relative expressions.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		p.now = now
	}
}

// WithLocation sets the time zone results are expressed in.
// By default the location of the clock's current time is used.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		p.loc = loc
	}
}

// New creates a Parser using time.Now unless configured otherwise.
func New(opts ...Option) *Parser {
	p := &Parser{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Parser) current() time.Time {
	now := p.now()
	if p.loc != nil {
		now = now.In(p.loc)
	}
	return now
}

// ParseDatetime combines a date expression and a time expression.
// An empty date means today; an empty time means the current clock time.
func (p *Parser) ParseDatetime(date, timeStr string) (Parsed, error) {
	now := p.current()

	day, err := p.parseDate(date, now)
	if err != nil {
		return Parsed{}, err
	}

	h, m := now.Hour(), now.Minute()
	if strings.TrimSpace(timeStr) != "" {
		var ok bool
		h, m, ok = p.ParseTime(timeStr)
		if !ok {
			return Parsed{}, fmt.Errorf("%w: %q", ErrInvalidTime, timeStr)
		}
	} else if isTonight(date) {
		h, m = 20, 0
	}

	dep := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, now.Location())
	return Parsed{
		Date:          dep.Format(DateLayout),
		DepartureTime: dep,
		Hours:         h,
		Minutes:       m,
	}, nil
}

// ParseTime understands 12h clocks ("9am", "2:30 pm"), 24h clocks ("14:45", "14h45"),
// and named moments ("noon", "evening", "now").
func (p *Parser) ParseTime(s string) (hours, minutes int, ok bool) {
	s = cleanup(s)
	s = strings.TrimPrefix(s, "at ")
	s = strings.TrimPrefix(s, "around ")
	s = strings.TrimSuffix(s, " o'clock")
	s = strings.TrimSpace(s)

	if s == "now" || s == "right now" {
		now := p.current()
		return now.Hour(), now.Minute(), true
	}
	if hm, found := namedTimes[strings.TrimPrefix(s, "in the ")]; found {
		return hm[0], hm[1], true
	}

	if m := reClock12.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins := 0
		if m[2] != "" {
			mins, _ = strconv.Atoi(m[2])
		}
		if h < 1 || h > 12 || mins > 59 {
			return 0, 0, false
		}
		if m[3] == "p" && h != 12 {
			h += 12
		}
		if m[3] == "a" && h == 12 {
			h = 0
		}
		return h, mins, true
	}

	if m := reClock24.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins := 0
		if m[2] != "" {
			mins, _ = strconv.Atoi(m[2])
		}
		if h > 23 || mins > 59 {
			return 0, 0, false
		}
		return h, mins, true
	}

	return 0, 0, false
}

// NormalizeTime returns s as "HH:MM", or DefaultTime when s is not understood.
func (p *Parser) NormalizeTime(s string) string {
	h, m, ok := p.ParseTime(s)
	if !ok {
		return DefaultTime
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// NormalizeDate returns s as "YYYY-MM-DD", or today's date when s is not understood.
func (p *Parser) NormalizeDate(s string) string {
	now := p.current()
	day, err := p.parseDate(s, now)
	if err != nil {
		return now.Format(DateLayout)
	}
	return day.Format(DateLayout)
}

func (p *Parser) parseDate(s string, now time.Time) (time.Time, error) {
	s = cleanup(s)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch s {
	case "", "today", "now", "tonight", "this evening", "this morning", "this afternoon":
		return today, nil
	case "tomorrow", "tmrw", "tomorrow morning", "tomorrow evening", "tomorrow afternoon":
		return today.AddDate(0, 0, 1), nil
	case "day after tomorrow", "the day after tomorrow":
		return today.AddDate(0, 0, 2), nil
	case "next week":
		return today.AddDate(0, 0, 7), nil
	}

	if m := reInDays.FindStringSubmatch(s); m != nil {
		n, ok := smallNumbers[m[1]]
		if !ok {
			n, _ = strconv.Atoi(m[1])
		}
		if strings.HasPrefix(m[2], "week") {
			n *= 7
		}
		return today.AddDate(0, 0, n), nil
	}

	if wd, next, ok := weekday(s); ok {
		diff := (int(wd) - int(today.Weekday()) + 7) % 7
		if diff == 0 && next {
			diff = 7
		}
		return today.AddDate(0, 0, diff), nil
	}

	if m := reISO.FindStringSubmatch(s); m != nil {
		return makeDate(m[1], m[2], m[3], now)
	}
	if m := reDotted.FindStringSubmatch(s); m != nil {
		year := m[3]
		if year == "" {
			year = strconv.Itoa(now.Year())
		} else if len(year) == 2 {
			year = "20" + year
		}
		return makeDate(year, m[2], m[1], now)
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func makeDate(y, mo, d string, now time.Time) (time.Time, error) {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(mo)
	day, _ := strconv.Atoi(d)
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%w: %s-%s-%s", ErrInvalidDate, y, mo, d)
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
	// time.Date normalizes 31.02 into March.
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("%w: %s-%s-%s", ErrInvalidDate, y, mo, d)
	}
	return t, nil
}

func weekday(s string) (time.Weekday, bool, bool) {
	next := false
	for _, prefix := range []string{"next ", "this ", "on "} {
		if strings.HasPrefix(s, prefix) {
			next = prefix == "next "
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, next, true
		}
	}
	return 0, false, false
}

func isTonight(date string) bool {
	return cleanup(date) == "tonight"
}

func cleanup(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
