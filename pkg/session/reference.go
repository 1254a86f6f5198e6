package session

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/waypoint/pkg/domain"
)

const lastIndex = -1

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"last": lastIndex, "latter": lastIndex,
}

var (
	reNumbered = regexp.MustCompile(`(?:#|\b(?:option|number|no\.?|nr\.?|connection|trip|train|station|place)\s*)(\d+)\b`)
	reSuffixed = regexp.MustCompile(`\b(\d+)(?:st|nd|rd|th)\b`)
	reOrdinal  = regexp.MustCompile(`\b(first|second|third|fourth|fifth|last|latter)\b`)
	reCardinal = regexp.MustCompile(`\b(?:the\s+)?(one|two|three|four|five)\b`)
	reDeictic  = regexp.MustCompile(`\b(?:that|this)\s+one\b|^\s*(?:that|this|it)\s*[.!?]?\s*$`)
	reBareNum  = regexp.MustCompile(`^\s*(\d+)\s*[.!?]?\s*$`)
	rePlaces   = regexp.MustCompile(`\b(station|stations|stop|stops|place|places|platform)\b`)
	reTrips    = regexp.MustCompile(`\b(trip|trips|connection|connections|train|trains|journey|option|options)\b`)
)

// ParseOrdinal extracts a 1-based position from a reference such as "the first one",
// "option 2", "#2", "2nd", "second" or "the last one". "that one" means the first
// entry. The last position is reported as -1.
func ParseOrdinal(text string) (int, bool) {
	t := strings.ToLower(text)

	if m := reNumbered.FindStringSubmatch(t); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n, n > 0
	}
	if m := reSuffixed.FindStringSubmatch(t); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n, n > 0
	}
	if m := reOrdinal.FindStringSubmatch(t); m != nil {
		return ordinalWords[m[1]], true
	}
	if reDeictic.MatchString(t) {
		return 1, true
	}
	if m := reBareNum.FindStringSubmatch(t); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n, n > 0
	}
	// "one" alone is too ambiguous ("that one", "one way"); only trust other cardinals.
	if m := reCardinal.FindStringSubmatch(t); m != nil && m[1] != "one" {
		return ordinalWords[m[1]], true
	}
	return 0, false
}

// ResolveReference maps a conversational reference onto a previously mentioned
// entity. Text naming stations or places searches places; text naming trips
// searches trips; otherwise trips are searched first, then places.
func (m *Manager) ResolveReference(c *domain.ConversationContext, text string) (*domain.MentionedEntity, bool) {
	pos, ok := ParseOrdinal(text)
	if !ok {
		return nil, false
	}

	trips, places := m.Mentions(c)
	t := strings.ToLower(text)

	var lists [][]domain.MentionedEntity
	switch {
	case rePlaces.MatchString(t) && !reTrips.MatchString(t):
		lists = [][]domain.MentionedEntity{places}
	case reTrips.MatchString(t) && !rePlaces.MatchString(t):
		lists = [][]domain.MentionedEntity{trips}
	default:
		lists = [][]domain.MentionedEntity{trips, places}
	}

	for _, list := range lists {
		if e, ok := pick(list, pos); ok {
			return e, true
		}
	}
	return nil, false
}

func pick(list []domain.MentionedEntity, pos int) (*domain.MentionedEntity, bool) {
	if len(list) == 0 {
		return nil, false
	}
	if pos == lastIndex {
		e := list[len(list)-1]
		return &e, true
	}
	for _, e := range list {
		if e.ReferenceIndex == pos {
			e := e
			return &e, true
		}
	}
	return nil, false
}
