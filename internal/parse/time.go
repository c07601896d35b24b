package parse

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layouts accepted by Time, in the order they are tried. Full timestamps come
// first, then a bare date, then date and time separated by a space.
var Layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	time.DateOnly,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
}

// ErrEmpty is returned for blank input.
var ErrEmpty = errors.New("empty date")

// Time parses s using the first matching layout in Layouts. Values without a
// zone are taken as UTC. Anything else (day-first, slashed, two-digit years)
// is rejected instead of guessed.
func Time(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrEmpty
	}
	for _, layout := range Layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q: expected one of %s", s, strings.Join(Layouts, ", "))
}
