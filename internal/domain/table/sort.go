package table

import (
	"fmt"
	"strings"
)

// Direction is the ordering direction of a sort.
type Direction string

const (
	Ascending  Direction = "ASC"
	Descending Direction = "DESC"
)

// Sort is the active sort key and direction.
type Sort struct {
	Key       string
	Direction Direction
}

// String formats the sort as "key:ASC" or "key:DESC".
func (s Sort) String() string {
	return s.Key + ":" + string(s.Direction)
}

// Toggle applies a sort request for key: the active key sorted ascending flips
// to descending, anything else becomes key ascending.
func (s Sort) Toggle(key string) Sort {
	if s.Key == key && s.Direction == Ascending {
		return Sort{Key: key, Direction: Descending}
	}
	return Sort{Key: key, Direction: Ascending}
}

// Indicator returns the arrow shown next to a column header for key.
func (s Sort) Indicator(key string) string {
	if s.Key != key {
		return ""
	}
	if s.Direction == Ascending {
		return "↑"
	}
	return "↓"
}

// ParseSort parses "key:ASC" / "key:desc". A missing direction means ascending.
func ParseSort(value string) (Sort, error) {
	key, dir, found := strings.Cut(strings.TrimSpace(value), ":")
	if key == "" {
		return Sort{}, fmt.Errorf("invalid sort %q: empty key", value)
	}
	if !found {
		return Sort{Key: key, Direction: Ascending}, nil
	}
	switch Direction(strings.ToUpper(dir)) {
	case Ascending:
		return Sort{Key: key, Direction: Ascending}, nil
	case Descending:
		return Sort{Key: key, Direction: Descending}, nil
	default:
		return Sort{}, fmt.Errorf("invalid sort %q: direction must be ASC or DESC", value)
	}
}
