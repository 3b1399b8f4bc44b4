package server

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/etnz/beanrates/date"
)

// filterRange extracts the host's time display filter from the query.
// The account filter is accepted and ignored: prices are not tied to accounts.
func filterRange(q url.Values) (*date.Range, error) {
	s := strings.TrimSpace(q.Get("time"))
	if s == "" {
		return nil, nil
	}
	return parseTimeFilter(s)
}

// parseTimeFilter interprets the host's time filter syntax: a single year
// ("2024"), month ("2024-06") or day ("2024-06-15"), or an inclusive span of
// two such bounds joined by ".." ("2024..2025-06").
func parseTimeFilter(s string) (*date.Range, error) {
	fromS, toS := s, s
	if i := strings.Index(s, ".."); i >= 0 {
		fromS, toS = s[:i], s[i+2:]
	}
	from, err := parseBound(fromS, false)
	if err != nil {
		return nil, err
	}
	to, err := parseBound(toS, true)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("invalid time filter %q: empty range", s)
	}
	r := date.NewRange(from, to)
	return &r, nil
}

// parseBound resolves one bound of the filter to its first day (end=false)
// or its last day (end=true).
func parseBound(s string, end bool) (date.Date, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "-")
	switch len(parts) {
	case 1:
		y, err := strconv.Atoi(parts[0])
		if err != nil || len(parts[0]) != 4 {
			return date.Date{}, fmt.Errorf("invalid time filter bound %q", s)
		}
		if end {
			return date.New(y, 12, 31), nil
		}
		return date.New(y, 1, 1), nil
	case 2:
		y, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || m < 1 || m > 12 {
			return date.Date{}, fmt.Errorf("invalid time filter bound %q", s)
		}
		if end {
			// day zero of the next month is the last day of this one
			return date.New(y, time.Month(m)+1, 0), nil
		}
		return date.New(y, time.Month(m), 1), nil
	case 3:
		return date.Parse(s)
	default:
		return date.Date{}, fmt.Errorf("invalid time filter bound %q", s)
	}
}
