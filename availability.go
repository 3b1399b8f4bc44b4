package beanrates

import (
	"sort"

	"github.com/etnz/beanrates/date"
)

// AvailabilityDay is the per-day tally of price directives.
type AvailabilityDay struct {
	Date       date.Date `json:"d"`
	Count      int       `json:"n"`
	Directives []string  `json:"directives"`
}

// Availability is the ledger-wide per-day availability of price directives.
// It is derived data, recomputed on every query and never persisted.
type Availability struct {
	Range *date.Range
	Days  []AvailabilityDay
}

// Aggregate groups observations by day, regardless of currency pair:
// availability is ledger-wide. The count of a day is always the number of
// price observations on that day, markers never contribute.
//
// When r is non-nil, Days holds one element for every single day of the
// range, including days without any observation, so a calendar view stays
// clickable on data-free days. Without an explicit range, Days covers only
// the days with observations and Range spans the first to the last of them;
// it is nil when there is nothing at all.
func Aggregate(obs []PriceObservation, r *date.Range) Availability {
	byDay := make(map[date.Date][]string)
	for _, p := range obs {
		byDay[p.Date] = append(byDay[p.Date], p.Line)
	}

	if r != nil {
		rr := *r
		days := make([]AvailabilityDay, 0)
		for d := range rr.Days() {
			lines := byDay[d]
			if lines == nil {
				lines = []string{}
			}
			days = append(days, AvailabilityDay{Date: d, Count: len(lines), Directives: lines})
		}
		return Availability{Range: &rr, Days: days}
	}

	if len(byDay) == 0 {
		return Availability{}
	}

	dates := make([]date.Date, 0, len(byDay))
	for d := range byDay {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	days := make([]AvailabilityDay, 0, len(dates))
	for _, d := range dates {
		days = append(days, AvailabilityDay{Date: d, Count: len(byDay[d]), Directives: byDay[d]})
	}
	span := date.NewRange(dates[0], dates[len(dates)-1])
	return Availability{Range: &span, Days: days}
}
