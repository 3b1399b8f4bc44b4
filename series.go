package beanrates

import (
	"errors"
	"sort"

	"github.com/etnz/beanrates/date"
	"github.com/shopspring/decimal"
)

// ErrDivisionByZero is returned when an inverted series would require
// dividing by a zero-valued observation.
var ErrDivisionByZero = errors.New("cannot invert a zero-valued price")

// ErrSamePair is returned when a series is requested for a degenerate pair
// (currency equal to base).
var ErrSamePair = errors.New("currency and base must differ")

// SeriesPoint is one dated value of a rate series.
type SeriesPoint struct {
	Date  date.Date       `json:"d"`
	Value decimal.Decimal `json:"v"`
}

// Series is the rate series of one currency pair, with the markers authored
// for that exact pair.
type Series struct {
	Currency string
	Base     string
	Inverted bool
	Points   []SeriesPoint
	Markers  []Marker
}

var one = decimal.NewFromInt(1)

// BuildSeries collects the observations for (currency, base). When only the
// inverse pair is present in the ledger, every value is inverted (v -> 1/v)
// and Inverted is set. When neither direction exists it returns (nil, nil):
// an empty chart is a valid state, not an error.
//
// Points are sorted ascending by date; duplicate dates are kept in ledger
// order so the result is deterministic and the caller can decide that the
// latest value wins.
//
// Markers are matched on the direct pair only. Their color and comment are
// authored for one direction, inverting them would betray the author.
func BuildSeries(obs []PriceObservation, markers []Marker, currency, base string) (*Series, error) {
	if currency == "" || base == "" {
		return nil, errors.New("currency and base are required")
	}
	if currency == base {
		return nil, ErrSamePair
	}

	collect := func(cur, b string) []PriceObservation {
		var out []PriceObservation
		for _, p := range obs {
			if p.Currency == cur && p.Base == b {
				out = append(out, p)
			}
		}
		return out
	}

	direct := collect(currency, base)
	inverted := false
	if len(direct) == 0 {
		direct = collect(base, currency)
		inverted = true
	}
	if len(direct) == 0 {
		return nil, nil
	}

	// Stable sort: observations on the same day keep their ledger order.
	sort.SliceStable(direct, func(i, j int) bool { return direct[i].Date.Before(direct[j].Date) })

	points := make([]SeriesPoint, 0, len(direct))
	for _, p := range direct {
		v := p.Value
		if inverted {
			if v.IsZero() {
				return nil, ErrDivisionByZero
			}
			v = one.Div(v)
		}
		points = append(points, SeriesPoint{Date: p.Date, Value: v})
	}

	series := &Series{Currency: currency, Base: base, Inverted: inverted, Points: points}
	for _, m := range markers {
		if m.Currency == currency && m.Base == base {
			series.Markers = append(series.Markers, m)
		}
	}
	return series, nil
}
