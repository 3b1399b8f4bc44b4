package beanrates

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/etnz/beanrates/date"
	"github.com/shopspring/decimal"
)

// PriceObservation is a single dated exchange rate declared in the ledger.
//
// Observations are immutable once parsed. Several observations may share the
// same (date, currency, base) key: the parser never deduplicates, the merge
// step is the one responsible for not writing duplicates.
type PriceObservation struct {
	Date     date.Date
	Currency string
	Base     string
	Value    decimal.Decimal
	Line     string // raw source text of the directive
}

// Key identifies an observation for merge deduplication.
func (p PriceObservation) Key() string {
	return p.Date.String() + "|" + p.Currency + "|" + p.Base
}

// Marker is an author-supplied annotation for a currency pair, rendered on
// charts but never used in rate computations.
type Marker struct {
	Date     date.Date
	Currency string
	Base     string
	Value    decimal.Decimal
	Color    string // optional, "" when absent
	Comment  string // optional, "" when absent
}

// PriceSource is the fetch configuration attached to a commodity:
// the base currency the commodity is quoted in and the source/symbol
// specification understood by the fetch tool.
type PriceSource struct {
	Base   string
	Source string
}

// ParseWarning reports a directive that was recognized but skipped.
// Warnings never abort a parse.
type ParseWarning struct {
	File   string
	Line   int
	Reason string
}

func (w ParseWarning) String() string { return fmt.Sprintf("%s:%d: %s", w.File, w.Line, w.Reason) }

// entry is one source directive: its first line plus any indented metadata lines.
type entry struct {
	file string
	line int
	text string
	meta []string
}

func (e entry) warn(sn *Snapshot, format string, args ...any) {
	sn.Warnings = append(sn.Warnings, ParseWarning{File: e.file, Line: e.line, Reason: fmt.Sprintf(format, args...)})
}

// The decoder table. Each decoder recognizes exactly one directive shape and
// reports whether it matched; a matched-but-malformed directive is recorded
// as a warning and still counts as matched. Decoders are attempted in order,
// first match wins, unmatched entries are ignored.
type decoder func(sn *Snapshot, e entry) bool

var decoders = []decoder{
	decodePrice,
	decodeMarker,
	decodeCommodity,
	decodeOption,
}

var (
	priceHeadRe     = regexp.MustCompile(`^(\d{4}-\d{1,2}-\d{1,2})\s+price\b\s*(.*)$`)
	markerHeadRe    = regexp.MustCompile(`^(\d{4}-\d{1,2}-\d{1,2})\s+custom\s+"currency-marker"\s*(.*)$`)
	commodityHeadRe = regexp.MustCompile(`^(\d{4}-\d{1,2}-\d{1,2})\s+commodity\s+(\S+)\s*$`)
	optionRe        = regexp.MustCompile(`^option\s+"([^"]+)"\s+"([^"]*)"`)
	metaRe          = regexp.MustCompile(`^([a-z][A-Za-z0-9_-]*):\s*(.*)$`)
	// the "BASE:source/symbol" shape of the commodity price metadata.
	priceSourceRe = regexp.MustCompile(`^([A-Z][A-Z0-9]{2,}):(.+)$`)
)

func decodePrice(sn *Snapshot, e entry) bool {
	m := priceHeadRe.FindStringSubmatch(e.text)
	if m == nil {
		return false
	}
	day, err := date.Parse(m[1])
	if err != nil {
		e.warn(sn, "price directive: %v", err)
		return true
	}
	fields := strings.Fields(m[2])
	if len(fields) != 3 {
		e.warn(sn, "price directive wants <currency> <value> <base>, got %q", strings.TrimSpace(m[2]))
		return true
	}
	value, err := decimal.NewFromString(fields[1])
	if err != nil {
		e.warn(sn, "price directive has a non-numeric value %q", fields[1])
		return true
	}
	sn.Prices = append(sn.Prices, PriceObservation{
		Date:     day,
		Currency: strings.ToUpper(fields[0]),
		Base:     strings.ToUpper(fields[2]),
		Value:    value,
		Line:     e.text,
	})
	return true
}

func decodeMarker(sn *Snapshot, e entry) bool {
	m := markerHeadRe.FindStringSubmatch(e.text)
	if m == nil {
		return false
	}
	day, err := date.Parse(m[1])
	if err != nil {
		e.warn(sn, "currency-marker: %v", err)
		return true
	}
	args := splitArgs(m[2])
	if len(args) < 3 {
		e.warn(sn, "currency-marker wants <currency> <base> <value>, got %d values", len(args))
		return true
	}
	currency := strings.ToUpper(strings.TrimSpace(args[0]))
	base := strings.ToUpper(strings.TrimSpace(args[1]))
	if currency == "" || base == "" {
		e.warn(sn, "currency-marker has an empty currency code")
		return true
	}
	value, err := decimal.NewFromString(args[2])
	if err != nil {
		e.warn(sn, "currency-marker has a non-numeric value %q", args[2])
		return true
	}
	marker := Marker{Date: day, Currency: currency, Base: base, Value: value}
	if len(args) > 3 {
		marker.Color = strings.TrimSpace(args[3])
	}
	if len(args) > 4 {
		marker.Comment = strings.TrimSpace(args[4])
	}
	sn.Markers = append(sn.Markers, marker)
	return true
}

func decodeCommodity(sn *Snapshot, e entry) bool {
	m := commodityHeadRe.FindStringSubmatch(e.text)
	if m == nil {
		return false
	}
	cur := strings.ToUpper(m[2])
	for _, meta := range e.meta {
		kv := metaRe.FindStringSubmatch(meta)
		if kv == nil {
			continue
		}
		switch kv[1] {
		case "price_fetch_multiplier":
			mult, err := decimal.NewFromString(unquote(kv[2]))
			if err != nil {
				e.warn(sn, "commodity %s has a non-numeric price_fetch_multiplier %q", cur, kv[2])
				continue
			}
			sn.Multipliers[cur] = mult
		case "price":
			src := priceSourceRe.FindStringSubmatch(unquote(kv[2]))
			if src == nil {
				e.warn(sn, "commodity %s has an unrecognized price source %q", cur, kv[2])
				continue
			}
			sn.PriceSources[cur] = PriceSource{Base: src[1], Source: src[2]}
		}
	}
	return true
}

func decodeOption(sn *Snapshot, e entry) bool {
	m := optionRe.FindStringSubmatch(e.text)
	if m == nil {
		return false
	}
	if m[1] == "operating_currency" && m[2] != "" {
		sn.OperatingCurrencies = append(sn.OperatingCurrencies, strings.ToUpper(m[2]))
	}
	return true
}

// splitArgs splits the value part of a custom directive into tokens,
// honouring double-quoted strings. Quotes around numbers are accepted too,
// the value type decides, not the quoting.
func splitArgs(s string) []string {
	var args []string
	i := 0
	for i < len(s) {
		switch {
		case s[i] == ' ' || s[i] == '\t':
			i++
		case s[i] == '"':
			j := strings.IndexByte(s[i+1:], '"')
			if j < 0 {
				args = append(args, s[i+1:])
				return args
			}
			args = append(args, s[i+1:i+1+j])
			i += j + 2
		default:
			j := strings.IndexAny(s[i:], " \t")
			if j < 0 {
				args = append(args, s[i:])
				return args
			}
			args = append(args, s[i:i+j])
			i += j
		}
	}
	return args
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
