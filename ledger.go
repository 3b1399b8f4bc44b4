package beanrates

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/etnz/beanrates/date"
	"github.com/shopspring/decimal"
)

// Snapshot is a read-only view of every recognized directive in the ledger.
//
// A Snapshot is loaded once per request and never mutated afterwards, so any
// number of availability or series computations can run on it concurrently.
type Snapshot struct {
	Path                string
	Prices              []PriceObservation
	Markers             []Marker
	Multipliers         map[string]decimal.Decimal
	PriceSources        map[string]PriceSource
	OperatingCurrencies []string
	Warnings            []ParseWarning
}

var includeRe = regexp.MustCompile(`^include\s+"([^"]+)"`)

// Load reads the ledger file at path, follows its include directives, and
// indexes the directive shapes the tracker understands. Directives of any
// other shape are ignored; recognized but malformed directives are skipped
// and reported in Warnings.
func Load(path string) (*Snapshot, error) {
	sn := &Snapshot{
		Path:         path,
		Multipliers:  make(map[string]decimal.Decimal),
		PriceSources: make(map[string]PriceSource),
	}
	seen := make(map[string]bool)
	if err := sn.loadFile(path, seen, true); err != nil {
		return nil, err
	}
	return sn, nil
}

// loadFile reads one ledger file into the snapshot. Include cycles are broken
// by the seen set. A missing included file is a warning, a missing top-level
// file is an error.
func (sn *Snapshot) loadFile(path string, seen map[string]bool, top bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("cannot resolve ledger path %q: %w", path, err)
	}
	if seen[abs] {
		return nil
	}
	seen[abs] = true

	f, err := os.Open(abs)
	if err != nil {
		if !top {
			sn.Warnings = append(sn.Warnings, ParseWarning{File: path, Line: 0, Reason: fmt.Sprintf("cannot read included file: %v", err)})
			return nil
		}
		return fmt.Errorf("cannot read ledger: %w", err)
	}
	defer f.Close()

	dir := filepath.Dir(abs)
	var current *entry
	flush := func() {
		if current != nil {
			sn.decode(*current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(f)
	n := 0
	for scanner.Scan() {
		n++
		raw := strings.TrimRight(scanner.Text(), " \t\r")
		trimmed := strings.TrimSpace(raw)
		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, ";"):
			flush()
		case raw[0] == ' ' || raw[0] == '\t':
			// indented line: metadata of the current directive
			if current != nil {
				current.meta = append(current.meta, trimmed)
			}
		default:
			flush()
			if m := includeRe.FindStringSubmatch(raw); m != nil {
				target := m[1]
				if !filepath.IsAbs(target) {
					target = filepath.Join(dir, target)
				}
				if err := sn.loadFile(target, seen, false); err != nil {
					return err
				}
				continue
			}
			current = &entry{file: path, line: n, text: raw}
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("cannot read ledger %q: %w", path, err)
	}
	return nil
}

func (sn *Snapshot) decode(e entry) {
	for _, d := range decoders {
		if d(sn, e) {
			return
		}
	}
}

// Keys returns the set of (date, currency, base) keys present in the snapshot.
func (sn *Snapshot) Keys() map[string]bool {
	keys := make(map[string]bool, len(sn.Prices))
	for _, p := range sn.Prices {
		keys[p.Key()] = true
	}
	return keys
}

// Clamp returns the observations within r, preserving order.
// A nil range returns the input unchanged.
func Clamp(obs []PriceObservation, r *date.Range) []PriceObservation {
	if r == nil {
		return obs
	}
	out := make([]PriceObservation, 0, len(obs))
	for _, p := range obs {
		if r.Contains(p.Date) {
			out = append(out, p)
		}
	}
	return out
}

// ClampMarkers returns the markers within r, preserving order.
func ClampMarkers(markers []Marker, r *date.Range) []Marker {
	if r == nil {
		return markers
	}
	out := make([]Marker, 0, len(markers))
	for _, m := range markers {
		if r.Contains(m.Date) {
			out = append(out, m)
		}
	}
	return out
}
