package beanrates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/etnz/beanrates/date"
	"github.com/shopspring/decimal"
)

// writeLedger writes a ledger file tree and returns the path of the top file.
func writeLedger(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return filepath.Join(dir, "main.bean")
}

func loadString(t *testing.T, ledger string) *Snapshot {
	t.Helper()
	sn, err := Load(writeLedger(t, map[string]string{"main.bean": ledger}))
	if err != nil {
		t.Fatalf("Load returned an unexpected error: %v", err)
	}
	return sn
}

func TestLoadPrices(t *testing.T) {
	sn := loadString(t, `
option "operating_currency" "USD"

2024-01-02 price EUR 1.0865 USD
2024-01-02 price CAD 0.6800 EUR
2024-01-03 price EUR 1.0940 USD
`)
	if len(sn.Prices) != 3 {
		t.Fatalf("got %d price observations, want 3", len(sn.Prices))
	}
	p := sn.Prices[0]
	if p.Date != date.MustParse("2024-01-02") || p.Currency != "EUR" || p.Base != "USD" {
		t.Errorf("first observation = %+v", p)
	}
	if !p.Value.Equal(decimal.RequireFromString("1.0865")) {
		t.Errorf("first observation value = %s, want 1.0865", p.Value)
	}
	if p.Line != "2024-01-02 price EUR 1.0865 USD" {
		t.Errorf("raw line not preserved: %q", p.Line)
	}
	if len(sn.OperatingCurrencies) != 1 || sn.OperatingCurrencies[0] != "USD" {
		t.Errorf("operating currencies = %v, want [USD]", sn.OperatingCurrencies)
	}
	if len(sn.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", sn.Warnings)
	}
}

func TestLoadMarkers(t *testing.T) {
	testCases := []struct {
		name        string
		ledger      string
		wantMarkers int
		wantWarns   int
		check       func(t *testing.T, m Marker)
	}{
		{
			name:        "full marker",
			ledger:      `2025-10-01 custom "currency-marker" "EUR" "USD" 1.14 "red" "Some comment"`,
			wantMarkers: 1,
			check: func(t *testing.T, m Marker) {
				if m.Currency != "EUR" || m.Base != "USD" || m.Color != "red" || m.Comment != "Some comment" {
					t.Errorf("marker = %+v", m)
				}
				if !m.Value.Equal(decimal.RequireFromString("1.14")) {
					t.Errorf("marker value = %s, want 1.14", m.Value)
				}
			},
		},
		{
			name:        "minimal marker without color and comment",
			ledger:      `2025-10-01 custom "currency-marker" "EUR" "USD" 1.5`,
			wantMarkers: 1,
			check: func(t *testing.T, m Marker) {
				if m.Color != "" || m.Comment != "" {
					t.Errorf("marker = %+v, want empty color and comment", m)
				}
			},
		},
		{
			name:        "quoted value is accepted",
			ledger:      `2025-10-01 custom "currency-marker" "EUR" "USD" "1.12" "red" "Target"`,
			wantMarkers: 1,
			check: func(t *testing.T, m Marker) {
				if !m.Value.Equal(decimal.RequireFromString("1.12")) {
					t.Errorf("marker value = %s, want 1.12", m.Value)
				}
			},
		},
		{
			name:        "other custom tags are ignored silently",
			ledger:      `2025-10-01 custom "not-a-marker" "EUR" "USD" 1.0`,
			wantMarkers: 0,
			wantWarns:   0,
		},
		{
			name:        "missing value is a warning",
			ledger:      `2025-10-02 custom "currency-marker" "EUR" "USD"`,
			wantMarkers: 0,
			wantWarns:   1,
		},
		{
			name:        "non numeric value is a warning",
			ledger:      `2025-10-03 custom "currency-marker" "EUR" "USD" "nope"`,
			wantMarkers: 0,
			wantWarns:   1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sn := loadString(t, tc.ledger+"\n")
			if len(sn.Markers) != tc.wantMarkers {
				t.Fatalf("got %d markers, want %d (warnings: %v)", len(sn.Markers), tc.wantMarkers, sn.Warnings)
			}
			if len(sn.Warnings) != tc.wantWarns {
				t.Errorf("got %d warnings %v, want %d", len(sn.Warnings), sn.Warnings, tc.wantWarns)
			}
			if tc.check != nil && tc.wantMarkers > 0 {
				tc.check(t, sn.Markers[0])
			}
		})
	}
}

func TestLoadCommodityMetadata(t *testing.T) {
	sn := loadString(t, `
2020-01-01 commodity EUCENT
  price_fetch_multiplier: 0.01

2020-01-01 commodity EUR
  price: "USD:yahoo/EURUSD=X"

2020-01-01 commodity BAD
  price_fetch_multiplier: "a lot"
  price: "not-a-source"
`)
	mult, ok := sn.Multipliers["EUCENT"]
	if !ok || !mult.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("EUCENT multiplier = %v (present=%v), want 0.01", mult, ok)
	}
	if _, ok := sn.Multipliers["BAD"]; ok {
		t.Errorf("malformed multiplier should be ignored")
	}
	src, ok := sn.PriceSources["EUR"]
	if !ok || src.Base != "USD" || src.Source != "yahoo/EURUSD=X" {
		t.Errorf("EUR price source = %+v (present=%v)", src, ok)
	}
	if _, ok := sn.PriceSources["BAD"]; ok {
		t.Errorf("malformed price source should be ignored")
	}
	if len(sn.Warnings) != 2 {
		t.Errorf("got warnings %v, want 2", sn.Warnings)
	}
}

func TestLoadSkipsMalformedPrice(t *testing.T) {
	sn := loadString(t, `
2024-01-02 price EUR 1.0865 USD
2024-01-02 price EUR notanumber USD
2024-01-02 price EUR 1.0865
2024-01-02 open Assets:Cash
`)
	if len(sn.Prices) != 1 {
		t.Fatalf("got %d observations, want 1", len(sn.Prices))
	}
	// two malformed price directives warn, the open directive is simply not ours
	if len(sn.Warnings) != 2 {
		t.Errorf("got warnings %v, want 2", sn.Warnings)
	}
}

func TestLoadFollowsIncludes(t *testing.T) {
	main := writeLedger(t, map[string]string{
		"main.bean": `
include "prices/prices-2024-01-02.gen.bean"
include "missing.bean"
2024-01-01 price EUR 1.10 USD
`,
		"prices/prices-2024-01-02.gen.bean": "2024-01-02 price EUR 1.0865 USD\n",
	})
	sn, err := Load(main)
	if err != nil {
		t.Fatal(err)
	}
	if len(sn.Prices) != 2 {
		t.Errorf("got %d observations, want 2 (include not followed?)", len(sn.Prices))
	}
	if len(sn.Warnings) != 1 || !strings.Contains(sn.Warnings[0].Reason, "cannot read included file") {
		t.Errorf("missing include should warn, got %v", sn.Warnings)
	}
}

func TestLoadMissingLedger(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.bean")); err == nil {
		t.Fatal("Load on a missing top-level file should fail")
	}
}

func TestClamp(t *testing.T) {
	sn := loadString(t, `
2024-01-01 price EUR 1.10 USD
2024-02-01 price EUR 1.20 USD
2024-03-01 price EUR 1.30 USD
`)
	r := date.NewRange(date.MustParse("2024-01-15"), date.MustParse("2024-02-15"))
	got := Clamp(sn.Prices, &r)
	if len(got) != 1 || got[0].Date != date.MustParse("2024-02-01") {
		t.Errorf("Clamp kept %v, want only 2024-02-01", got)
	}
	if all := Clamp(sn.Prices, nil); len(all) != 3 {
		t.Errorf("Clamp with nil range should keep everything, got %d", len(all))
	}
}
