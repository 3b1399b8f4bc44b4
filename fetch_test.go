package beanrates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/etnz/beanrates/date"
	"github.com/shopspring/decimal"
)

// fakeRunner returns canned output (or a canned error) and records the call.
type fakeRunner struct {
	out  string
	err  error
	name string
	args []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.name, f.args = name, args
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.out), nil
}

func multipliers(m map[string]string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = decimal.RequireFromString(v)
	}
	return out
}

// priceLine formats one rewritten output line the way ProcessOutput does.
func priceLine(day, commodity, value, currency string) string {
	return fmt.Sprintf("%s price %-20s %s %s", day, commodity, value, currency)
}

func TestProcessOutput(t *testing.T) {
	testCases := []struct {
		name        string
		raw         string
		multipliers map[string]string
		wantMatched int
		wantLines   []string
	}{
		{
			name: "valid lines counted, garbage kept but not counted",
			raw: "2026-01-01 price EUR 1.2345 USD\n" +
				"2026-01-01 price CAD 1.1111 EUR\n" +
				"garbage line\n",
			wantMatched: 2,
			wantLines: []string{
				priceLine("2026-01-01", "EUR", "1.2345", "USD"),
				priceLine("2026-01-01", "CAD", "1.1111", "EUR"),
				"garbage line",
			},
		},
		{
			name:        "zero values are dropped but still counted",
			raw:         "2026-01-01 price BTC 0.0 USD\n2026-01-01 price EUR 1.2 USD\n",
			wantMatched: 2,
			wantLines:   []string{priceLine("2026-01-01", "EUR", "1.2", "USD")},
		},
		{
			name:        "multiplier rewrites the value",
			raw:         "2026-01-01 price EUCENT 150 USD\n",
			multipliers: map[string]string{"EUCENT": "0.01"},
			wantMatched: 1,
			wantLines:   []string{priceLine("2026-01-01", "EUCENT", "1.5", "USD")},
		},
		{
			name:        "multiplier zeroing a value drops the line",
			raw:         "2026-01-01 price EUR 0 USD\n2026-01-01 price BTC 100 USD\n",
			multipliers: map[string]string{"EUR": "0.01"},
			wantMatched: 2,
			wantLines:   []string{priceLine("2026-01-01", "BTC", "100", "USD")},
		},
		{
			name:        "empty output",
			raw:         "",
			wantMatched: 0,
			wantLines:   nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			content, matched := ProcessOutput(tc.raw, multipliers(tc.multipliers))
			if matched != tc.wantMatched {
				t.Errorf("matched = %d, want %d", matched, tc.wantMatched)
			}
			var got []string
			if content != "" {
				got = strings.Split(strings.TrimRight(content, "\n"), "\n")
			}
			if len(got) != len(tc.wantLines) {
				t.Fatalf("content lines = %q, want %q", got, tc.wantLines)
			}
			for i := range got {
				if got[i] != tc.wantLines[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], tc.wantLines[i])
				}
			}
		})
	}
}

func TestProcessOutputKeepsVeryLongLines(t *testing.T) {
	// Tool noise can exceed any line-scanner buffer; the preview must carry
	// it whole, with the valid lines around it still counted.
	long := strings.Repeat("x", 128*1024)
	raw := long + "\n2026-01-01 price EUR 1.2 USD\n"

	content, matched := ProcessOutput(raw, nil)
	if matched != 1 {
		t.Errorf("matched = %d, want 1", matched)
	}
	if !strings.Contains(content, long) {
		t.Errorf("the long line was truncated, content has %d bytes", len(content))
	}
	if !strings.Contains(content, priceLine("2026-01-01", "EUR", "1.2", "USD")) {
		t.Errorf("price line after the long line is missing")
	}
}

func TestPreview(t *testing.T) {
	ledger := writeLedger(t, map[string]string{"main.bean": "2024-01-01 price EUR 1.10 USD\n"})
	runner := &fakeRunner{out: "2024-01-02 price EUR 1.0865 USD\n"}
	o := &Orchestrator{Ledger: ledger, Runner: runner}

	p, err := o.Preview(context.Background(), date.MustParse("2024-01-02"), "USD")
	if err != nil {
		t.Fatal(err)
	}
	if runner.name != DefaultFetchTool {
		t.Errorf("tool = %q, want %q", runner.name, DefaultFetchTool)
	}
	wantCmd := "bean-price " + ledger + " -i -c --date=2024-01-02"
	if p.Command != wantCmd {
		t.Errorf("command = %q, want %q", p.Command, wantCmd)
	}
	if p.MatchedLines != 1 {
		t.Errorf("matchedLines = %d, want 1", p.MatchedLines)
	}
	if !strings.Contains(p.Content, "1.0865") {
		t.Errorf("content = %q", p.Content)
	}
	if !strings.HasSuffix(p.Filename, "prices-2024-01-02.gen.bean") {
		t.Errorf("filename = %q", p.Filename)
	}
	if p.Date != "2024-01-02" || p.Base != "USD" {
		t.Errorf("preview = %+v", p)
	}
}

func TestPreviewAppliesSnapshotMultipliers(t *testing.T) {
	ledger := writeLedger(t, map[string]string{"main.bean": `
2020-01-01 commodity EUCENT
  price_fetch_multiplier: 0.01
`})
	sn, err := Load(ledger)
	if err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{out: "2026-01-01 price EUCENT 150 USD\n"}
	o := &Orchestrator{Ledger: ledger, Multipliers: sn.Multipliers, Runner: runner}

	p, err := o.Preview(context.Background(), date.MustParse("2026-01-01"), "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p.Content, " 1.5 USD") {
		t.Errorf("content = %q, want the multiplied value 1.5", p.Content)
	}
}

func TestPreviewEmptyOutputIsNotAnError(t *testing.T) {
	ledger := writeLedger(t, map[string]string{"main.bean": ""})
	o := &Orchestrator{Ledger: ledger, Runner: &fakeRunner{out: ""}}

	p, err := o.Preview(context.Background(), date.MustParse("2024-01-02"), "")
	if err != nil {
		t.Fatal(err)
	}
	if p.MatchedLines != 0 {
		t.Errorf("matchedLines = %d, want 0", p.MatchedLines)
	}
	if !strings.Contains(p.Content, "no prices found") {
		t.Errorf("content = %q, want a placeholder", p.Content)
	}
}

func TestPreviewToolFailure(t *testing.T) {
	ledger := writeLedger(t, map[string]string{"main.bean": ""})
	o := &Orchestrator{Ledger: ledger, Runner: &fakeRunner{err: errors.New("bean-price executable not found on PATH")}}

	_, err := o.Preview(context.Background(), date.MustParse("2024-01-02"), "")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v, want the tool failure surfaced", err)
	}
}

func TestPreviewRange(t *testing.T) {
	ledger := writeLedger(t, map[string]string{"main.bean": ""})
	runner := &fakeRunner{out: "2024-01-02 price EUR 1.0865 USD\n2024-01-03 price EUR 1.0940 USD\n"}
	o := &Orchestrator{Ledger: ledger, Runner: runner}

	src := PriceSource{Base: "USD", Source: "yahoo/EURUSD=X"}
	p, err := o.PreviewRange(context.Background(), "EUR", date.MustParse("2024-01-02"), date.MustParse("2024-01-03"), src)
	if err != nil {
		t.Fatal(err)
	}
	wantCmd := "bean-price -e USD:yahoo/EURUSD=X --date-start=2024-01-02 --date-end=2024-01-03"
	if p.Command != wantCmd {
		t.Errorf("command = %q, want %q", p.Command, wantCmd)
	}
	if p.MatchedLines != 2 {
		t.Errorf("matchedLines = %d, want 2", p.MatchedLines)
	}
	if !strings.HasSuffix(p.Filename, "prices-EUR-2024-01-02-2024-01-03.gen.bean") {
		t.Errorf("filename = %q", p.Filename)
	}
	if p.Currency != "EUR" || p.Base != "USD" || p.StartDate != "2024-01-02" || p.EndDate != "2024-01-03" {
		t.Errorf("preview = %+v", p)
	}
}

func TestExecRunnerMissingTool(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), "beanrates-no-such-tool-xyzzy")
	if err == nil || !strings.Contains(err.Error(), "not found on PATH") {
		t.Fatalf("err = %v, want a not-found error", err)
	}
}
