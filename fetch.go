package beanrates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/etnz/beanrates/date"
	"github.com/shopspring/decimal"
)

// DefaultFetchTool is the external price-fetch command.
const DefaultFetchTool = "bean-price"

// DefaultFetchTimeout bounds one fetch-tool invocation.
const DefaultFetchTimeout = 90 * time.Second

// Runner executes the external fetch tool and captures its stdout. It exists
// as a seam: production uses the real subprocess, tests inject a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout []byte, err error)
}

// ExecRunner runs the tool as a real subprocess, bounded by the context.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	err := cmd.Run()
	switch {
	case err == nil:
		return out.Bytes(), nil
	case ctx.Err() == context.DeadlineExceeded:
		return nil, fmt.Errorf("%s timed out", name)
	case errors.Is(err, exec.ErrNotFound):
		return nil, fmt.Errorf("%s executable not found on PATH", name)
	default:
		msg := strings.TrimSpace(errBuf.String())
		if msg != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
}

// Preview is a proposed, uncommitted block of directive text returned by the
// fetch pipeline for review. It lives only for the preview/confirm exchange.
type Preview struct {
	Date         string `json:"date,omitempty"`
	Currency     string `json:"currency,omitempty"`
	StartDate    string `json:"startDate,omitempty"`
	EndDate      string `json:"endDate,omitempty"`
	Base         string `json:"base,omitempty"`
	Command      string `json:"command"`
	Filename     string `json:"filename"`
	Content      string `json:"content"`
	MatchedLines int    `json:"matchedLines"`
}

// Orchestrator builds and runs the external fetch command and turns its raw
// output into a Preview. It never mutates the ledger: committing a preview is
// the Writer's job, on explicit confirmation only.
type Orchestrator struct {
	Ledger      string // path to the top-level ledger file
	Tool        string // fetch command, DefaultFetchTool when empty
	Timeout     time.Duration
	Multipliers map[string]decimal.Decimal
	Runner      Runner
}

func (o *Orchestrator) tool() string {
	if o.Tool == "" {
		return DefaultFetchTool
	}
	return o.Tool
}

func (o *Orchestrator) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultFetchTimeout
	}
	return o.Timeout
}

func (o *Orchestrator) runner() Runner {
	if o.Runner == nil {
		return ExecRunner{}
	}
	return o.Runner
}

func (o *Orchestrator) run(ctx context.Context, args []string) (cmdline string, raw string, err error) {
	cmdline = o.tool() + " " + strings.Join(args, " ")
	ctx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()
	out, err := o.runner().Run(ctx, o.tool(), args...)
	if err != nil {
		return cmdline, "", err
	}
	return cmdline, string(out), nil
}

// Preview fetches the rates of every tracked currency for one day.
// The base currency is echoed back for display, the tool itself derives the
// pairs from the ledger.
func (o *Orchestrator) Preview(ctx context.Context, day date.Date, base string) (*Preview, error) {
	args := []string{o.Ledger, "-i", "-c", "--date=" + day.String()}
	cmdline, raw, err := o.run(ctx, args)
	if err != nil {
		return nil, err
	}
	content, matched := ProcessOutput(raw, o.Multipliers)
	if matched == 0 && strings.TrimSpace(content) == "" {
		content = fmt.Sprintf("; no prices found for %s\n", day)
	}
	filename, err := outputPath(ledgerDir(o.Ledger), dayFileName(day))
	if err != nil {
		return nil, err
	}
	return &Preview{
		Date:         day.String(),
		Base:         base,
		Command:      cmdline,
		Filename:     filename,
		Content:      content,
		MatchedLines: matched,
	}, nil
}

// PreviewRange fetches one currency against its configured base over a date
// span, using the source declared in the commodity's price metadata.
func (o *Orchestrator) PreviewRange(ctx context.Context, currency string, start, end date.Date, src PriceSource) (*Preview, error) {
	args := []string{
		"-e", src.Base + ":" + src.Source,
		"--date-start=" + start.String(),
		"--date-end=" + end.String(),
	}
	cmdline, raw, err := o.run(ctx, args)
	if err != nil {
		return nil, err
	}
	content, matched := ProcessOutput(raw, o.Multipliers)
	if matched == 0 && strings.TrimSpace(content) == "" {
		content = fmt.Sprintf("; no prices found for %s between %s and %s\n", currency, start, end)
	}
	filename, err := outputPath(ledgerDir(o.Ledger), rangeFileName(currency, start, end))
	if err != nil {
		return nil, err
	}
	return &Preview{
		Currency:     currency,
		StartDate:    start.String(),
		EndDate:      end.String(),
		Base:         src.Base,
		Command:      cmdline,
		Filename:     filename,
		Content:      content,
		MatchedLines: matched,
	}, nil
}

// fetchedPriceRe recognizes one price directive line in the fetch tool output:
// YYYY-MM-DD price COMMODITY VALUE CURRENCY
var fetchedPriceRe = regexp.MustCompile(`^([\d-]+)\s+price\s+([\w-]+)\s+([\d.]+)\s+([\w-]+)\s*$`)

// ProcessOutput rewrites the raw fetch-tool output into the proposed
// directive block. Valid price lines are counted, rewritten with their
// commodity multiplier when one is configured, and dropped when the
// resulting value is not strictly positive. Any other line is kept verbatim
// for visibility but not counted, whatever its length.
func ProcessOutput(raw string, multipliers map[string]decimal.Decimal) (content string, matched int) {
	lines := strings.Split(raw, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	var out []string
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		m := fetchedPriceRe.FindStringSubmatch(line)
		if m == nil {
			out = append(out, line)
			continue
		}
		day, commodity, rawValue, currency := m[1], m[2], m[3], m[4]
		value, err := decimal.NewFromString(rawValue)
		if err != nil {
			out = append(out, line)
			continue
		}
		matched++
		if mult, ok := multipliers[commodity]; ok {
			value = value.Mul(mult)
		}
		if !value.IsPositive() {
			continue
		}
		out = append(out, fmt.Sprintf("%s price %-20s %s %s", day, commodity, value.String(), currency))
	}
	if len(out) == 0 {
		return "", matched
	}
	return strings.Join(out, "\n") + "\n", matched
}
