package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/charmbracelet/glamour"
	"github.com/etnz/beanrates"
	"github.com/etnz/beanrates/date"
	"github.com/google/subcommands"
)

type reportCmd struct {
	from string
	to   string
	raw  bool
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "prints a price availability report" }
func (*reportCmd) Usage() string {
	return `beanrates report [-from YYYY-MM-DD -to YYYY-MM-DD] [-raw]

Prints a per-day report of the price directives found in the ledger. With
-from/-to the report covers every day of the span, including days without
any directive. The report is rendered for the terminal unless -raw is set,
in which case the markdown source is printed.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "First day of the report")
	f.StringVar(&c.to, "to", "", "Last day of the report")
	f.BoolVar(&c.raw, "raw", false, "Print the markdown source instead of rendering it")
}

func (c *reportCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	_, sn, err := loadSnapshot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	var span *date.Range
	if c.from != "" || c.to != "" {
		if c.from == "" || c.to == "" {
			fmt.Fprintln(os.Stderr, "Error: -from and -to go together")
			return subcommands.ExitUsageError
		}
		from, err1 := date.Parse(c.from)
		to, err2 := date.Parse(c.to)
		if err1 != nil || err2 != nil {
			fmt.Fprintln(os.Stderr, "Error: invalid -from or -to date")
			return subcommands.ExitUsageError
		}
		r := date.NewRange(from, to)
		span = &r
	}

	av := beanrates.Aggregate(beanrates.Clamp(sn.Prices, span), span)
	md := renderAvailability(sn.Path, av)

	if c.raw {
		fmt.Print(md)
		return subcommands.ExitSuccess
	}
	out, err := glamour.Render(md, "auto")
	if err != nil {
		// fall back to the plain markdown
		fmt.Print(md)
		return subcommands.ExitSuccess
	}
	fmt.Print(out)
	return subcommands.ExitSuccess
}

const availabilityTemplate = `# Price availability for {{.Ledger}}

{{if .Range}}Covering **{{.Range}}**, {{.Total}} price directive(s) over {{len .Days}} day(s).
{{else}}The ledger holds no price directive.
{{end}}
{{if .Days}}| Date | Prices | Directives |
|------|-------:|------------|
{{range .Days}}| {{.Date}} | {{.Count}} | {{join .Directives "<br>"}} |
{{end}}{{end}}`

// renderAvailability renders the availability report to markdown.
func renderAvailability(ledger string, av beanrates.Availability) string {
	tmpl := template.Must(template.New("availability").
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(availabilityTemplate))

	total := 0
	for _, d := range av.Days {
		total += d.Count
	}
	data := struct {
		Ledger string
		Range  *date.Range
		Total  int
		Days   []beanrates.AvailabilityDay
	}{Ledger: ledger, Range: av.Range, Total: total, Days: av.Days}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return fmt.Sprintf("error rendering availability report: %v", err)
	}
	return b.String()
}
