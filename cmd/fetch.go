package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/beanrates"
	"github.com/etnz/beanrates/date"
	"github.com/google/subcommands"
)

type fetchCmd struct {
	date     string
	base     string
	currency string
	start    string
	end      string
	write    bool
}

func (*fetchCmd) Name() string     { return "fetch" }
func (*fetchCmd) Synopsis() string { return "previews prices from the external fetch tool" }
func (*fetchCmd) Usage() string {
	return `beanrates fetch [-date YYYY-MM-DD] [-base CUR] [-write]
beanrates fetch -currency CUR -start YYYY-MM-DD -end YYYY-MM-DD [-write]

Runs the external fetch tool and prints the proposed directive block.

In day mode (the default) it fetches every tracked currency for one day,
today unless -date is given. In range mode (-currency with -start/-end) it
fetches a single currency against its configured base, using the source
declared in the commodity's price metadata.

The ledger is never modified unless -write is given; with -write the
previewed lines are merged into the generated prices file, skipping any
(date, currency, base) already present in the ledger.
`
}

func (c *fetchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "Day to fetch, defaults to today")
	f.StringVar(&c.base, "base", "", "Base currency, for display only")
	f.StringVar(&c.currency, "currency", "", "Currency for range mode")
	f.StringVar(&c.start, "start", "", "First day of the range (range mode)")
	f.StringVar(&c.end, "end", "", "Last day of the range (range mode)")
	f.BoolVar(&c.write, "write", false, "Merge the previewed lines into the ledger")
}

func (c *fetchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, sn, err := loadSnapshot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	o := cfg.Orchestrator(sn, nil)

	var preview *beanrates.Preview
	if c.currency != "" {
		preview, err = c.previewRange(ctx, o, sn)
	} else {
		preview, err = c.previewDay(ctx, o)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("# %s\n", preview.Command)
	fmt.Printf("# %d price lines -> %s\n", preview.MatchedLines, preview.Filename)
	fmt.Print(preview.Content)

	if !c.write {
		return subcommands.ExitSuccess
	}

	writer := beanrates.NewWriter()
	var filename string
	if c.currency != "" {
		filename, err = writer.SaveRange(sn, preview.Currency, date.MustParse(preview.StartDate), date.MustParse(preview.EndDate), preview.Content)
	} else {
		filename, err = writer.Save(sn, date.MustParse(preview.Date), preview.Content)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("# saved to %s\n", filename)
	return subcommands.ExitSuccess
}

func (c *fetchCmd) previewDay(ctx context.Context, o *beanrates.Orchestrator) (*beanrates.Preview, error) {
	day := date.Today()
	if c.date != "" {
		var err error
		if day, err = date.Parse(c.date); err != nil {
			return nil, err
		}
	}
	return o.Preview(ctx, day, c.base)
}

func (c *fetchCmd) previewRange(ctx context.Context, o *beanrates.Orchestrator, sn *beanrates.Snapshot) (*beanrates.Preview, error) {
	if c.start == "" || c.end == "" {
		return nil, fmt.Errorf("range mode wants both -start and -end")
	}
	start, err := date.Parse(c.start)
	if err != nil {
		return nil, err
	}
	end, err := date.Parse(c.end)
	if err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, fmt.Errorf("-start must be before or equal to -end")
	}
	currency := strings.ToUpper(c.currency)
	src, ok := sn.PriceSources[currency]
	if !ok {
		return nil, fmt.Errorf("no price metadata found for commodity %s", currency)
	}
	return o.PreviewRange(ctx, currency, start, end, src)
}
