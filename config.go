package beanrates

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/etnz/beanrates/date"
	"gopkg.in/yaml.v3"
)

// Config holds the server configuration.
type Config struct {
	Ledger string `yaml:"ledger"` // path to the top-level ledger file
	Listen string `yaml:"listen"` // HTTP listen address
	Prefix string `yaml:"prefix"` // URL prefix of the API
	Fetch  struct {
		Tool    string `yaml:"tool"`
		Timeout string `yaml:"timeout"` // a time.Duration string, e.g. "90s"
	} `yaml:"fetch"`
}

// LoadConfig reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error: everything can be
// set through the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("BEANRATES_LEDGER"); v != "" {
		cfg.Ledger = v
	}
	if v := os.Getenv("BEANRATES_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("BEANRATES_FETCH_TOOL"); v != "" {
		cfg.Fetch.Tool = v
	}

	// Defaults
	if cfg.Listen == "" {
		cfg.Listen = ":5100"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "/currency_tracker/"
	}
	if cfg.Fetch.Tool == "" {
		cfg.Fetch.Tool = DefaultFetchTool
	}

	return cfg, nil
}

// Validate checks that all required fields are set and well formed.
func (c *Config) Validate() error {
	if c.Ledger == "" {
		return fmt.Errorf("ledger is required (config file or BEANRATES_LEDGER)")
	}
	if _, err := c.FetchTimeout(); err != nil {
		return err
	}
	return nil
}

// FetchTimeout returns the configured fetch timeout, defaulting when unset.
func (c *Config) FetchTimeout() (time.Duration, error) {
	if c.Fetch.Timeout == "" {
		return DefaultFetchTimeout, nil
	}
	d, err := time.ParseDuration(c.Fetch.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid fetch.timeout %q: %w", c.Fetch.Timeout, err)
	}
	return d, nil
}

// Orchestrator builds the fetch orchestrator for a loaded snapshot.
func (c *Config) Orchestrator(sn *Snapshot, runner Runner) *Orchestrator {
	timeout, _ := c.FetchTimeout() // Validate has already vetted it
	return &Orchestrator{
		Ledger:      c.Ledger,
		Tool:        c.Fetch.Tool,
		Timeout:     timeout,
		Multipliers: sn.Multipliers,
		Runner:      runner,
	}
}

// TrackerConfig is the payload of the config endpoint: everything the
// dashboard needs to initialize its currency selectors.
type TrackerConfig struct {
	Currencies          []string   `json:"currencies"`
	DefaultCurrency     string     `json:"defaultCurrency"`
	DefaultBaseCurrency string     `json:"defaultBaseCurrency"`
	FilterFirst         *date.Date `json:"filterFirst"`
	FilterLast          *date.Date `json:"filterLast"`
}

// NewTrackerConfig computes the dashboard defaults from a snapshot, honouring
// the host's active time filter r (nil when no filter is set).
//
// Currencies is the sorted union of the ledger's operating currencies and
// every code seen in the filtered price observations. The default base is the
// first operating currency; without operating currencies it prefers the first
// real ISO currency over commodity codes.
func NewTrackerConfig(sn *Snapshot, r *date.Range) TrackerConfig {
	set := make(map[string]bool)
	for _, c := range sn.OperatingCurrencies {
		set[c] = true
	}
	for _, p := range Clamp(sn.Prices, r) {
		set[p.Currency] = true
		set[p.Base] = true
	}
	currencies := make([]string, 0, len(set))
	for c := range set {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	base := ""
	switch {
	case len(sn.OperatingCurrencies) > 0:
		base = sn.OperatingCurrencies[0]
	case len(currencies) > 0:
		base = currencies[0]
		for _, c := range currencies {
			if money.GetCurrency(c) != nil {
				base = c
				break
			}
		}
	}

	currency := base
	for _, c := range currencies {
		if c != "" && c != base {
			currency = c
			break
		}
	}

	cfg := TrackerConfig{
		Currencies:          currencies,
		DefaultCurrency:     currency,
		DefaultBaseCurrency: base,
	}
	if r != nil {
		first, last := r.From, r.To
		cfg.FilterFirst = &first
		cfg.FilterLast = &last
	}
	return cfg
}
