// Package cmd holds the beanrates subcommands.
package cmd

import (
	"flag"
	"fmt"

	"github.com/etnz/beanrates"
	"github.com/google/subcommands"
)

// Register the subcommands.
func Register(c *subcommands.Commander) {
	c.Register(&serveCmd{}, "server")
	c.Register(&fetchCmd{}, "prices")
	c.Register(&reportCmd{}, "reports")
}

var configFile = flag.String("config", "beanrates.yaml", "Path to the configuration file")
var ledgerFile = flag.String("ledger", "", "Path to the top-level ledger file (overrides the configuration file)")

// loadConfig is the central function to resolve the effective configuration.
func loadConfig() (*beanrates.Config, error) {
	cfg, err := beanrates.LoadConfig(*configFile)
	if err != nil {
		return nil, err
	}
	if *ledgerFile != "" {
		cfg.Ledger = *ledgerFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSnapshot resolves the configuration and loads the ledger snapshot.
func loadSnapshot() (*beanrates.Config, *beanrates.Snapshot, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	sn, err := beanrates.Load(cfg.Ledger)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range sn.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	return cfg, sn, nil
}
