// Package beanrates derives time-series analytics from the price directives
// of a plain-text, append-only ledger, and orchestrates an external fetch
// tool whose output is previewed, deduplicated and merged back into the
// ledger as new directives.
//
// The package is organized around a request-scoped Snapshot of the ledger:
// availability and series queries are pure functions of one snapshot, the
// Orchestrator runs the bounded fetch subprocess without touching the
// ledger, and the Writer is the only mutating component.
package beanrates

import "github.com/shopspring/decimal"

func init() {
	// Rate values are numbers on the wire, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}
