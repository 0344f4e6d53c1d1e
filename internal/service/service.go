// Package service holds the business rules of the credit and purchase
// engine.
//
// THE LAYERS:
//
//	Handler (HTTP)       → parses requests, writes responses
//	Service (this pkg)   → validates, authorises, runs units of work
//	Repository           → reads/writes the store
//
// UNITS OF WORK:
// Every operation that changes state opens one repository.Scope, does all
// of its reads and writes through that scope, and releases it with
// `defer scope.End()`. The ledgers (CurrencyLedger, PurchaseLedger) never
// open scopes themselves; they take the caller's scope as a parameter, so
// the Orchestrator can combine several ledger steps into a single atomic
// change.
//
// While a scope is open only its own repositories may be used. The store
// serialises scopes, so calling the store directly from inside a scope
// blocks.
package service

import (
	"github.com/sakif/recshare/internal/repository"
)

// Pagination limits shared by every search.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// pageOptions clamps page (1-based) and perPage to sane values and converts
// them to repository.ListOptions.
func pageOptions(page, perPage int) (repository.ListOptions, int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return repository.ListOptions{Limit: perPage, Offset: (page - 1) * perPage}, page, perPage
}
