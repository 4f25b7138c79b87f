// Package settle provides an embeddable settlement engine for autonomous
// software agents.
//
// Settle is designed as a library, not a service. Import it directly into
// your Go application and wire it to your own transport and asset ledger.
// It provides:
//
//   - Periodic spending allowances with daily/weekly/monthly limits
//   - Multi-sig approval gating for high-value agent transfers
//   - Escrow-backed invoicing with a protocol fee on settlement
//   - Validator-majority dispute resolution over escrowed funds
//   - Recurring subscription billing with bounded retries and proration
//   - An append-only domain event journal for out-of-process consumers
//
// # Quick Start
//
// Create an engine with your preferred store and a treasury adapter for
// your asset ledger:
//
//	import (
//	    "github.com/xraph/settle"
//	    "github.com/xraph/settle/store/postgres"
//	    "github.com/xraph/settle/treasury"
//	)
//
//	// Initialize store
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	eng := settle.New(store, myTreasury)
//
//	// Start the engine (migrates, begins background workers)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Every operation acts on behalf of a caller principal carried in the
// context:
//
//	ctx = settle.WithCaller(ctx, "acct:owner")
//
// Allowances grant an agent a periodic spending limit:
//
//	a, err := eng.CreateAllowance(ctx, "acct:agent", settle.USD(100_000), types.PeriodMonthly, false)
//
// The agent spends against it, with the limit, the period reset, and the
// multi-sig gate enforced atomically:
//
//	res, err := eng.Spend(agentCtx, a.ID, "acct:merchant", settle.USD(4_000))
//
// Invoices hold payments in escrow until settlement splits the balance
// between the issuer and the protocol fee pool; subscriptions charge an
// allowance each interval and expire after repeated failures.
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit (cents for USD, pence for GBP, etc).
//
// # Atomicity
//
// Each operation either fully commits or leaves no trace: all fallible
// steps, including the outbound asset transfer, run before the first
// record write, and operations touching the same entity serialize on a
// per-entity critical section. Re-entering the engine for an entity the
// current call already holds (for example from a treasury callback) is
// rejected rather than deadlocked.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	alw_01h2xcejqtf2nbrexx3vqjhp41  // Allowance ID
//	inv_01h455vb4pex5vsknk084sn02q  // Invoice ID
//	sub_01h2xcejqtf2nbrexx3vqjhp41  // Subscription ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package settle
