package settle_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/settle"
	"github.com/xraph/settle/event"
	"github.com/xraph/settle/store/memory"
	memtreasury "github.com/xraph/settle/treasury/memory"
	"github.com/xraph/settle/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store and treasury (memory for demo, use PostgreSQL and a
		// real asset ledger in production)
		store := memory.New()
		treasury := memtreasury.New()
		treasury.Mint("user:alice", types.USD(100000))

		// Initialize the settlement engine
		engine := settle.New(store, treasury,
			settle.WithLogger(slog.Default()),
			settle.WithBillingSweep(100, time.Minute),
		)

		// Start the engine
		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		// Grant an agent a daily spending limit
		ctx = settle.WithCaller(ctx, "user:alice")
		a, err := engine.CreateAllowance(ctx, "agent:research-bot", types.USD(5000), types.PeriodDaily, false)
		if err != nil {
			t.Fatal(err)
		}

		// The agent spends against its allowance
		agentCtx := settle.WithCaller(context.Background(), "agent:research-bot")
		res, err := engine.Spend(agentCtx, a.ID, "vendor:data-api", types.USD(250)) // $2.50
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("spent $2.50, remaining %s, tx %s\n", res.Remaining, res.TxHash)

		// Invoice another agent with escrow custody
		inv, err := engine.CreateInvoice(ctx, "user:bob", types.USD(10000), "research report", nil, true)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := engine.SendInvoice(ctx, inv.ID); err != nil {
			t.Fatal(err)
		}

		// The recipient pays; full payment settles with a 5% protocol fee
		treasury.Mint("user:bob", types.USD(10000))
		bobCtx := settle.WithCaller(context.Background(), "user:bob")
		paid, err := engine.PayInvoice(bobCtx, inv.ID, types.USD(10000))
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("invoice %s settled: %s\n", paid.ID, paid.Status)

		// Subscribe the agent to a recurring service
		sub, err := engine.Subscribe(agentCtx, "vendor:data-api", types.USD(500), types.PeriodDaily, a.ID)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("subscription %s next bills at %s\n", sub.ID, sub.NextBilling)
	})

	// Test Money examples from README
	t.Run("MoneyExamples", func(t *testing.T) {
		price := types.USD(4900) // $49.00
		if price.String() != "$49.00" {
			t.Errorf("got %s", price)
		}

		fee := price.BasisPoints(500) // 5%
		if !fee.Equal(types.USD(245)) {
			t.Errorf("fee = %s, want $2.45", fee)
		}

		total := types.Sum(price, types.USD(100), types.USD(50))
		if !total.Equal(types.USD(5050)) {
			t.Errorf("total = %s, want $50.50", total)
		}
	})

	// Test event journal example from README
	t.Run("EventJournalExample", func(t *testing.T) {
		store := memory.New()
		treasury := memtreasury.New()
		engine := settle.New(store, treasury)

		ctx := settle.WithCaller(context.Background(), "user:alice")
		if _, err := engine.CreateAllowance(ctx, "agent:bot", types.USD(1000), types.PeriodWeekly, false); err != nil {
			t.Fatal(err)
		}

		events, err := engine.ListEvents(context.Background(), event.ListOpts{})
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range events {
			log.Printf("seq=%d kind=%s subject=%s\n", e.Seq, e.Kind, e.Subject)
		}
	})
}
