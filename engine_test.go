package settle_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/settle"
	"github.com/xraph/settle/allowance"
	"github.com/xraph/settle/event"
	"github.com/xraph/settle/id"
	"github.com/xraph/settle/invoice"
	memstore "github.com/xraph/settle/store/memory"
	memtreasury "github.com/xraph/settle/treasury/memory"
	"github.com/xraph/settle/types"
)

// Principals shared across the engine tests.
var (
	alice = types.Principal("user:alice")
	bob   = types.Principal("user:bob")
	carol = types.Principal("vendor:carol")
	bot   = types.Principal("agent:research-bot")
)

// testClock is a manually advanced time source injected via WithClock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness bundles an engine over in-memory store and treasury with a
// settable clock.
type harness struct {
	engine   *settle.Engine
	treasury *memtreasury.Treasury
	clock    *testClock
}

func newHarness(t *testing.T, opts ...settle.Option) *harness {
	t.Helper()
	clk := newTestClock()
	tre := memtreasury.New()
	opts = append([]settle.Option{
		settle.WithClock(clk.Now),
		settle.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	eng := settle.New(memstore.New(), tre, opts...)
	return &harness{engine: eng, treasury: tre, clock: clk}
}

// as returns a context acting as the given principal.
func as(p types.Principal) context.Context {
	return settle.WithCaller(context.Background(), p)
}

func TestCallerRequired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.engine.CreateAllowance(ctx, bot, types.USD(1000), types.PeriodDaily, false); !errors.Is(err, settle.ErrMissingCaller) {
		t.Errorf("CreateAllowance: got %v, want ErrMissingCaller", err)
	}
	if _, err := h.engine.Spend(ctx, id.NewAllowanceID(), carol, types.USD(100)); !errors.Is(err, settle.ErrMissingCaller) {
		t.Errorf("Spend: got %v, want ErrMissingCaller", err)
	}
	if _, err := h.engine.CreateInvoice(ctx, bob, types.USD(100), "", nil, false); !errors.Is(err, settle.ErrMissingCaller) {
		t.Errorf("CreateInvoice: got %v, want ErrMissingCaller", err)
	}
	if _, err := h.engine.Subscribe(ctx, carol, types.USD(100), types.PeriodDaily, id.NewAllowanceID()); !errors.Is(err, settle.ErrMissingCaller) {
		t.Errorf("Subscribe: got %v, want ErrMissingCaller", err)
	}
}

func TestCallerFrom(t *testing.T) {
	if _, ok := settle.CallerFrom(context.Background()); ok {
		t.Error("CallerFrom on bare context reported a caller")
	}
	p, ok := settle.CallerFrom(as(alice))
	if !ok || p != alice {
		t.Errorf("CallerFrom() = %q, %v, want %q, true", p, ok, alice)
	}
}

func TestTransferHash(t *testing.T) {
	allowanceID := id.NewAllowanceID()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	h1 := settle.TransferHash(allowanceID, carol, types.USD(500), at)
	h2 := settle.TransferHash(allowanceID, carol, types.USD(500), at)
	if h1 != h2 {
		t.Errorf("hash is not deterministic: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64", len(h1))
	}
	if h1 != strings.ToLower(h1) {
		t.Errorf("hash %s is not lowercase hex", h1)
	}

	if h := settle.TransferHash(allowanceID, carol, types.USD(501), at); h == h1 {
		t.Error("hash ignores amount")
	}
	if h := settle.TransferHash(allowanceID, bob, types.USD(500), at); h == h1 {
		t.Error("hash ignores recipient")
	}
	if h := settle.TransferHash(allowanceID, carol, types.USD(500), at.Add(time.Second)); h == h1 {
		t.Error("hash ignores time")
	}
	if h := settle.TransferHash(id.NewAllowanceID(), carol, types.USD(500), at); h == h1 {
		t.Error("hash ignores allowance")
	}

	// Sub-second precision is deliberately excluded: signers pre-compute
	// the hash without knowing the exact submit instant.
	if h := settle.TransferHash(allowanceID, carol, types.USD(500), at.Add(500*time.Millisecond)); h != h1 {
		t.Error("hash should truncate to whole seconds")
	}
}

// reentrantTreasury calls back into the engine from inside Transfer,
// simulating a malicious treasury adapter.
type reentrantTreasury struct {
	engine      *settle.Engine
	allowanceID id.AllowanceID
	inner       error
}

func (r *reentrantTreasury) Transfer(ctx context.Context, from, to types.Principal, amount types.Money) error {
	_, err := r.engine.Spend(ctx, r.allowanceID, to, amount)
	r.inner = err
	return err
}

func TestReentrantTransferRejected(t *testing.T) {
	clk := newTestClock()
	rt := &reentrantTreasury{}
	eng := settle.New(memstore.New(), rt,
		settle.WithClock(clk.Now),
		settle.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	rt.engine = eng

	a, err := eng.CreateAllowance(as(alice), bot, types.USD(1000), types.PeriodDaily, false)
	if err != nil {
		t.Fatal(err)
	}
	rt.allowanceID = a.ID

	_, err = eng.Spend(as(bot), a.ID, carol, types.USD(100))
	if !errors.Is(err, settle.ErrTransferFailed) {
		t.Fatalf("outer Spend: got %v, want ErrTransferFailed", err)
	}
	if !errors.Is(rt.inner, settle.ErrReentrantCall) {
		t.Fatalf("inner Spend: got %v, want ErrReentrantCall", rt.inner)
	}

	// The aborted spend must leave the allowance untouched.
	got, err := eng.GetAllowance(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Spent.IsZero() {
		t.Errorf("Spent = %s after failed transfer, want zero", got.Spent)
	}
}

func TestEventJournal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.treasury.Mint(alice, types.USD(10000))

	a, err := h.engine.CreateAllowance(as(alice), bot, types.USD(1000), types.PeriodDaily, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Spend(as(bot), a.ID, carol, types.USD(400)); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.RevokeAllowance(as(alice), a.ID); err != nil {
		t.Fatal(err)
	}

	events, err := h.engine.ListEvents(ctx, event.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	wantKinds := []event.Kind{event.KindAllowanceCreated, event.KindSpent, event.KindAllowanceRevoked}
	if len(events) != len(wantKinds) {
		t.Fatalf("got %d events, want %d", len(events), len(wantKinds))
	}
	var lastSeq int64
	for i, e := range events {
		if e.Kind != wantKinds[i] {
			t.Errorf("event[%d].Kind = %s, want %s", i, e.Kind, wantKinds[i])
		}
		if e.Seq <= lastSeq {
			t.Errorf("event[%d].Seq = %d, not strictly increasing after %d", i, e.Seq, lastSeq)
		}
		lastSeq = e.Seq
		if e.Subject != a.ID {
			t.Errorf("event[%d].Subject = %s, want %s", i, e.Subject, a.ID)
		}
	}

	// Resume from a cursor.
	tail, err := h.engine.ListEvents(ctx, event.ListOpts{AfterSeq: events[0].Seq})
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 2 || tail[0].Kind != event.KindSpent {
		t.Errorf("AfterSeq cursor returned %d events starting with %v", len(tail), tail)
	}

	// Filter by kind.
	spends, err := h.engine.ListEvents(ctx, event.ListOpts{Kind: event.KindSpent})
	if err != nil {
		t.Fatal(err)
	}
	if len(spends) != 1 {
		t.Fatalf("kind filter returned %d events, want 1", len(spends))
	}
	if spends[0].Actor != bot {
		t.Errorf("spent event actor = %s, want %s", spends[0].Actor, bot)
	}
}

func TestListFilters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a1, err := h.engine.CreateAllowance(as(alice), bot, types.USD(1000), types.PeriodDaily, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.CreateAllowance(as(bob), bot, types.USD(1000), types.PeriodDaily, false); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.RevokeAllowance(as(alice), a1.ID); err != nil {
		t.Fatal(err)
	}

	byOwner, err := h.engine.ListAllowances(ctx, allowance.ListOpts{Owner: alice})
	if err != nil {
		t.Fatal(err)
	}
	if len(byOwner) != 1 || byOwner[0].ID != a1.ID {
		t.Errorf("owner filter returned %d allowances", len(byOwner))
	}
	active, err := h.engine.ListAllowances(ctx, allowance.ListOpts{Agent: bot, ActiveOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].Owner != bob {
		t.Errorf("active filter returned %d allowances", len(active))
	}

	inv1, err := h.engine.CreateInvoice(as(alice), bob, types.USD(100), "", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.CreateInvoice(as(carol), bob, types.USD(100), "", nil, false); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.SendInvoice(as(alice), inv1.ID); err != nil {
		t.Fatal(err)
	}

	sent, err := h.engine.ListInvoices(ctx, invoice.ListOpts{Recipient: bob, Status: invoice.StatusSent})
	if err != nil {
		t.Fatal(err)
	}
	if len(sent) != 1 || sent[0].ID != inv1.ID {
		t.Errorf("status filter returned %d invoices", len(sent))
	}
	byIssuer, err := h.engine.ListInvoices(ctx, invoice.ListOpts{Issuer: carol})
	if err != nil {
		t.Fatal(err)
	}
	if len(byIssuer) != 1 {
		t.Errorf("issuer filter returned %d invoices", len(byIssuer))
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, settle.WithBillingSweep(10, 0))
	ctx := context.Background()

	if err := h.engine.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.Stop(); err != nil {
		t.Fatal(err)
	}
}
