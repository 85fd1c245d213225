package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/kyudo-console/audit"
	"github.com/warp/kyudo-console/auth"
	"github.com/warp/kyudo-console/billing"
	"github.com/warp/kyudo-console/domain"
	"github.com/warp/kyudo-console/membership"
	"github.com/warp/kyudo-console/store/sqlite"
	"go.uber.org/zap"
)

var (
	treasurer = auth.Identity{AccountID: "treasurer", Role: auth.RoleUser, Permissions: []auth.Permission{auth.PermInvoiceAdmin}}
	alice     = auth.Identity{AccountID: "alice", Role: auth.RoleUser}
	bob       = auth.Identity{AccountID: "bob", Role: auth.RoleUser}
)

type env struct {
	store *sqlite.Store
	audit *audit.Dispatcher
	svc   *billing.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	for _, id := range []string{"treasurer", "alice", "bob"} {
		require.NoError(t, store.CreateAccount(context.Background(),
			membership.Account{ID: id, Email: id + "@club.test", PasswordHash: "x", Role: auth.RoleUser},
			membership.Profile{AccountID: id, DisplayName: id}))
	}

	d := audit.NewDispatcher(store, zap.NewNop(), audit.DefaultBuffer)
	d.Start()
	t.Cleanup(d.Stop)
	return &env{store: store, audit: d, svc: billing.NewService(store, d)}
}

func (e *env) bill(t *testing.T, accountID, amount string) *billing.Invoice {
	t.Helper()
	inv, err := e.svc.Create(context.Background(), treasurer, billing.NewInvoice{
		AccountID: accountID,
		Amount:    decimal.RequireFromString(amount),
		BilledAt:  time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC),
		Title:     "Club dues",
	})
	require.NoError(t, err)
	return inv
}

func TestCreate_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	when := time.Now()

	tests := []struct {
		name string
		in   billing.NewInvoice
		want error
	}{
		{"zero amount", billing.NewInvoice{AccountID: "alice", Amount: decimal.Zero, BilledAt: when, Title: "x"}, billing.ErrAmount},
		{"negative amount", billing.NewInvoice{AccountID: "alice", Amount: decimal.NewFromInt(-5), BilledAt: when, Title: "x"}, billing.ErrAmount},
		{"no title", billing.NewInvoice{AccountID: "alice", Amount: decimal.NewFromInt(5), BilledAt: when}, billing.ErrTitle},
		{"no date", billing.NewInvoice{AccountID: "alice", Amount: decimal.NewFromInt(5), Title: "x"}, billing.ErrBilledAt},
		{"unknown account", billing.NewInvoice{AccountID: "ghost", Amount: decimal.NewFromInt(5), BilledAt: when, Title: "x"}, billing.ErrUnknownAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Create(ctx, treasurer, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestList_MembersSeeOnlyTheirOwn(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.bill(t, "alice", "3000")
	e.bill(t, "bob", "1500.50")

	mine, err := e.svc.List(ctx, alice, billing.ListFilter{AccountID: "bob"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "alice", mine[0].AccountID)

	all, err := e.svc.List(ctx, treasurer, billing.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = e.svc.List(ctx, treasurer, billing.ListFilter{Status: "paid"})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestGet_OwnerOrAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	inv := e.bill(t, "alice", "3000")

	got, err := e.svc.Get(ctx, alice, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(3000)))

	_, err = e.svc.Get(ctx, bob, inv.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = e.svc.Get(ctx, treasurer, "missing")
	assert.ErrorIs(t, err, billing.ErrInvoiceNotFound)
}

func TestApproveRevertDelete(t *testing.T) {
	// GIVEN: two pending invoices
	e := newEnv(t)
	ctx := context.Background()
	a := e.bill(t, "alice", "3000")
	b := e.bill(t, "bob", "2000")

	// WHEN: approving both twice
	n, err := e.svc.Approve(ctx, treasurer, []string{a.ID, b.ID, a.ID, " "})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = e.svc.Approve(ctx, treasurer, []string{a.ID, b.ID})
	require.NoError(t, err)

	// THEN: the second run changes nothing
	assert.Equal(t, 0, n)

	n, err = e.svc.Revert(ctx, treasurer, []string{a.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := e.svc.Get(ctx, treasurer, a.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPending, got.Status)
	assert.Empty(t, got.ApproverID)

	n, err = e.svc.Delete(ctx, treasurer, []string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = e.svc.Approve(ctx, treasurer, nil)
	assert.ErrorIs(t, err, billing.ErrNoIDs)

	// Audit entries land in the invoice log once the dispatcher drains.
	e.audit.Stop()
	entries, err := e.store.ListEntries(ctx, audit.LogInvoice, 100)
	require.NoError(t, err)
	counts := map[string]int{}
	for _, en := range entries {
		counts[en.Action]++
	}
	assert.Equal(t, map[string]int{"created": 2, "approved": 2, "reverted": 1, "viewed": 1, "deleted": 2}, counts)
}
