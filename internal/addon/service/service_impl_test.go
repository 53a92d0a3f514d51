package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	addondomain "github.com/smallbiznis/quotara/internal/addon/domain"
	"github.com/smallbiznis/quotara/internal/clock"
	namespacedomain "github.com/smallbiznis/quotara/internal/namespace/domain"
	namespaceservice "github.com/smallbiznis/quotara/internal/namespace/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixture struct {
	ctx          context.Context
	clock        *clock.FakeClock
	namespaceSvc namespacedomain.Service
	addOnSvc     addondomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	err = conn.AutoMigrate(
		&namespacedomain.Namespace{},
		&namespacedomain.Project{},
		&namespacedomain.User{},
		&namespacedomain.Member{},
		&namespacedomain.GroupLink{},
		&namespacedomain.NamespaceBan{},
		&addondomain.AddOnPurchase{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC))

	nsSvc := namespaceservice.NewService(namespaceservice.ServiceParam{
		DB:    conn,
		Log:   log,
		GenID: node,
	})
	addOnSvc := NewService(ServiceParam{
		DB:           conn,
		Log:          log,
		GenID:        node,
		Clock:        fake,
		NamespaceSvc: nsSvc,
	})

	return &fixture{
		ctx:          context.Background(),
		clock:        fake,
		namespaceSvc: nsSvc,
		addOnSvc:     addOnSvc,
	}
}

func (f *fixture) mustCreateNamespace(t *testing.T, name string, parent *namespacedomain.Namespace) *namespacedomain.Namespace {
	t.Helper()
	req := namespacedomain.CreateNamespaceRequest{Name: name}
	if parent != nil {
		parentID := parent.ID.String()
		req.ParentID = &parentID
	}
	ns, err := f.namespaceSvc.CreateNamespace(f.ctx, req)
	require.NoError(t, err)
	return ns
}

func (f *fixture) mustCreatePurchase(t *testing.T, ns *namespacedomain.Namespace, addOnType string, quantity int, startedOn, expiresOn time.Time, trial bool) *addondomain.AddOnPurchase {
	t.Helper()
	req := addondomain.CreatePurchaseRequest{
		AddOnType: addOnType,
		Quantity:  quantity,
		StartedOn: startedOn,
		ExpiresOn: expiresOn,
		Trial:     trial,
	}
	if ns != nil {
		nsID := ns.ID.String()
		req.NamespaceID = &nsID
	}
	purchase, err := f.addOnSvc.Create(f.ctx, req)
	require.NoError(t, err)
	return purchase
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ns := f.mustCreateNamespace(t, "acme", nil)
	nsID := ns.ID.String()
	started := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2027, 8, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		req  addondomain.CreatePurchaseRequest
		want error
	}{
		{
			name: "unknown add-on type",
			req:  addondomain.CreatePurchaseRequest{NamespaceID: &nsID, AddOnType: "unknown", Quantity: 1, StartedOn: started, ExpiresOn: expires},
			want: addondomain.ErrInvalidAddOnType,
		},
		{
			name: "zero quantity",
			req:  addondomain.CreatePurchaseRequest{NamespaceID: &nsID, AddOnType: "code_suggestions", Quantity: 0, StartedOn: started, ExpiresOn: expires},
			want: addondomain.ErrInvalidQuantity,
		},
		{
			name: "reversed dates",
			req:  addondomain.CreatePurchaseRequest{NamespaceID: &nsID, AddOnType: "code_suggestions", Quantity: 1, StartedOn: expires, ExpiresOn: started},
			want: addondomain.ErrInvalidDates,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.addOnSvc.Create(f.ctx, tc.req)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	unknownNS := snowflake.ID(999999).String()
	_, err := f.addOnSvc.Create(f.ctx, addondomain.CreatePurchaseRequest{
		NamespaceID: &unknownNS, AddOnType: "code_suggestions", Quantity: 1, StartedOn: started, ExpiresOn: expires,
	})
	assert.True(t, errors.Is(err, namespacedomain.ErrNamespaceNotFound))
}

func TestCreate_DuplicatePerTypeAndNamespace(t *testing.T) {
	f := newFixture(t)
	ns := f.mustCreateNamespace(t, "acme", nil)
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	f.mustCreatePurchase(t, ns, "code_suggestions", 5, started, expires, false)

	nsID := ns.ID.String()
	_, err := f.addOnSvc.Create(f.ctx, addondomain.CreatePurchaseRequest{
		NamespaceID: &nsID, AddOnType: "code_suggestions", Quantity: 3, StartedOn: started, ExpiresOn: expires,
	})
	assert.True(t, errors.Is(err, addondomain.ErrPurchaseExists))

	// A different add-on type on the same namespace is fine.
	f.mustCreatePurchase(t, ns, "duo_enterprise", 3, started, expires, false)
}

func TestPurchasesFor_ExpiryWindow(t *testing.T) {
	f := newFixture(t)
	ns := f.mustCreateNamespace(t, "acme", nil)
	today := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)

	expired := f.mustCreatePurchase(t, ns, "code_suggestions", 5,
		today.AddDate(-1, 0, 0), today.AddDate(0, 0, -1), false)

	active, err := f.addOnSvc.PurchasesFor(f.ctx, ns.ID, addondomain.AddOnCodeSuggestions, addondomain.PurchaseFilter{})
	require.NoError(t, err)
	assert.Empty(t, active)

	onlyActive := false
	all, err := f.addOnSvc.PurchasesFor(f.ctx, ns.ID, addondomain.AddOnCodeSuggestions, addondomain.PurchaseFilter{OnlyActive: &onlyActive})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, expired.ID, all[0].ID)

	// Boundary: expires today is still active.
	ns2 := f.mustCreateNamespace(t, "beta", nil)
	f.mustCreatePurchase(t, ns2, "code_suggestions", 5, today.AddDate(0, -1, 0), today, false)
	active, err = f.addOnSvc.PurchasesFor(f.ctx, ns2.ID, addondomain.AddOnCodeSuggestions, addondomain.PurchaseFilter{})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestPurchasesFor_TrialFilter(t *testing.T) {
	f := newFixture(t)
	ns := f.mustCreateNamespace(t, "acme", nil)
	started := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2027, 8, 1, 0, 0, 0, 0, time.UTC)

	trial := f.mustCreatePurchase(t, ns, "code_suggestions", 1, started, expires, true)
	paid := f.mustCreatePurchase(t, ns, "duo_enterprise", 1, started, expires, false)

	wantTrial := true
	result, err := f.addOnSvc.PurchasesFor(f.ctx, ns.ID, addondomain.AddOnCodeSuggestions, addondomain.PurchaseFilter{Trial: &wantTrial})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, trial.ID, result[0].ID)

	wantTrial = false
	result, err = f.addOnSvc.PurchasesFor(f.ctx, ns.ID, addondomain.AddOnDuoEnterprise, addondomain.PurchaseFilter{Trial: &wantTrial})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, paid.ID, result[0].ID)
}

func TestActivePurchasesForHierarchy(t *testing.T) {
	f := newFixture(t)
	root := f.mustCreateNamespace(t, "acme", nil)
	sub := f.mustCreateNamespace(t, "platform", root)
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	onRoot := f.mustCreatePurchase(t, root, "code_suggestions", 5, started, expires, false)
	instanceWide := f.mustCreatePurchase(t, nil, "code_suggestions", 10, started, expires, false)

	purchases, err := f.addOnSvc.ActivePurchasesForHierarchy(f.ctx, sub.ID, addondomain.AddOnCodeSuggestions)
	require.NoError(t, err)
	require.Len(t, purchases, 2)

	ids := map[snowflake.ID]bool{purchases[0].ID: true, purchases[1].ID: true}
	assert.True(t, ids[onRoot.ID])
	assert.True(t, ids[instanceWide.ID])
}

func TestRenew_ExtendsExpiryAndQuantity(t *testing.T) {
	f := newFixture(t)
	ns := f.mustCreateNamespace(t, "acme", nil)
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	purchase := f.mustCreatePurchase(t, ns, "code_suggestions", 5, started, expires, false)

	newQuantity := 8
	renewed, err := f.addOnSvc.Renew(f.ctx, addondomain.RenewPurchaseRequest{
		PurchaseID: purchase.ID.String(),
		ExpiresOn:  time.Date(2027, 9, 1, 0, 0, 0, 0, time.UTC),
		Quantity:   &newQuantity,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, renewed.Quantity)
	assert.Equal(t, time.Date(2027, 9, 1, 0, 0, 0, 0, time.UTC), renewed.ExpiresOn)

	badQuantity := 0
	_, err = f.addOnSvc.Renew(f.ctx, addondomain.RenewPurchaseRequest{
		PurchaseID: purchase.ID.String(),
		ExpiresOn:  time.Date(2027, 9, 1, 0, 0, 0, 0, time.UTC),
		Quantity:   &badQuantity,
	})
	assert.True(t, errors.Is(err, addondomain.ErrInvalidQuantity))
}

func TestReadyForCleanup(t *testing.T) {
	f := newFixture(t)
	ns := f.mustCreateNamespace(t, "acme", nil)
	today := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)

	// Expired 20 days ago, past the 14-day delay.
	old := f.mustCreatePurchase(t, ns, "code_suggestions", 5,
		today.AddDate(-1, 0, 0), today.AddDate(0, 0, -20), false)
	// Expired 3 days ago, still inside the delay.
	f.mustCreatePurchase(t, ns, "duo_enterprise", 5,
		today.AddDate(-1, 0, 0), today.AddDate(0, 0, -3), false)

	ready, err := f.addOnSvc.ReadyForCleanup(f.ctx)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, old.ID, ready[0].ID)
}
