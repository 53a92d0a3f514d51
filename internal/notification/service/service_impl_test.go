package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotara/internal/authorization"
	"github.com/smallbiznis/quotara/internal/clock"
	namespacedomain "github.com/smallbiznis/quotara/internal/namespace/domain"
	namespaceservice "github.com/smallbiznis/quotara/internal/namespace/service"
	notificationdomain "github.com/smallbiznis/quotara/internal/notification/domain"
	"github.com/smallbiznis/quotara/internal/notification/store"
	quotadomain "github.com/smallbiznis/quotara/internal/quota/domain"
	quotaservice "github.com/smallbiznis/quotara/internal/quota/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// stubAuthorizer grants per-user, recording how often it was consulted.
type stubAuthorizer struct {
	allowed map[snowflake.ID]bool
	calls   int
}

func (s *stubAuthorizer) Authorize(ctx context.Context, userID, rootNamespaceID snowflake.ID, object, action string) error {
	s.calls++
	if userID == 0 {
		return authorization.ErrInvalidActor
	}
	if !s.allowed[userID] {
		return authorization.ErrForbidden
	}
	return nil
}

type fixture struct {
	ctx   context.Context
	clock *clock.FakeClock
	authz *stubAuthorizer

	namespaceSvc    namespacedomain.Service
	quotaSvc        quotadomain.Service
	notificationSvc notificationdomain.Service
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
		&quotadomain.UsageRecord{},
		&quotadomain.Rollup{},
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
	authz := &stubAuthorizer{allowed: make(map[snowflake.ID]bool)}

	nsSvc := namespaceservice.NewService(namespaceservice.ServiceParam{
		DB:    conn,
		Log:   log,
		GenID: node,
	})
	quotaSvc := quotaservice.NewService(quotaservice.ServiceParam{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: fake,
	})
	notificationSvc := NewService(ServiceParam{
		Log:          log,
		Clock:        fake,
		Authz:        authz,
		NamespaceSvc: nsSvc,
		QuotaSvc:     quotaSvc,
		Dismissals:   store.NewMemoryStore(fake),
	})

	return &fixture{
		ctx:             context.Background(),
		clock:           fake,
		authz:           authz,
		namespaceSvc:    nsSvc,
		quotaSvc:        quotaSvc,
		notificationSvc: notificationSvc,
	}
}

// mustCreateRoot builds a root namespace with the given quota limit and a
// project with shared runners enabled, the shape that makes callouts possible.
func (f *fixture) mustCreateRoot(t *testing.T, name string, minutesLimit int64, sharedRunners bool) *namespacedomain.Namespace {
	t.Helper()
	ns, err := f.namespaceSvc.CreateNamespace(f.ctx, namespacedomain.CreateNamespaceRequest{
		Name:                name,
		ComputeMinutesLimit: &minutesLimit,
	})
	require.NoError(t, err)
	_, err = f.namespaceSvc.CreateProject(f.ctx, namespacedomain.CreateProjectRequest{
		NamespaceID:          ns.ID.String(),
		Name:                 name + "-app",
		SharedRunnersEnabled: &sharedRunners,
	})
	require.NoError(t, err)
	return ns
}

func (f *fixture) mustRecordMinutes(t *testing.T, rootID snowflake.ID, minutes float64) {
	t.Helper()
	_, err := f.quotaSvc.RecordUsage(f.ctx, quotadomain.RecordUsageRequest{
		RootNamespaceID: rootID,
		ProjectID:       snowflake.ID(1),
		RunnerID:        snowflake.ID(1),
		DeltaMinutes:    minutes,
		DeltaSeconds:    int64(minutes * 60),
	})
	require.NoError(t, err)
}

func TestEvaluate_StageFromUsage(t *testing.T) {
	f := newFixture(t)
	root := f.mustCreateRoot(t, "acme", 1000, true)

	callout, err := f.notificationSvc.Evaluate(f.ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, notificationdomain.StageNone, callout.Stage)
	assert.Equal(t, float64(0), callout.Used)

	f.mustRecordMinutes(t, root.ID, 800)
	callout, err = f.notificationSvc.Evaluate(f.ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, notificationdomain.StageWarning, callout.Stage)
	assert.Equal(t, 25, callout.StagePercentage)
	assert.Equal(t, float64(800), callout.Used)
}

func TestShowCallout_PermissionGateRunsFirst(t *testing.T) {
	f := newFixture(t)
	root := f.mustCreateRoot(t, "acme", 1000, true)
	f.mustRecordMinutes(t, root.ID, 990)

	outsider := snowflake.ID(77)
	show, callout, err := f.notificationSvc.ShowCallout(f.ctx, outsider, root.ID)
	require.NoError(t, err)
	assert.False(t, show)
	assert.Nil(t, callout)
	assert.Equal(t, 1, f.authz.calls)
}

func TestShowCallout_RequiresSharedRunners(t *testing.T) {
	f := newFixture(t)
	root := f.mustCreateRoot(t, "acme", 1000, false)
	f.mustRecordMinutes(t, root.ID, 1200)

	viewer := snowflake.ID(7)
	f.authz.allowed[viewer] = true

	show, callout, err := f.notificationSvc.ShowCallout(f.ctx, viewer, root.ID)
	require.NoError(t, err)
	assert.False(t, show)
	assert.Nil(t, callout)
}

func TestShowCallout_DismissalIsStageSpecific(t *testing.T) {
	f := newFixture(t)
	root := f.mustCreateRoot(t, "acme", 1000, true)
	viewer := snowflake.ID(7)
	f.authz.allowed[viewer] = true

	// Under threshold: nothing to show, but the evaluation is returned.
	show, callout, err := f.notificationSvc.ShowCallout(f.ctx, viewer, root.ID)
	require.NoError(t, err)
	assert.False(t, show)
	require.NotNil(t, callout)
	assert.Equal(t, notificationdomain.StageNone, callout.Stage)

	f.mustRecordMinutes(t, root.ID, 800)
	show, callout, err = f.notificationSvc.ShowCallout(f.ctx, viewer, root.ID)
	require.NoError(t, err)
	assert.True(t, show)
	assert.Equal(t, notificationdomain.StageWarning, callout.Stage)

	require.NoError(t, f.notificationSvc.Dismiss(f.ctx, viewer, root.ID))
	show, _, err = f.notificationSvc.ShowCallout(f.ctx, viewer, root.ID)
	require.NoError(t, err)
	assert.False(t, show)

	// Another user's view is unaffected by the dismissal.
	other := snowflake.ID(8)
	f.authz.allowed[other] = true
	show, _, err = f.notificationSvc.ShowCallout(f.ctx, other, root.ID)
	require.NoError(t, err)
	assert.True(t, show)

	// Crossing into danger resurfaces the callout despite the earlier
	// warning dismissal.
	f.mustRecordMinutes(t, root.ID, 160)
	show, callout, err = f.notificationSvc.ShowCallout(f.ctx, viewer, root.ID)
	require.NoError(t, err)
	assert.True(t, show)
	assert.Equal(t, notificationdomain.StageDanger, callout.Stage)
}

func TestShowCallout_DismissalExpires(t *testing.T) {
	f := newFixture(t)
	root := f.mustCreateRoot(t, "acme", 1000, true)
	viewer := snowflake.ID(7)
	f.authz.allowed[viewer] = true

	f.mustRecordMinutes(t, root.ID, 800)
	require.NoError(t, f.notificationSvc.Dismiss(f.ctx, viewer, root.ID))

	show, _, err := f.notificationSvc.ShowCallout(f.ctx, viewer, root.ID)
	require.NoError(t, err)
	assert.False(t, show)

	// Past the dismissal window the callout returns. The clock has also
	// rolled into a new billing month, so usage must accrue again.
	f.clock.Advance(notificationdomain.DismissalWindow + time.Hour)
	f.mustRecordMinutes(t, root.ID, 800)

	show, callout, err := f.notificationSvc.ShowCallout(f.ctx, viewer, root.ID)
	require.NoError(t, err)
	assert.True(t, show)
	assert.Equal(t, notificationdomain.StageWarning, callout.Stage)
}

func TestDismiss_NoActiveCallout(t *testing.T) {
	f := newFixture(t)
	root := f.mustCreateRoot(t, "acme", 1000, true)
	viewer := snowflake.ID(7)
	f.authz.allowed[viewer] = true

	err := f.notificationSvc.Dismiss(f.ctx, viewer, root.ID)
	assert.True(t, errors.Is(err, notificationdomain.ErrNoActiveCallout))
}
