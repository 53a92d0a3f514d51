package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotara/internal/clock"
	quotadomain "github.com/smallbiznis/quotara/internal/quota/domain"
	"github.com/smallbiznis/quotara/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
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
	if err := conn.AutoMigrate(&quotadomain.UsageRecord{}, &quotadomain.Rollup{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newTestService(t *testing.T, now time.Time) (quotadomain.Service, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fake := clock.NewFakeClock(now)
	svc := NewService(ServiceParam{
		DB:    newTestDB(t),
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})
	return svc, fake
}

func TestFindOrCreateCurrent_Idempotent(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2026, 8, 14, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	root := snowflake.ID(100)
	project := snowflake.ID(200)
	runner := snowflake.ID(300)

	first, err := svc.FindOrCreateCurrent(ctx, root, project, runner)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), first.BillingMonth)

	second, err := svc.FindOrCreateCurrent(ctx, root, project, runner)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestFindOrCreateCurrent_ConcurrentRace(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2026, 8, 14, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	root := snowflake.ID(100)
	project := snowflake.ID(200)
	runner := snowflake.ID(300)

	const writers = 8
	var wg sync.WaitGroup
	records := make([]*quotadomain.UsageRecord, writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records[i], errs[i] = svc.FindOrCreateCurrent(ctx, root, project, runner)
		}(i)
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		require.NoError(t, errs[i], "writer %d", i)
		require.NotNil(t, records[i], "writer %d", i)
		assert.Equal(t, records[0].ID, records[i].ID, "writer %d", i)
	}
}

func TestRecordUsage_RejectsNegativeDelta(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2026, 8, 14, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	req := quotadomain.RecordUsageRequest{
		RootNamespaceID: 1, ProjectID: 2, RunnerID: 3,
		DeltaMinutes: 10, DeltaSeconds: 600,
	}
	record, err := svc.RecordUsage(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 10.0, record.ComputeMinutesUsed)

	req.DeltaMinutes = -1
	_, err = svc.RecordUsage(ctx, req)
	assert.True(t, errors.Is(err, quotadomain.ErrInvalidUsageDelta))

	req.DeltaMinutes = 1
	req.DeltaSeconds = -1
	_, err = svc.RecordUsage(ctx, req)
	assert.True(t, errors.Is(err, quotadomain.ErrInvalidUsageDelta))

	// Stored values are untouched by the rejected writes.
	record, err = svc.FindOrCreateCurrent(ctx, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 10.0, record.ComputeMinutesUsed)
	assert.Equal(t, int64(600), record.RunnerDurationSeconds)
}

func TestRecordUsage_BillingMonthNormalization(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2026, 8, 14, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	req := quotadomain.RecordUsageRequest{
		RootNamespaceID: 1, ProjectID: 2, RunnerID: 3,
		BillingMonth: time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC),
		DeltaMinutes: 1,
	}
	_, err := svc.RecordUsage(ctx, req)
	assert.True(t, errors.Is(err, quotadomain.ErrInvalidBillingPeriod))

	req.BillingMonth = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	record, err := svc.RecordUsage(ctx, req)
	require.NoError(t, err)
	assert.True(t, record.BillingMonth.Equal(req.BillingMonth))
}

func TestRecordUsage_AccumulatesIncrements(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2026, 8, 14, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	req := quotadomain.RecordUsageRequest{
		RootNamespaceID: 1, ProjectID: 2, RunnerID: 3,
		DeltaMinutes: 2.5, DeltaSeconds: 150,
	}
	for i := 0; i < 4; i++ {
		_, err := svc.RecordUsage(ctx, req)
		require.NoError(t, err)
	}

	record, err := svc.FindOrCreateCurrent(ctx, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 10.0, record.ComputeMinutesUsed)
	assert.Equal(t, int64(600), record.RunnerDurationSeconds)
}

func TestAggregation_AcrossRunners(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2026, 8, 14, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	month := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	writes := []quotadomain.RecordUsageRequest{
		{RootNamespaceID: 1, ProjectID: 10, RunnerID: 100, DeltaMinutes: 5, DeltaSeconds: 300},
		{RootNamespaceID: 1, ProjectID: 10, RunnerID: 200, DeltaMinutes: 7, DeltaSeconds: 420},
		{RootNamespaceID: 2, ProjectID: 20, RunnerID: 100, DeltaMinutes: 3, DeltaSeconds: 180},
	}
	for _, w := range writes {
		_, err := svc.RecordUsage(ctx, w)
		require.NoError(t, err)
	}

	totals, err := svc.InstanceAggregate(ctx, month, nil)
	require.NoError(t, err)
	assert.Equal(t, 15.0, totals.ComputeMinutes)
	assert.Equal(t, int64(900), totals.DurationSeconds)

	runner := snowflake.ID(100)
	totals, err = svc.InstanceAggregate(ctx, month, &runner)
	require.NoError(t, err)
	assert.Equal(t, 8.0, totals.ComputeMinutes)

	perNS, pageInfo, err := svc.PerRootNamespace(ctx, month, nil, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, perNS, 2)
	assert.False(t, pageInfo.HasMore)
	assert.Equal(t, snowflake.ID(1), perNS[0].RootNamespaceID)
	assert.Equal(t, 12.0, perNS[0].ComputeMinutes)
	assert.Equal(t, snowflake.ID(2), perNS[1].RootNamespaceID)
	assert.Equal(t, 3.0, perNS[1].ComputeMinutes)

	// One namespace per page, resumable by cursor.
	firstPage, pageInfo, err := svc.PerRootNamespace(ctx, month, nil, pagination.Pagination{PageSize: 1})
	require.NoError(t, err)
	require.Len(t, firstPage, 1)
	assert.Equal(t, snowflake.ID(1), firstPage[0].RootNamespaceID)
	require.True(t, pageInfo.HasMore)

	secondPage, pageInfo, err := svc.PerRootNamespace(ctx, month, nil, pagination.Pagination{PageSize: 1, PageToken: pageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, secondPage, 1)
	assert.Equal(t, snowflake.ID(2), secondPage[0].RootNamespaceID)
	assert.False(t, pageInfo.HasMore)

	_, _, err = svc.PerRootNamespace(ctx, month, nil, pagination.Pagination{PageToken: "%%%"})
	assert.True(t, errors.Is(err, pagination.ErrInvalidPageToken))

	_, err = svc.InstanceAggregate(ctx, month.AddDate(0, 0, 1), nil)
	assert.True(t, errors.Is(err, quotadomain.ErrInvalidBillingPeriod))
}

func TestRollupMonth_Idempotent(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2026, 8, 14, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	month := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.RecordUsage(ctx, quotadomain.RecordUsageRequest{
		RootNamespaceID: 1, ProjectID: 10, RunnerID: 100, DeltaMinutes: 5,
	})
	require.NoError(t, err)

	written, err := svc.RollupMonth(ctx, month)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	_, err = svc.RecordUsage(ctx, quotadomain.RecordUsageRequest{
		RootNamespaceID: 1, ProjectID: 10, RunnerID: 100, DeltaMinutes: 5,
	})
	require.NoError(t, err)

	// A second pass updates in place rather than inserting another row.
	written, err = svc.RollupMonth(ctx, month)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	totals, err := svc.RootNamespaceTotals(ctx, 1, month)
	require.NoError(t, err)
	assert.Equal(t, 10.0, totals.ComputeMinutes)
}
