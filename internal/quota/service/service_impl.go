package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotara/internal/clock"
	"github.com/smallbiznis/quotara/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/quotara/internal/quota/domain"
	"github.com/smallbiznis/quotara/pkg/db"
	"github.com/smallbiznis/quotara/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewService(p ServiceParam) quotadomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("quota.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) FindOrCreateCurrent(ctx context.Context, rootNamespaceID, projectID, runnerID snowflake.ID) (*quotadomain.UsageRecord, error) {
	month := quotadomain.MonthStart(s.clock.Now())
	return s.findOrCreate(ctx, rootNamespaceID, projectID, runnerID, month)
}

// findOrCreate inserts the ledger row optimistically; most calls after the
// first hit the conflict path and resolve with a single re-read. No lock is
// taken on the hot key.
func (s *Service) findOrCreate(ctx context.Context, rootNamespaceID, projectID, runnerID snowflake.ID, month time.Time) (*quotadomain.UsageRecord, error) {
	now := s.clock.Now()
	record := &quotadomain.UsageRecord{
		ID:              s.genID.Generate(),
		RootNamespaceID: rootNamespaceID,
		ProjectID:       projectID,
		RunnerID:        runnerID,
		BillingMonth:    month,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "root_namespace_id"},
			{Name: "project_id"},
			{Name: "runner_id"},
			{Name: "billing_month"},
		},
		DoNothing: true,
	}).Create(record)
	if res.Error != nil {
		// Drivers without ON CONFLICT support surface the race as a
		// duplicate-key error instead of a zero rows-affected insert.
		if !db.IsDuplicateKeyErr(res.Error) {
			return nil, res.Error
		}
	} else if res.RowsAffected > 0 {
		return record, nil
	}

	existing, err := s.lookup(ctx, rootNamespaceID, projectID, runnerID, month)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, quotadomain.ErrUsageRecordNotFound
	}
	return existing, nil
}

func (s *Service) lookup(ctx context.Context, rootNamespaceID, projectID, runnerID snowflake.ID, month time.Time) (*quotadomain.UsageRecord, error) {
	var record quotadomain.UsageRecord
	err := s.db.WithContext(ctx).
		Where("root_namespace_id = ? AND project_id = ? AND runner_id = ? AND billing_month = ?",
			rootNamespaceID, projectID, runnerID, month).
		Take(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (s *Service) RecordUsage(ctx context.Context, req quotadomain.RecordUsageRequest) (*quotadomain.UsageRecord, error) {
	if req.DeltaMinutes < 0 || req.DeltaSeconds < 0 {
		s.recordWrite("rejected")
		return nil, quotadomain.ErrInvalidUsageDelta
	}

	month := req.BillingMonth
	if month.IsZero() {
		month = quotadomain.MonthStart(s.clock.Now())
	} else if err := quotadomain.ValidateBillingMonth(month); err != nil {
		s.recordWrite("rejected")
		return nil, err
	}

	record, err := s.findOrCreate(ctx, req.RootNamespaceID, req.ProjectID, req.RunnerID, month)
	if err != nil {
		s.recordWrite("error")
		return nil, err
	}

	// Increments stay in SQL so concurrent writers never clobber each other.
	err = s.db.WithContext(ctx).
		Model(&quotadomain.UsageRecord{}).
		Where("id = ?", record.ID).
		UpdateColumns(map[string]interface{}{
			"compute_minutes_used":    gorm.Expr("compute_minutes_used + ?", req.DeltaMinutes),
			"runner_duration_seconds": gorm.Expr("runner_duration_seconds + ?", req.DeltaSeconds),
			"updated_at":              s.clock.Now(),
		}).Error
	if err != nil {
		s.recordWrite("error")
		return nil, err
	}

	var fresh quotadomain.UsageRecord
	if err := s.db.WithContext(ctx).Where("id = ?", record.ID).Take(&fresh).Error; err != nil {
		s.recordWrite("error")
		return nil, err
	}

	s.recordWrite("ok")
	return &fresh, nil
}

func (s *Service) InstanceAggregate(ctx context.Context, billingMonth time.Time, runnerID *snowflake.ID) (quotadomain.AggregateTotals, error) {
	var totals quotadomain.AggregateTotals
	if err := quotadomain.ValidateBillingMonth(billingMonth); err != nil {
		return totals, err
	}

	stmt := s.db.WithContext(ctx).
		Model(&quotadomain.UsageRecord{}).
		Select("COALESCE(SUM(compute_minutes_used), 0) AS compute_minutes, COALESCE(SUM(runner_duration_seconds), 0) AS duration_seconds").
		Where("billing_month = ?", billingMonth)
	if runnerID != nil {
		stmt = stmt.Where("runner_id = ?", *runnerID)
	}

	if err := stmt.Scan(&totals).Error; err != nil {
		return quotadomain.AggregateTotals{}, err
	}
	return totals, nil
}

func (s *Service) PerRootNamespace(ctx context.Context, billingMonth time.Time, runnerID *snowflake.ID, page pagination.Pagination) ([]*quotadomain.NamespaceAggregate, *pagination.PageInfo, error) {
	if err := quotadomain.ValidateBillingMonth(billingMonth); err != nil {
		return nil, nil, err
	}

	var after *snowflake.ID
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, nil, pagination.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, nil, pagination.ErrInvalidPageToken
		}
		after = &id
	}

	limit := page.Limit()
	result, err := s.aggregateByRoot(ctx, billingMonth, runnerID, after, limit+1)
	if err != nil {
		return nil, nil, err
	}

	info := pagination.BuildCursorPageInfo(result, limit, func(agg *quotadomain.NamespaceAggregate) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: agg.RootNamespaceID.String()})
		return token
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, info, nil
}

// aggregateByRoot is the shared group-by query. A limit of zero scans the
// whole month, which the rollup job relies on.
func (s *Service) aggregateByRoot(ctx context.Context, billingMonth time.Time, runnerID, after *snowflake.ID, limit int) ([]*quotadomain.NamespaceAggregate, error) {
	stmt := s.db.WithContext(ctx).
		Model(&quotadomain.UsageRecord{}).
		Select("root_namespace_id, COALESCE(SUM(compute_minutes_used), 0) AS compute_minutes, COALESCE(SUM(runner_duration_seconds), 0) AS duration_seconds").
		Where("billing_month = ?", billingMonth).
		Group("root_namespace_id").
		Order("root_namespace_id ASC")
	if runnerID != nil {
		stmt = stmt.Where("runner_id = ?", *runnerID)
	}
	if after != nil {
		stmt = stmt.Where("root_namespace_id > ?", *after)
	}
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}

	var result []*quotadomain.NamespaceAggregate
	if err := stmt.Scan(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) RootNamespaceTotals(ctx context.Context, rootNamespaceID snowflake.ID, billingMonth time.Time) (quotadomain.AggregateTotals, error) {
	var totals quotadomain.AggregateTotals
	if err := quotadomain.ValidateBillingMonth(billingMonth); err != nil {
		return totals, err
	}

	err := s.db.WithContext(ctx).
		Model(&quotadomain.UsageRecord{}).
		Select("COALESCE(SUM(compute_minutes_used), 0) AS compute_minutes, COALESCE(SUM(runner_duration_seconds), 0) AS duration_seconds").
		Where("root_namespace_id = ? AND billing_month = ?", rootNamespaceID, billingMonth).
		Scan(&totals).Error
	if err != nil {
		return quotadomain.AggregateTotals{}, err
	}
	return totals, nil
}

func (s *Service) RollupMonth(ctx context.Context, billingMonth time.Time) (int, error) {
	if err := quotadomain.ValidateBillingMonth(billingMonth); err != nil {
		return 0, err
	}

	aggregates, err := s.aggregateByRoot(ctx, billingMonth, nil, nil, 0)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	for _, agg := range aggregates {
		row := &quotadomain.Rollup{
			ID:                    s.genID.Generate(),
			RootNamespaceID:       agg.RootNamespaceID,
			BillingMonth:          billingMonth,
			ComputeMinutesUsed:    agg.ComputeMinutes,
			RunnerDurationSeconds: agg.DurationSeconds,
			UpdatedAt:             now,
		}
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "root_namespace_id"}, {Name: "billing_month"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"compute_minutes_used",
				"runner_duration_seconds",
				"updated_at",
			}),
		}).Create(row).Error
		if err != nil {
			return 0, err
		}
	}

	return len(aggregates), nil
}

func (s *Service) recordWrite(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordUsageWrite(outcome)
}
