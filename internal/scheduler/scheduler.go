package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/quotara/internal/clock"
	namespacedomain "github.com/smallbiznis/quotara/internal/namespace/domain"
	notificationdomain "github.com/smallbiznis/quotara/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/quotara/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/quotara/internal/quota/domain"
	seatdomain "github.com/smallbiznis/quotara/internal/seat/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	QuotaSvc        quotadomain.Service
	SeatSvc         seatdomain.Service
	NotificationSvc notificationdomain.Service
	Metrics         *obsmetrics.Metrics `optional:"true"`
	Config          Config              `optional:"true"`
}

type Scheduler struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   Config
	clock clock.Clock

	quotaSvc        quotadomain.Service
	seatSvc         seatdomain.Service
	notificationSvc notificationdomain.Service
	metrics         *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.QuotaSvc == nil || p.SeatSvc == nil || p.NotificationSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		quotaSvc:        p.QuotaSvc,
		seatSvc:         p.SeatSvc,
		notificationSvc: p.NotificationSvc,
		metrics:         p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	start := s.clock.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.recordRun(name, "timeout")
			s.log.Warn("job timed out",
				zap.String("job", name),
				zap.Duration("timeout", s.cfg.JobTimeout),
				zap.Error(err),
			)
		} else {
			s.recordRun(name, "error")
		}
		return fmt.Errorf("%s: %w", name, err)
	}

	s.recordRun(name, "ok")
	s.log.Debug("job finished",
		zap.String("job", name),
		zap.Duration("duration", duration),
	)
	return nil
}

func (s *Scheduler) recordRun(name, status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordSchedulerRun(name, status)
}

// RunOnce executes one scheduler cycle under the advisory lease. The lease is
// a session lock held on a dedicated connection; the jobs run on the regular
// pool so the lease never starves them of connections. Non-postgres databases
// are single-node deployments and run unguarded.
func (s *Scheduler) RunOnce(parent context.Context) error {
	if s.db.Dialector.Name() != "postgres" {
		return s.runJobs(parent)
	}

	return s.db.WithContext(parent).Connection(func(conn *gorm.DB) error {
		locked, err := acquireAdvisoryLock(parent, conn)
		if err != nil {
			return err
		}
		if !locked {
			s.log.Debug("scheduler lease held elsewhere, skipping cycle")
			return nil
		}

		runErr := s.runJobs(parent)
		if err := releaseAdvisoryLock(parent, conn); err != nil {
			s.log.Warn("failed to release scheduler lease", zap.Error(err))
		}
		return runErr
	})
}

func (s *Scheduler) runJobs(parent context.Context) error {
	var runErr error
	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"usage_rollup", s.UsageRollupJob},
		{"seat_cleanup", s.SeatCleanupJob},
		{"callout_evaluation", s.CalloutEvaluationJob},
	}
	for _, job := range jobs {
		runErr = errors.Join(runErr, s.runJob(parent, job.Name, job.Run))
	}
	return runErr
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// UsageRollupJob refreshes the usage_rollups snapshot for the current month.
func (s *Scheduler) UsageRollupJob(ctx context.Context) error {
	month := quotadomain.MonthStart(s.clock.Now())
	written, err := s.quotaSvc.RollupMonth(ctx, month)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.SetRollupBacklog(0)
	}
	if written > 0 {
		s.log.Info("usage rollup refreshed",
			zap.Time("billing_month", month),
			zap.Int("namespaces", written),
		)
	}
	return nil
}

// SeatCleanupJob removes seat assignments on purchases past the cleanup
// delay.
func (s *Scheduler) SeatCleanupJob(ctx context.Context) error {
	_, err := s.seatSvc.CleanupExpired(ctx)
	return err
}

// CalloutEvaluationJob recomputes stages for every root namespace with a
// limit set, logging those that are running low or out.
func (s *Scheduler) CalloutEvaluationJob(ctx context.Context) error {
	var roots []namespacedomain.Namespace
	err := s.db.WithContext(ctx).
		Where("parent_id IS NULL AND compute_minutes_limit IS NOT NULL").
		Order("id ASC").
		Find(&roots).Error
	if err != nil {
		return err
	}

	for _, root := range roots {
		callout, err := s.notificationSvc.Evaluate(ctx, root.ID)
		if err != nil {
			return err
		}
		if callout.Stage == notificationdomain.StageNone {
			continue
		}
		s.log.Info("compute minutes callout",
			zap.Int64("root_namespace_id", int64(root.ID)),
			zap.String("stage", string(callout.Stage)),
			zap.Float64("used", callout.Used),
		)
	}
	return nil
}
