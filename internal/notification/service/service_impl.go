package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotara/internal/authorization"
	"github.com/smallbiznis/quotara/internal/clock"
	namespacedomain "github.com/smallbiznis/quotara/internal/namespace/domain"
	notificationdomain "github.com/smallbiznis/quotara/internal/notification/domain"
	"github.com/smallbiznis/quotara/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/quotara/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	Authz        authorization.Service
	NamespaceSvc namespacedomain.Service
	QuotaSvc     quotadomain.Service
	Dismissals   notificationdomain.DismissalStore
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	log   *zap.Logger
	clock clock.Clock

	authz        authorization.Service
	namespacesvc namespacedomain.Service
	quotasvc     quotadomain.Service
	dismissals   notificationdomain.DismissalStore
	metrics      *metrics.Metrics
}

func NewService(p ServiceParam) notificationdomain.Service {
	return &Service{
		log:          p.Log.Named("notification.service"),
		clock:        p.Clock,
		authz:        p.Authz,
		namespacesvc: p.NamespaceSvc,
		quotasvc:     p.QuotaSvc,
		dismissals:   p.Dismissals,
		metrics:      p.Metrics,
	}
}

func (s *Service) Evaluate(ctx context.Context, rootNamespaceID snowflake.ID) (*notificationdomain.Callout, error) {
	root, err := s.namespacesvc.RootOf(ctx, rootNamespaceID)
	if err != nil {
		return nil, err
	}

	month := quotadomain.MonthStart(s.clock.Now())
	totals, err := s.quotasvc.RootNamespaceTotals(ctx, root.ID, month)
	if err != nil {
		return nil, err
	}

	stage := notificationdomain.ComputeStage(root.ComputeMinutesLimit, totals.ComputeMinutes)
	if s.metrics != nil {
		s.metrics.RecordCalloutStage(string(stage))
	}

	return &notificationdomain.Callout{
		RootNamespaceID: root.ID,
		Stage:           stage,
		Limit:           root.ComputeMinutesLimit,
		Used:            totals.ComputeMinutes,
		StagePercentage: stage.Percentage(),
	}, nil
}

func (s *Service) ShowCallout(ctx context.Context, userID, rootNamespaceID snowflake.ID) (bool, *notificationdomain.Callout, error) {
	root, err := s.namespacesvc.RootOf(ctx, rootNamespaceID)
	if err != nil {
		return false, nil, err
	}

	// Permission gate runs before any usage is read.
	if err := s.authz.Authorize(ctx, userID, root.ID, authorization.ObjectComputeMinutes, authorization.ActionCalloutView); err != nil {
		if errors.Is(err, authorization.ErrForbidden) || errors.Is(err, authorization.ErrInvalidActor) {
			return false, nil, nil
		}
		return false, nil, err
	}

	// A hierarchy with no shared-runner project never alerts, even past
	// threshold.
	enabled, err := s.namespacesvc.AnySharedRunnersEnabled(ctx, root.ID)
	if err != nil {
		return false, nil, err
	}
	if !enabled {
		return false, nil, nil
	}

	callout, err := s.Evaluate(ctx, root.ID)
	if err != nil {
		return false, nil, err
	}
	if callout.Stage == notificationdomain.StageNone {
		return false, callout, nil
	}

	dismissed, err := s.dismissals.Dismissed(ctx, userID, callout.Stage.FeatureID(), root.ID)
	if err != nil {
		return false, nil, err
	}
	return !dismissed, callout, nil
}

func (s *Service) Dismiss(ctx context.Context, userID, rootNamespaceID snowflake.ID) error {
	callout, err := s.Evaluate(ctx, rootNamespaceID)
	if err != nil {
		return err
	}
	if callout.Stage == notificationdomain.StageNone {
		return notificationdomain.ErrNoActiveCallout
	}

	err = s.dismissals.Dismiss(ctx, userID, callout.Stage.FeatureID(), callout.RootNamespaceID, notificationdomain.DismissalWindow)
	if err != nil {
		return err
	}

	s.log.Info("callout dismissed",
		zap.Int64("user_id", int64(userID)),
		zap.Int64("root_namespace_id", int64(callout.RootNamespaceID)),
		zap.String("stage", string(callout.Stage)),
	)
	return nil
}
