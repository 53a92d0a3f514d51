package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, userID, rootNamespaceID snowflake.ID, object, action string) error {
	if userID == 0 {
		return ErrInvalidActor
	}
	if rootNamespaceID == 0 {
		return ErrForbidden
	}

	role, err := s.roleForUser(ctx, rootNamespaceID, userID)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("user:%s", userID.String())
	roleName := fmt.Sprintf("role:%s", strings.ToLower(role))
	domain := fmt.Sprintf("namespace:%s", rootNamespaceID.String())
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("domain", domain),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) roleForUser(ctx context.Context, namespaceID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM members
		 WHERE namespace_id = ? AND user_id = ? AND state = 'active'
		 LIMIT 1`,
		namespaceID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

// ensureGrouping keeps the user's casbin grouping in step with the members
// table: a stale role binding from a previous membership is replaced.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Owner permissions
		{"role:owner", ObjectComputeMinutes, ActionCalloutView},
		{"role:owner", ObjectComputeMinutes, ActionUsageView},
		{"role:owner", ObjectAddOnPurchase, ActionPurchaseManage},
		{"role:owner", ObjectSeatAssignment, ActionSeatManage},
		{"role:owner", ObjectSeatAssignment, ActionSeatView},

		// Maintainer permissions
		{"role:maintainer", ObjectComputeMinutes, ActionCalloutView},
		{"role:maintainer", ObjectComputeMinutes, ActionUsageView},
		{"role:maintainer", ObjectSeatAssignment, ActionSeatManage},
		{"role:maintainer", ObjectSeatAssignment, ActionSeatView},

		// Developer permissions (read-only)
		{"role:developer", ObjectSeatAssignment, ActionSeatView},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
