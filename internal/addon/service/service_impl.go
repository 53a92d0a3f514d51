package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	addondomain "github.com/smallbiznis/quotara/internal/addon/domain"
	"github.com/smallbiznis/quotara/internal/clock"
	namespacedomain "github.com/smallbiznis/quotara/internal/namespace/domain"
	"github.com/smallbiznis/quotara/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	NamespaceSvc namespacedomain.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	namespacesvc namespacedomain.Service
}

func NewService(p ServiceParam) addondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("addon.service"),
		genID: p.GenID,
		clock: p.Clock,

		namespacesvc: p.NamespaceSvc,
	}
}

func (s *Service) Create(ctx context.Context, req addondomain.CreatePurchaseRequest) (*addondomain.AddOnPurchase, error) {
	addOnType, err := addondomain.ParseAddOnType(strings.TrimSpace(req.AddOnType))
	if err != nil {
		return nil, err
	}
	if req.Quantity < 1 {
		return nil, addondomain.ErrInvalidQuantity
	}

	startedOn := addondomain.TruncateToDay(req.StartedOn)
	expiresOn := addondomain.TruncateToDay(req.ExpiresOn)
	if startedOn.IsZero() || expiresOn.IsZero() || startedOn.After(expiresOn) {
		return nil, addondomain.ErrInvalidDates
	}

	var namespaceID *snowflake.ID
	if req.NamespaceID != nil && strings.TrimSpace(*req.NamespaceID) != "" {
		parsed, err := snowflake.ParseString(strings.TrimSpace(*req.NamespaceID))
		if err != nil || parsed == 0 {
			return nil, namespacedomain.ErrNamespaceNotFound
		}
		if _, err := s.namespacesvc.GetByID(ctx, parsed); err != nil {
			return nil, err
		}
		namespaceID = &parsed
	}

	purchaseXid := strings.TrimSpace(req.PurchaseXid)
	if purchaseXid == "" {
		purchaseXid = uuid.NewString()
	}

	now := time.Now().UTC()
	record := &addondomain.AddOnPurchase{
		ID:          s.genID.Generate(),
		NamespaceID: namespaceID,
		AddOnType:   addOnType,
		Quantity:    req.Quantity,
		StartedOn:   startedOn,
		ExpiresOn:   expiresOn,
		Trial:       req.Trial,
		PurchaseXid: purchaseXid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, addondomain.ErrPurchaseExists
		}
		return nil, err
	}
	return record, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*addondomain.AddOnPurchase, error) {
	var record addondomain.AddOnPurchase
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, addondomain.ErrPurchaseNotFound
		}
		return nil, err
	}
	return &record, nil
}

// PurchasesFor lists purchases of one add-on type scoped to one namespace.
// "Active" is evaluated against the clock at query time, never stored.
func (s *Service) PurchasesFor(ctx context.Context, namespaceID snowflake.ID, addOnType addondomain.AddOnType, filter addondomain.PurchaseFilter) ([]addondomain.AddOnPurchase, error) {
	if _, err := addondomain.ParseAddOnType(string(addOnType)); err != nil {
		return nil, err
	}
	if _, err := s.namespacesvc.GetByID(ctx, namespaceID); err != nil {
		return nil, err
	}

	stmt := s.db.WithContext(ctx).
		Where("add_on_type = ? AND namespace_id = ?", addOnType, namespaceID)

	onlyActive := true
	if filter.OnlyActive != nil {
		onlyActive = *filter.OnlyActive
	}
	if onlyActive {
		today := addondomain.TruncateToDay(s.clock.Now())
		stmt = stmt.Where("started_on <= ? AND expires_on >= ?", today, today)
	}
	if filter.Trial != nil {
		stmt = stmt.Where("trial = ?", *filter.Trial)
	}

	var result []addondomain.AddOnPurchase
	if err := stmt.Order("id ASC").Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// ActivePurchasesForHierarchy returns active purchases attached to the
// namespace or any of its ancestors, plus instance-wide purchases.
func (s *Service) ActivePurchasesForHierarchy(ctx context.Context, namespaceID snowflake.ID, addOnType addondomain.AddOnType) ([]addondomain.AddOnPurchase, error) {
	if _, err := addondomain.ParseAddOnType(string(addOnType)); err != nil {
		return nil, err
	}
	ns, err := s.namespacesvc.GetByID(ctx, namespaceID)
	if err != nil {
		return nil, err
	}

	scopeIDs := append(ns.AncestorIDs(), ns.ID)
	today := addondomain.TruncateToDay(s.clock.Now())

	var result []addondomain.AddOnPurchase
	err = s.db.WithContext(ctx).
		Where("add_on_type = ?", addOnType).
		Where("namespace_id IN ? OR namespace_id IS NULL", scopeIDs).
		Where("started_on <= ? AND expires_on >= ?", today, today).
		Order("id ASC").
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) Renew(ctx context.Context, req addondomain.RenewPurchaseRequest) (*addondomain.AddOnPurchase, error) {
	purchaseID, err := snowflake.ParseString(strings.TrimSpace(req.PurchaseID))
	if err != nil || purchaseID == 0 {
		return nil, addondomain.ErrPurchaseNotFound
	}
	record, err := s.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}

	expiresOn := addondomain.TruncateToDay(req.ExpiresOn)
	if expiresOn.IsZero() || addondomain.TruncateToDay(record.StartedOn).After(expiresOn) {
		return nil, addondomain.ErrInvalidDates
	}
	quantity := record.Quantity
	if req.Quantity != nil {
		if *req.Quantity < 1 {
			return nil, addondomain.ErrInvalidQuantity
		}
		quantity = *req.Quantity
	}

	updates := map[string]any{
		"expires_on": expiresOn,
		"quantity":   quantity,
		"updated_at": time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).
		Model(&addondomain.AddOnPurchase{}).
		Where("id = ?", record.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetByID(ctx, record.ID)
}

func (s *Service) ReadyForCleanup(ctx context.Context) ([]addondomain.AddOnPurchase, error) {
	cutoff := addondomain.TruncateToDay(s.clock.Now()).Add(-addondomain.CleanupDelay)

	var result []addondomain.AddOnPurchase
	err := s.db.WithContext(ctx).
		Where("expires_on < ?", cutoff).
		Order("id ASC").
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}
