package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	addondomain "github.com/smallbiznis/quotara/internal/addon/domain"
	namespacedomain "github.com/smallbiznis/quotara/internal/namespace/domain"
	"github.com/smallbiznis/quotara/internal/observability/metrics"
	seatdomain "github.com/smallbiznis/quotara/internal/seat/domain"
	"github.com/smallbiznis/quotara/pkg/db"
	"github.com/smallbiznis/quotara/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	NamespaceSvc namespacedomain.Service
	AddOnSvc     addondomain.Service
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	namespacesvc namespacedomain.Service
	addonsvc     addondomain.Service
	metrics      *metrics.Metrics
}

func NewService(p ServiceParam) seatdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("seat.service"),
		genID: p.GenID,

		namespacesvc: p.NamespaceSvc,
		addonsvc:     p.AddOnSvc,
		metrics:      p.Metrics,
	}
}

func (s *Service) Assign(ctx context.Context, purchaseID, userID snowflake.ID) (*seatdomain.SeatAssignment, error) {
	purchase, err := s.addonsvc.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	user, err := s.namespacesvc.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	eligible, err := s.isEligible(ctx, purchase, user)
	if err != nil {
		return nil, err
	}
	if !eligible {
		s.recordSeatOp("assign", "ineligible")
		return nil, seatdomain.ErrUserNotEligible
	}

	record := &seatdomain.SeatAssignment{
		ID:              s.genID.Generate(),
		AddOnPurchaseID: purchase.ID,
		UserID:          user.ID,
		CreatedAt:       time.Now().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-read the purchase under a row lock so two concurrent assigns
		// cannot both observe the last free seat.
		lookup := tx
		if db.SupportsRowLocking(tx) {
			lookup = lookup.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var current addondomain.AddOnPurchase
		if err := lookup.Take(&current, "id = ?", purchase.ID).Error; err != nil {
			return err
		}

		var taken int64
		if err := tx.Model(&seatdomain.SeatAssignment{}).
			Where("add_on_purchase_id = ?", current.ID).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken >= int64(current.Quantity) {
			return seatdomain.ErrNoSeatsAvailable
		}
		return tx.Create(record).Error
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			s.recordSeatOp("assign", "duplicate")
			return nil, seatdomain.ErrAlreadyAssigned
		}
		if err == seatdomain.ErrNoSeatsAvailable {
			s.recordSeatOp("assign", "exhausted")
		}
		return nil, err
	}

	s.recordSeatOp("assign", "ok")
	return record, nil
}

func (s *Service) Unassign(ctx context.Context, purchaseID, userID snowflake.ID) error {
	result := s.db.WithContext(ctx).
		Where("add_on_purchase_id = ? AND user_id = ?", purchaseID, userID).
		Delete(&seatdomain.SeatAssignment{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return seatdomain.ErrAssignmentNotFound
	}
	s.recordSeatOp("unassign", "ok")
	return nil
}

// EligibleUsers walks the hierarchy below the root namespace, pulling in
// members shared through group links, and returns each distinct active,
// non-bot, non-banned user once. Seat eligibility is rooted at the top of
// the hierarchy: a non-root namespace yields an empty result.
func (s *Service) EligibleUsers(ctx context.Context, req seatdomain.EligibleUsersRequest) ([]*namespacedomain.User, *pagination.PageInfo, error) {
	if _, err := addondomain.ParseAddOnType(string(req.AddOnType)); err != nil {
		return nil, nil, err
	}
	sort, err := seatdomain.ParseSortKey(string(req.Sort))
	if err != nil {
		return nil, nil, err
	}
	after, err := decodeUserCursor(req.Page.PageToken, sort)
	if err != nil {
		return nil, nil, err
	}

	root, err := s.namespacesvc.GetByID(ctx, req.RootNamespaceID)
	if err != nil {
		return nil, nil, err
	}
	if !root.IsRoot() {
		return []*namespacedomain.User{}, &pagination.PageInfo{}, nil
	}

	scopeIDs, err := s.hierarchyScope(ctx, root)
	if err != nil {
		return nil, nil, err
	}

	stmt := s.db.WithContext(ctx).
		Model(&namespacedomain.User{}).
		Distinct("users.*").
		Joins("JOIN members ON members.user_id = users.id").
		Where("members.namespace_id IN ?", scopeIDs).
		Where("members.state = ?", namespacedomain.MemberStateActive).
		Where("users.state = ?", namespacedomain.UserStateActive).
		Where("users.bot = ?", false).
		Where("NOT EXISTS (SELECT 1 FROM namespace_bans WHERE namespace_bans.root_namespace_id = ? AND namespace_bans.user_id = users.id)", root.ID)

	if search := strings.TrimSpace(req.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		stmt = stmt.Where("LOWER(users.name) LIKE ? OR LOWER(users.username) LIKE ?", pattern, pattern)
	}

	if req.FilterByAssignedSeat != nil {
		purchaseIDs, err := s.activePurchaseIDs(ctx, root.ID, req.AddOnType)
		if err != nil {
			return nil, nil, err
		}
		exists := "EXISTS (SELECT 1 FROM seat_assignments WHERE seat_assignments.user_id = users.id AND seat_assignments.add_on_purchase_id IN ?)"
		if *req.FilterByAssignedSeat {
			stmt = stmt.Where(exists, purchaseIDs)
		} else {
			stmt = stmt.Where("NOT "+exists, purchaseIDs)
		}
	}

	stmt = applySort(stmt, sort)
	if after != nil {
		stmt = stmt.Where("users.id > ?", *after)
	}

	limit := req.Page.Limit()
	var result []*namespacedomain.User
	if err := stmt.Limit(limit + 1).Find(&result).Error; err != nil {
		return nil, nil, err
	}
	return pageOfUsers(result, limit, sort == seatdomain.SortUnspecified)
}

func (s *Service) AssignedUsers(ctx context.Context, namespaceID snowflake.ID, addOnType addondomain.AddOnType, page pagination.Pagination) ([]*namespacedomain.User, *pagination.PageInfo, error) {
	after, err := decodeUserCursor(page.PageToken, seatdomain.SortUnspecified)
	if err != nil {
		return nil, nil, err
	}

	purchaseIDs, err := s.activePurchaseIDs(ctx, namespaceID, addOnType)
	if err != nil {
		return nil, nil, err
	}
	if len(purchaseIDs) == 0 {
		return []*namespacedomain.User{}, &pagination.PageInfo{}, nil
	}

	stmt := s.db.WithContext(ctx).
		Model(&namespacedomain.User{}).
		Distinct("users.*").
		Joins("JOIN seat_assignments ON seat_assignments.user_id = users.id").
		Where("seat_assignments.add_on_purchase_id IN ?", purchaseIDs).
		Order("users.id ASC")
	if after != nil {
		stmt = stmt.Where("users.id > ?", *after)
	}

	limit := page.Limit()
	var result []*namespacedomain.User
	if err := stmt.Limit(limit + 1).Find(&result).Error; err != nil {
		return nil, nil, err
	}
	return pageOfUsers(result, limit, true)
}

// CleanupExpired drops seat assignments of purchases that expired past the
// retention delay. Invoked from the scheduler.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	purchases, err := s.addonsvc.ReadyForCleanup(ctx)
	if err != nil {
		return 0, err
	}
	if len(purchases) == 0 {
		return 0, nil
	}

	ids := make([]snowflake.ID, 0, len(purchases))
	for _, purchase := range purchases {
		ids = append(ids, purchase.ID)
	}

	result := s.db.WithContext(ctx).
		Where("add_on_purchase_id IN ?", ids).
		Delete(&seatdomain.SeatAssignment{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Info("cleaned up expired seat assignments",
			zap.Int64("count", result.RowsAffected),
			zap.Int("purchases", len(ids)),
		)
	}
	return result.RowsAffected, nil
}

func (s *Service) isEligible(ctx context.Context, purchase *addondomain.AddOnPurchase, user *namespacedomain.User) (bool, error) {
	if user.State != namespacedomain.UserStateActive || user.Bot {
		return false, nil
	}

	// Instance-wide purchases accept any active human user.
	if purchase.NamespaceID == nil {
		return true, nil
	}

	root, err := s.namespacesvc.RootOf(ctx, *purchase.NamespaceID)
	if err != nil {
		return false, err
	}
	scopeIDs, err := s.hierarchyScope(ctx, root)
	if err != nil {
		return false, err
	}

	var banned int64
	if err := s.db.WithContext(ctx).
		Model(&namespacedomain.NamespaceBan{}).
		Where("root_namespace_id = ? AND user_id = ?", root.ID, user.ID).
		Count(&banned).Error; err != nil {
		return false, err
	}
	if banned > 0 {
		return false, nil
	}

	var memberships int64
	err = s.db.WithContext(ctx).
		Model(&namespacedomain.Member{}).
		Where("namespace_id IN ? AND user_id = ? AND state = ?", scopeIDs, user.ID, namespacedomain.MemberStateActive).
		Count(&memberships).Error
	if err != nil {
		return false, err
	}
	return memberships > 0, nil
}

// hierarchyScope resolves the namespace IDs whose members count toward the
// hierarchy: the root, its descendants, and namespaces shared in through
// group links.
func (s *Service) hierarchyScope(ctx context.Context, root *namespacedomain.Namespace) ([]snowflake.ID, error) {
	namespaces, err := s.namespacesvc.DescendantsOf(ctx, root.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]snowflake.ID, 0, len(namespaces))
	seen := make(map[snowflake.ID]struct{}, len(namespaces))
	for _, ns := range namespaces {
		ids = append(ids, ns.ID)
		seen[ns.ID] = struct{}{}
	}

	var links []namespacedomain.GroupLink
	if err := s.db.WithContext(ctx).
		Where("invited_namespace_id IN ?", ids).
		Find(&links).Error; err != nil {
		return nil, err
	}
	for _, link := range links {
		if _, ok := seen[link.SharedNamespaceID]; ok {
			continue
		}
		seen[link.SharedNamespaceID] = struct{}{}
		ids = append(ids, link.SharedNamespaceID)
	}

	return ids, nil
}

func (s *Service) activePurchaseIDs(ctx context.Context, namespaceID snowflake.ID, addOnType addondomain.AddOnType) ([]snowflake.ID, error) {
	purchases, err := s.addonsvc.ActivePurchasesForHierarchy(ctx, namespaceID, addOnType)
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(purchases))
	for _, purchase := range purchases {
		ids = append(ids, purchase.ID)
	}
	return ids, nil
}

func (s *Service) recordSeatOp(operation, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordSeatOperation(operation, outcome)
}

// decodeUserCursor resolves a page token into the keyset position. Tokens
// encode a position in the id ordering, so they only make sense with the
// default sort.
func decodeUserCursor(token string, sort seatdomain.SortKey) (*snowflake.ID, error) {
	if token == "" {
		return nil, nil
	}
	if sort != seatdomain.SortUnspecified {
		return nil, pagination.ErrInvalidPageToken
	}
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, pagination.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil {
		return nil, pagination.ErrInvalidPageToken
	}
	return &id, nil
}

// pageOfUsers truncates the over-fetched page and derives its PageInfo.
// Explicit sorts get no continuation token since the keyset cursor tracks
// the id ordering only.
func pageOfUsers(result []*namespacedomain.User, limit int, issueToken bool) ([]*namespacedomain.User, *pagination.PageInfo, error) {
	info := pagination.BuildCursorPageInfo(result, limit, func(user *namespacedomain.User) string {
		if !issueToken {
			return ""
		}
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: user.ID.String()})
		return token
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, info, nil
}

func applySort(stmt *gorm.DB, sort seatdomain.SortKey) *gorm.DB {
	switch sort {
	case seatdomain.SortNameAsc:
		return stmt.Order("users.name ASC, users.id ASC")
	case seatdomain.SortNameDesc:
		return stmt.Order("users.name DESC, users.id ASC")
	case seatdomain.SortLastActivityOnAsc:
		return stmt.Order("users.last_activity_on ASC, users.id ASC")
	case seatdomain.SortLastActivityOnDesc:
		return stmt.Order("users.last_activity_on DESC, users.id ASC")
	default:
		return stmt.Order("users.id ASC")
	}
}
