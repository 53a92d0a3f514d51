package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	namespacedomain "github.com/smallbiznis/quotara/internal/namespace/domain"
	"github.com/smallbiznis/quotara/pkg/db"
	"github.com/smallbiznis/quotara/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	namespaces repository.Repository[namespacedomain.Namespace]
	projects   repository.Repository[namespacedomain.Project]
	users      repository.Repository[namespacedomain.User]
}

func NewService(p ServiceParam) namespacedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("namespace.service"),
		genID: p.GenID,

		namespaces: repository.ProvideStore[namespacedomain.Namespace](p.DB),
		projects:   repository.ProvideStore[namespacedomain.Project](p.DB),
		users:      repository.ProvideStore[namespacedomain.User](p.DB),
	}
}

func (s *Service) CreateNamespace(ctx context.Context, req namespacedomain.CreateNamespaceRequest) (*namespacedomain.Namespace, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, namespacedomain.ErrInvalidName
	}

	var parent *namespacedomain.Namespace
	if req.ParentID != nil {
		parentID, err := snowflake.ParseString(strings.TrimSpace(*req.ParentID))
		if err != nil || parentID == 0 {
			return nil, namespacedomain.ErrInvalidParent
		}
		parent, err = s.GetByID(ctx, parentID)
		if err != nil {
			return nil, namespacedomain.ErrInvalidParent
		}
	}

	now := time.Now().UTC()
	id := s.genID.Generate()

	record := &namespacedomain.Namespace{
		ID:                  id,
		Name:                name,
		Slug:                slug.Make(name),
		TraversalPath:       namespacedomain.BuildTraversalPath(parent, id),
		ComputeMinutesLimit: req.ComputeMinutesLimit,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if parent != nil {
		parentID := parent.ID
		record.ParentID = &parentID
		record.RootID = parent.RootID
	} else {
		record.RootID = id
	}

	if err := s.namespaces.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*namespacedomain.Namespace, error) {
	record, err := s.namespaces.FindOne(ctx, &namespacedomain.Namespace{ID: id})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, namespacedomain.ErrNamespaceNotFound
	}
	return record, nil
}

func (s *Service) RootOf(ctx context.Context, id snowflake.ID) (*namespacedomain.Namespace, error) {
	record, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.IsRoot() {
		return record, nil
	}
	return s.GetByID(ctx, record.RootID)
}

// DescendantsOf returns the namespace itself and every namespace beneath it,
// resolved with a single traversal-path prefix scan.
func (s *Service) DescendantsOf(ctx context.Context, id snowflake.ID) ([]namespacedomain.Namespace, error) {
	root, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var result []namespacedomain.Namespace
	err = s.db.WithContext(ctx).
		Where("traversal_path LIKE ?", root.TraversalPath+"%").
		Order("traversal_path ASC").
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) AnySharedRunnersEnabled(ctx context.Context, rootID snowflake.ID) (bool, error) {
	namespaces, err := s.DescendantsOf(ctx, rootID)
	if err != nil {
		return false, err
	}
	ids := make([]snowflake.ID, 0, len(namespaces))
	for _, ns := range namespaces {
		ids = append(ids, ns.ID)
	}

	var count int64
	err = s.db.WithContext(ctx).
		Model(&namespacedomain.Project{}).
		Where("namespace_id IN ? AND shared_runners_enabled = ?", ids, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) CreateProject(ctx context.Context, req namespacedomain.CreateProjectRequest) (*namespacedomain.Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, namespacedomain.ErrInvalidName
	}
	namespaceID, err := snowflake.ParseString(strings.TrimSpace(req.NamespaceID))
	if err != nil || namespaceID == 0 {
		return nil, namespacedomain.ErrNamespaceNotFound
	}
	if _, err := s.GetByID(ctx, namespaceID); err != nil {
		return nil, err
	}

	sharedRunners := true
	if req.SharedRunnersEnabled != nil {
		sharedRunners = *req.SharedRunnersEnabled
	}

	now := time.Now().UTC()
	record := &namespacedomain.Project{
		ID:                   s.genID.Generate(),
		NamespaceID:          namespaceID,
		Name:                 name,
		SharedRunnersEnabled: sharedRunners,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.projects.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) CreateUser(ctx context.Context, req namespacedomain.CreateUserRequest) (*namespacedomain.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, namespacedomain.ErrInvalidUsername
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = username
	}

	now := time.Now().UTC()
	record := &namespacedomain.User{
		ID:        s.genID.Generate(),
		Name:      name,
		Username:  username,
		State:     namespacedomain.UserStateActive,
		Bot:       req.Bot,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, namespacedomain.ErrInvalidUsername
		}
		return nil, err
	}
	return record, nil
}

func (s *Service) GetUser(ctx context.Context, id snowflake.ID) (*namespacedomain.User, error) {
	record, err := s.users.FindOne(ctx, &namespacedomain.User{ID: id})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, namespacedomain.ErrUserNotFound
	}
	return record, nil
}

func (s *Service) AddMember(ctx context.Context, req namespacedomain.AddMemberRequest) (*namespacedomain.Member, error) {
	namespaceID, err := snowflake.ParseString(strings.TrimSpace(req.NamespaceID))
	if err != nil || namespaceID == 0 {
		return nil, namespacedomain.ErrNamespaceNotFound
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID == 0 {
		return nil, namespacedomain.ErrUserNotFound
	}
	role, err := namespacedomain.ParseRole(strings.TrimSpace(req.Role))
	if err != nil {
		return nil, err
	}
	if _, err := s.GetByID(ctx, namespaceID); err != nil {
		return nil, err
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	record := &namespacedomain.Member{
		ID:          s.genID.Generate(),
		NamespaceID: namespaceID,
		UserID:      userID,
		Role:        role,
		State:       namespacedomain.MemberStateActive,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, namespacedomain.ErrMemberExists
		}
		return nil, err
	}
	return record, nil
}

func (s *Service) AddGroupLink(ctx context.Context, sharedNamespaceID, invitedNamespaceID snowflake.ID) (*namespacedomain.GroupLink, error) {
	if _, err := s.GetByID(ctx, sharedNamespaceID); err != nil {
		return nil, err
	}
	if _, err := s.GetByID(ctx, invitedNamespaceID); err != nil {
		return nil, err
	}

	record := &namespacedomain.GroupLink{
		ID:                 s.genID.Generate(),
		SharedNamespaceID:  sharedNamespaceID,
		InvitedNamespaceID: invitedNamespaceID,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) BanUser(ctx context.Context, rootNamespaceID, userID snowflake.ID) (*namespacedomain.NamespaceBan, error) {
	root, err := s.GetByID(ctx, rootNamespaceID)
	if err != nil {
		return nil, err
	}
	if !root.IsRoot() {
		return nil, namespacedomain.ErrNotRootNamespace
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	record := &namespacedomain.NamespaceBan{
		ID:              s.genID.Generate(),
		RootNamespaceID: rootNamespaceID,
		UserID:          userID,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			var existing namespacedomain.NamespaceBan
			lookupErr := s.db.WithContext(ctx).
				Where("root_namespace_id = ? AND user_id = ?", rootNamespaceID, userID).
				First(&existing).Error
			if lookupErr == nil {
				return &existing, nil
			}
			if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
				return nil, err
			}
			return nil, lookupErr
		}
		return nil, err
	}
	return record, nil
}
