package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateNamespaceRequest struct {
	Name                string  `json:"name"`
	ParentID            *string `json:"parent_id"`
	ComputeMinutesLimit *int64  `json:"compute_minutes_limit"`
}

type CreateProjectRequest struct {
	NamespaceID          string `json:"namespace_id"`
	Name                 string `json:"name"`
	SharedRunnersEnabled *bool  `json:"shared_runners_enabled"`
}

type CreateUserRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

type AddMemberRequest struct {
	NamespaceID string `json:"namespace_id"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
}

type Service interface {
	CreateNamespace(ctx context.Context, req CreateNamespaceRequest) (*Namespace, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Namespace, error)
	RootOf(ctx context.Context, id snowflake.ID) (*Namespace, error)
	DescendantsOf(ctx context.Context, id snowflake.ID) ([]Namespace, error)
	AnySharedRunnersEnabled(ctx context.Context, rootID snowflake.ID) (bool, error)

	CreateProject(ctx context.Context, req CreateProjectRequest) (*Project, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	GetUser(ctx context.Context, id snowflake.ID) (*User, error)
	AddMember(ctx context.Context, req AddMemberRequest) (*Member, error)
	AddGroupLink(ctx context.Context, sharedNamespaceID, invitedNamespaceID snowflake.ID) (*GroupLink, error)
	BanUser(ctx context.Context, rootNamespaceID, userID snowflake.ID) (*NamespaceBan, error)
}

var (
	ErrNamespaceNotFound = errors.New("namespace_not_found")
	ErrUserNotFound      = errors.New("user_not_found")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidUsername   = errors.New("invalid_username")
	ErrInvalidParent     = errors.New("invalid_parent")
	ErrInvalidRole       = errors.New("invalid_role")
	ErrNotRootNamespace  = errors.New("not_root_namespace")
	ErrMemberExists      = errors.New("member_exists")
)

// ParseRole validates a member role. Unknown values are rejected, not
// defaulted.
func ParseRole(value string) (MemberRole, error) {
	switch MemberRole(value) {
	case RoleOwner, RoleMaintainer, RoleDeveloper, RoleGuest:
		return MemberRole(value), nil
	default:
		return "", ErrInvalidRole
	}
}
