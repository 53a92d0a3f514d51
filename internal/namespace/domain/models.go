// Package domain contains persistence models for namespaces, projects, and
// hierarchy membership.
package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// MemberRole is the access level a user holds inside a namespace.
type MemberRole string

const (
	RoleOwner      MemberRole = "owner"
	RoleMaintainer MemberRole = "maintainer"
	RoleDeveloper  MemberRole = "developer"
	RoleGuest      MemberRole = "guest"
)

// MemberState marks whether a membership currently grants access.
type MemberState string

const (
	MemberStateActive   MemberState = "active"
	MemberStateInactive MemberState = "inactive"
)

// UserState is the global account state.
type UserState string

const (
	UserStateActive  UserState = "active"
	UserStateBlocked UserState = "blocked"
)

// Namespace is an organizational unit: a group, subgroup, or personal
// namespace. Root namespaces own subscriptions and compute-minute limits.
type Namespace struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	ParentID *snowflake.ID `gorm:"index" json:"parent_id"`
	RootID   snowflake.ID `gorm:"not null;index" json:"root_id"`
	Name     string       `gorm:"type:text;not null" json:"name"`
	Slug     string       `gorm:"type:text;not null" json:"slug"`

	// TraversalPath is the materialized ancestor path ("/<root>/.../<id>/").
	// Descendant lookups are prefix scans over this column.
	TraversalPath string `gorm:"type:text;not null;index" json:"traversal_path"`

	ComputeMinutesLimit *int64            `gorm:"" json:"compute_minutes_limit"`
	Metadata            datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt           time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Namespace) TableName() string { return "namespaces" }

// IsRoot reports whether the namespace heads its hierarchy.
func (n Namespace) IsRoot() bool { return n.ParentID == nil }

// BuildTraversalPath derives the child path from the parent's path.
func BuildTraversalPath(parent *Namespace, id snowflake.ID) string {
	if parent == nil {
		return "/" + strconv.FormatInt(int64(id), 10) + "/"
	}
	return parent.TraversalPath + strconv.FormatInt(int64(id), 10) + "/"
}

// AncestorIDs parses the traversal path into the chain of ancestor IDs,
// excluding the namespace itself.
func (n Namespace) AncestorIDs() []snowflake.ID {
	parts := strings.Split(strings.Trim(n.TraversalPath, "/"), "/")
	if len(parts) <= 1 {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(parts)-1)
	for _, part := range parts[:len(parts)-1] {
		value, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, snowflake.ID(value))
	}
	return ids
}

// Project belongs to a namespace; shared-runner usage is metered per project.
type Project struct {
	ID                   snowflake.ID `gorm:"primaryKey" json:"id"`
	NamespaceID          snowflake.ID `gorm:"not null;index" json:"namespace_id"`
	Name                 string       `gorm:"type:text;not null" json:"name"`
	// No column default: gorm would treat an explicit false as unset and
	// write the default back. The service applies the enabled-by-default
	// policy before the insert.
	SharedRunnersEnabled bool         `gorm:"not null" json:"shared_runners_enabled"`
	CreatedAt            time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt            time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Project) TableName() string { return "projects" }

// User is a global account.
type User struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	Name           string       `gorm:"type:text;not null" json:"name"`
	Username       string       `gorm:"type:text;not null;uniqueIndex:ux_users_username" json:"username"`
	State          UserState    `gorm:"type:text;not null;default:active" json:"state"`
	Bot            bool         `gorm:"not null;default:false" json:"bot"`
	LastActivityOn *time.Time   `gorm:"" json:"last_activity_on"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Member grants a user a role inside one namespace.
type Member struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	NamespaceID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_members_ns_user,priority:1" json:"namespace_id"`
	UserID      snowflake.ID `gorm:"not null;index;uniqueIndex:ux_members_ns_user,priority:2" json:"user_id"`
	Role        MemberRole   `gorm:"type:text;not null" json:"role"`
	State       MemberState  `gorm:"type:text;not null;default:active" json:"state"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "members" }

// GroupLink shares one namespace's members into another namespace.
type GroupLink struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	SharedNamespaceID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_group_links,priority:2" json:"shared_namespace_id"`
	InvitedNamespaceID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_group_links,priority:1" json:"invited_namespace_id"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (GroupLink) TableName() string { return "group_links" }

// NamespaceBan excludes a user from an entire hierarchy.
type NamespaceBan struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	RootNamespaceID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_namespace_bans,priority:1" json:"root_namespace_id"`
	UserID          snowflake.ID `gorm:"not null;index;uniqueIndex:ux_namespace_bans,priority:2" json:"user_id"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (NamespaceBan) TableName() string { return "namespace_bans" }
