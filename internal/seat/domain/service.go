package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	addondomain "github.com/smallbiznis/quotara/internal/addon/domain"
	namespacedomain "github.com/smallbiznis/quotara/internal/namespace/domain"
	"github.com/smallbiznis/quotara/pkg/db/pagination"
)

// SortKey orders eligible-user listings. Unknown keys are rejected so a
// caller cannot mistake an unsupported sort for an empty result.
type SortKey string

const (
	SortUnspecified        SortKey = ""
	SortNameAsc            SortKey = "name_asc"
	SortNameDesc           SortKey = "name_desc"
	SortLastActivityOnAsc  SortKey = "last_activity_on_asc"
	SortLastActivityOnDesc SortKey = "last_activity_on_desc"
)

func ParseSortKey(value string) (SortKey, error) {
	switch SortKey(value) {
	case SortUnspecified, SortNameAsc, SortNameDesc, SortLastActivityOnAsc, SortLastActivityOnDesc:
		return SortKey(value), nil
	default:
		return "", ErrInvalidSortKey
	}
}

type EligibleUsersRequest struct {
	RootNamespaceID      snowflake.ID
	AddOnType            addondomain.AddOnType
	Search               string
	Sort                 SortKey
	FilterByAssignedSeat *bool
	Page                 pagination.Pagination
}

type Service interface {
	Assign(ctx context.Context, purchaseID, userID snowflake.ID) (*SeatAssignment, error)
	Unassign(ctx context.Context, purchaseID, userID snowflake.ID) error

	// EligibleUsers and AssignedUsers paginate by keyset on user id. Page
	// tokens are only honored under the default id ordering; combining a
	// token with an explicit sort key is rejected.
	EligibleUsers(ctx context.Context, req EligibleUsersRequest) ([]*namespacedomain.User, *pagination.PageInfo, error)
	AssignedUsers(ctx context.Context, namespaceID snowflake.ID, addOnType addondomain.AddOnType, page pagination.Pagination) ([]*namespacedomain.User, *pagination.PageInfo, error)

	CleanupExpired(ctx context.Context) (int64, error)
}

var (
	ErrAlreadyAssigned    = errors.New("already_assigned")
	ErrAssignmentNotFound = errors.New("assignment_not_found")
	ErrUserNotEligible    = errors.New("user_not_eligible")
	ErrNoSeatsAvailable   = errors.New("no_seats_available")
	ErrInvalidSortKey     = errors.New("invalid_sort_key")
)
