package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidActor = errors.New("invalid_actor")
)

const (
	ObjectComputeMinutes = "compute_minutes"
	ObjectAddOnPurchase  = "add_on_purchase"
	ObjectSeatAssignment = "seat_assignment"
)

const (
	ActionCalloutView    = "compute_minutes.view_callout"
	ActionUsageView      = "compute_minutes.view_usage"
	ActionPurchaseManage = "add_on_purchase.manage"
	ActionSeatManage     = "seat_assignment.manage"
	ActionSeatView       = "seat_assignment.view"
)

// Service answers "may this user perform this action within this root
// namespace". Roles come from the members table; the casbin policy maps
// roles to allowed actions.
type Service interface {
	Authorize(ctx context.Context, userID, rootNamespaceID snowflake.ID, object, action string) error
}
