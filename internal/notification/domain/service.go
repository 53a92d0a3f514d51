package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// DismissalWindow is how long a dismissed callout stays hidden.
const DismissalWindow = 30 * 24 * time.Hour

var ErrNoActiveCallout = errors.New("no_active_callout")

// Callout is the evaluated quota state for one root namespace.
type Callout struct {
	RootNamespaceID snowflake.ID `json:"root_namespace_id"`
	Stage           Stage        `json:"stage"`
	Limit           *int64       `json:"limit,omitempty"`
	Used            float64      `json:"used"`
	StagePercentage int          `json:"stage_percentage"`
}

// DismissalStore remembers per-user callout dismissals, keyed by
// (user, feature id, scope). Entries expire after the ttl.
type DismissalStore interface {
	Dismiss(ctx context.Context, userID snowflake.ID, featureID string, scope snowflake.ID, ttl time.Duration) error
	Dismissed(ctx context.Context, userID snowflake.ID, featureID string, scope snowflake.ID) (bool, error)
}

type Service interface {
	// Evaluate computes the current stage for the root namespace without
	// any permission or dismissal checks.
	Evaluate(ctx context.Context, rootNamespaceID snowflake.ID) (*Callout, error)

	// ShowCallout reports whether the user should see the callout. The
	// permission check runs before any usage is read: under-privileged
	// callers get false regardless of quota state.
	ShowCallout(ctx context.Context, userID, rootNamespaceID snowflake.ID) (bool, *Callout, error)

	// Dismiss hides the current stage's callout for the user for the
	// dismissal window. ErrNoActiveCallout when the stage is none.
	Dismiss(ctx context.Context, userID, rootNamespaceID snowflake.ID) error
}
