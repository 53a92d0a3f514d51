package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotara/pkg/db/pagination"
)

var (
	ErrInvalidUsageDelta    = errors.New("invalid_usage_delta")
	ErrInvalidBillingPeriod = errors.New("invalid_billing_period")
	ErrUsageRecordNotFound  = errors.New("usage_record_not_found")
)

// RecordUsageRequest carries one usage increment. A zero BillingMonth means
// the current month; anything else must be a first-of-month date.
type RecordUsageRequest struct {
	RootNamespaceID snowflake.ID `json:"root_namespace_id"`
	ProjectID       snowflake.ID `json:"project_id"`
	RunnerID        snowflake.ID `json:"runner_id"`
	BillingMonth    time.Time    `json:"billing_month,omitempty"`
	DeltaMinutes    float64      `json:"delta_minutes"`
	DeltaSeconds    int64        `json:"delta_seconds"`
}

type Service interface {
	// FindOrCreateCurrent returns this month's ledger row for the tuple,
	// creating a zero-usage row if absent. Safe under concurrent first
	// writers: a duplicate-key insert falls back to a re-read.
	FindOrCreateCurrent(ctx context.Context, rootNamespaceID, projectID, runnerID snowflake.ID) (*UsageRecord, error)

	// RecordUsage atomically increments the tuple's ledger row.
	RecordUsage(ctx context.Context, req RecordUsageRequest) (*UsageRecord, error)

	InstanceAggregate(ctx context.Context, billingMonth time.Time, runnerID *snowflake.ID) (AggregateTotals, error)

	// PerRootNamespace lists the month's aggregates keyed by root namespace,
	// keyset-paginated on root_namespace_id.
	PerRootNamespace(ctx context.Context, billingMonth time.Time, runnerID *snowflake.ID, page pagination.Pagination) ([]*NamespaceAggregate, *pagination.PageInfo, error)

	// RootNamespaceTotals sums the given month's usage for one root namespace.
	RootNamespaceTotals(ctx context.Context, rootNamespaceID snowflake.ID, billingMonth time.Time) (AggregateTotals, error)

	// RollupMonth refreshes the usage_rollups snapshot for the month and
	// returns how many namespaces were written. Idempotent.
	RollupMonth(ctx context.Context, billingMonth time.Time) (int, error)
}
