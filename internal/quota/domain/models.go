package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageRecord is the ledger row for one (root namespace, project, runner,
// billing month) tuple. Rows are created lazily on first usage within a month
// and incremented in place afterwards.
type UsageRecord struct {
	ID                    snowflake.ID `json:"id" gorm:"primaryKey"`
	RootNamespaceID       snowflake.ID `json:"root_namespace_id" gorm:"not null;uniqueIndex:ux_usage_records_key"`
	ProjectID             snowflake.ID `json:"project_id" gorm:"not null;uniqueIndex:ux_usage_records_key"`
	RunnerID              snowflake.ID `json:"runner_id" gorm:"not null;uniqueIndex:ux_usage_records_key"`
	BillingMonth          time.Time    `json:"billing_month" gorm:"not null;uniqueIndex:ux_usage_records_key"`
	ComputeMinutesUsed    float64      `json:"compute_minutes_used" gorm:"not null;default:0"`
	RunnerDurationSeconds int64        `json:"runner_duration_seconds" gorm:"not null;default:0"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}

// Rollup is a per (root namespace, billing month) snapshot of the ledger,
// refreshed by the scheduler for cheap dashboard reads.
type Rollup struct {
	ID                    snowflake.ID `json:"id" gorm:"primaryKey"`
	RootNamespaceID       snowflake.ID `json:"root_namespace_id" gorm:"not null;uniqueIndex:ux_usage_rollups_key"`
	BillingMonth          time.Time    `json:"billing_month" gorm:"not null;uniqueIndex:ux_usage_rollups_key"`
	ComputeMinutesUsed    float64      `json:"compute_minutes_used" gorm:"not null;default:0"`
	RunnerDurationSeconds int64        `json:"runner_duration_seconds" gorm:"not null;default:0"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

func (Rollup) TableName() string {
	return "usage_rollups"
}

// AggregateTotals holds summed usage across one or more ledger rows.
type AggregateTotals struct {
	ComputeMinutes  float64 `json:"compute_minutes"`
	DurationSeconds int64   `json:"duration_seconds"`
}

// NamespaceAggregate is AggregateTotals grouped by root namespace.
type NamespaceAggregate struct {
	RootNamespaceID snowflake.ID `json:"root_namespace_id"`
	ComputeMinutes  float64      `json:"compute_minutes"`
	DurationSeconds int64        `json:"duration_seconds"`
}

// MonthStart normalizes t to the first day of its calendar month, UTC midnight.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ValidateBillingMonth rejects any billing month that is not the first
// calendar day of a month at UTC midnight.
func ValidateBillingMonth(t time.Time) error {
	if t.IsZero() || !t.Equal(MonthStart(t)) {
		return ErrInvalidBillingPeriod
	}
	return nil
}
