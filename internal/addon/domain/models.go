// Package domain contains persistence models for add-on purchases.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AddOnType is the closed set of purchasable add-on bundles.
type AddOnType string

const (
	AddOnCodeSuggestions  AddOnType = "code_suggestions"
	AddOnDuoEnterprise    AddOnType = "duo_enterprise"
	AddOnProductAnalytics AddOnType = "product_analytics"
)

// CleanupDelay is how long an expired purchase is retained before its seat
// assignments become eligible for cleanup.
const CleanupDelay = 14 * 24 * time.Hour

// AddOnPurchase is a time-bounded grant of an add-on bundle to a namespace,
// or to the whole instance when NamespaceID is nil. Purchases are never hard
// deleted; expiry is purely date based.
type AddOnPurchase struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	NamespaceID *snowflake.ID `gorm:"index;uniqueIndex:ux_addon_purchases,priority:2" json:"namespace_id"`
	AddOnType   AddOnType     `gorm:"type:text;not null;uniqueIndex:ux_addon_purchases,priority:1" json:"add_on_type"`
	Quantity    int           `gorm:"not null" json:"quantity"`
	StartedOn   time.Time     `gorm:"not null" json:"started_on"`
	ExpiresOn   time.Time     `gorm:"not null" json:"expires_on"`
	Trial       bool          `gorm:"not null;default:false" json:"trial"`
	PurchaseXid string        `gorm:"type:varchar(255);not null" json:"purchase_xid"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (AddOnPurchase) TableName() string { return "add_on_purchases" }

// ActiveAt reports whether the purchase window covers the given day.
// Both bounds are inclusive.
func (p AddOnPurchase) ActiveAt(at time.Time) bool {
	day := TruncateToDay(at)
	return !day.Before(TruncateToDay(p.StartedOn)) && !day.After(TruncateToDay(p.ExpiresOn))
}

// ReadyForCleanupAt reports whether the purchase expired longer than the
// cleanup delay ago.
func (p AddOnPurchase) ReadyForCleanupAt(at time.Time) bool {
	return TruncateToDay(p.ExpiresOn).Add(CleanupDelay).Before(TruncateToDay(at))
}

// TruncateToDay normalizes a timestamp to UTC midnight.
func TruncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
