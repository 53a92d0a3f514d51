// Package domain contains persistence models for add-on seat assignments.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SeatAssignment binds one user to one unit of an add-on purchase. The
// (add_on_purchase_id, user_id) pair is unique; the database constraint is
// the enforcement mechanism, not application-level locking.
type SeatAssignment struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	AddOnPurchaseID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_seat_assignments,priority:1" json:"add_on_purchase_id"`
	UserID          snowflake.ID `gorm:"not null;index;uniqueIndex:ux_seat_assignments,priority:2" json:"user_id"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (SeatAssignment) TableName() string { return "seat_assignments" }
