package migration

import (
	addondomain "github.com/smallbiznis/quotara/internal/addon/domain"
	namespacedomain "github.com/smallbiznis/quotara/internal/namespace/domain"
	quotadomain "github.com/smallbiznis/quotara/internal/quota/domain"
	seatdomain "github.com/smallbiznis/quotara/internal/seat/domain"
	"gorm.io/gorm"
)

// autoMigrate builds the schema from the gorm models for databases the SQL
// migrations do not target (sqlite, mysql).
func autoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&namespacedomain.Namespace{},
		&namespacedomain.Project{},
		&namespacedomain.User{},
		&namespacedomain.Member{},
		&namespacedomain.GroupLink{},
		&namespacedomain.NamespaceBan{},
		&addondomain.AddOnPurchase{},
		&seatdomain.SeatAssignment{},
		&quotadomain.UsageRecord{},
		&quotadomain.Rollup{},
	)
}
