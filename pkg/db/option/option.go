// Package option provides composable gorm query modifiers used by the
// generic repository.
package option

import (
	"strings"

	"github.com/smallbiznis/quotara/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// ApplyPagination applies keyset pagination: rows strictly after the cursor,
// over-fetched by one so the caller can detect a next page.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := p.PageSize
		if size <= 0 {
			size = 50
		}
		if size > 250 {
			size = 250
		}

		if token := strings.TrimSpace(p.PageToken); token != "" {
			cursor, err := pagination.DecodeCursor(token)
			if err == nil && cursor != nil && cursor.ID != "" {
				db = db.Where("id > ?", cursor.ID)
			}
		}

		return db.Limit(size + 1)
	})
}

// QuerySortBy restricts ordering to an allow-listed set of columns.
type QuerySortBy struct {
	Field string
	Desc  bool
	Allow map[string]bool
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(sort.Field)
		if field == "" || !sort.Allow[field] {
			return db.Order("id ASC")
		}
		direction := "ASC"
		if sort.Desc {
			direction = "DESC"
		}
		return db.Order(field + " " + direction)
	})
}

// WithLimit caps the number of returned rows.
func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}
