package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreatePurchaseRequest struct {
	NamespaceID *string   `json:"namespace_id"`
	AddOnType   string    `json:"add_on_type"`
	Quantity    int       `json:"quantity"`
	StartedOn   time.Time `json:"started_on"`
	ExpiresOn   time.Time `json:"expires_on"`
	Trial       bool      `json:"trial"`
	PurchaseXid string    `json:"purchase_xid"`
}

type RenewPurchaseRequest struct {
	PurchaseID string    `json:"purchase_id"`
	ExpiresOn  time.Time `json:"expires_on"`
	Quantity   *int      `json:"quantity"`
}

// PurchaseFilter narrows PurchasesFor. OnlyActive defaults to true at the
// service boundary: callers that want expired purchases must opt out.
type PurchaseFilter struct {
	Trial      *bool
	OnlyActive *bool
}

type Service interface {
	Create(ctx context.Context, req CreatePurchaseRequest) (*AddOnPurchase, error)
	GetByID(ctx context.Context, id snowflake.ID) (*AddOnPurchase, error)
	PurchasesFor(ctx context.Context, namespaceID snowflake.ID, addOnType AddOnType, filter PurchaseFilter) ([]AddOnPurchase, error)
	ActivePurchasesForHierarchy(ctx context.Context, namespaceID snowflake.ID, addOnType AddOnType) ([]AddOnPurchase, error)
	Renew(ctx context.Context, req RenewPurchaseRequest) (*AddOnPurchase, error)
	ReadyForCleanup(ctx context.Context) ([]AddOnPurchase, error)
}

var (
	ErrInvalidAddOnType = errors.New("invalid_add_on_type")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidDates     = errors.New("invalid_dates")
	ErrPurchaseNotFound = errors.New("purchase_not_found")
	ErrPurchaseExists   = errors.New("purchase_exists")
)

// ParseAddOnType validates an add-on type. Unknown values raise, they never
// degrade into an empty result.
func ParseAddOnType(value string) (AddOnType, error) {
	switch AddOnType(value) {
	case AddOnCodeSuggestions, AddOnDuoEnterprise, AddOnProductAnalytics:
		return AddOnType(value), nil
	default:
		return "", ErrInvalidAddOnType
	}
}
