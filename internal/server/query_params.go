package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		return 0, newValidationError(name, "invalid_id", "invalid identifier")
	}
	return id, nil
}

func snowflakeFromString(raw, field string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, newValidationError(field, "invalid_id", "invalid identifier")
	}
	return id, nil
}

func parseOptionalIDQuery(c *gin.Context, name string) (*snowflake.ID, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return nil, newValidationError(name, "invalid_id", "invalid identifier")
	}
	return &id, nil
}

func parseOptionalBoolQuery(c *gin.Context, name string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, newValidationError(name, "invalid_bool", "invalid boolean")
	}
	return &value, nil
}

// parseBillingMonthQuery accepts a YYYY-MM-DD date; first-of-month checks
// stay in the quota service so the API and scheduler share one rule.
func parseBillingMonthQuery(c *gin.Context, name string) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, newValidationError(name, "invalid_billing_month", "billing month is required")
	}
	value, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, newValidationError(name, "invalid_billing_month", "invalid billing month")
	}
	return value.UTC(), nil
}
