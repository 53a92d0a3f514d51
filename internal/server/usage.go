package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	quotadomain "github.com/smallbiznis/quotara/internal/quota/domain"
	"github.com/smallbiznis/quotara/pkg/db/pagination"
)

func (s *Server) RecordUsage(c *gin.Context) {
	var req quotadomain.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.quotaSvc.RecordUsage(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Server) GetInstanceUsage(c *gin.Context) {
	billingMonth, err := parseBillingMonthQuery(c, "billing_month")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	runnerID, err := parseOptionalIDQuery(c, "runner_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	totals, err := s.quotaSvc.InstanceAggregate(c.Request.Context(), billingMonth, runnerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, totals)
}

func (s *Server) ListNamespaceUsage(c *gin.Context) {
	billingMonth, err := parseBillingMonthQuery(c, "billing_month")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	runnerID, err := parseOptionalIDQuery(c, "runner_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	aggregates, pageInfo, err := s.quotaSvc.PerRootNamespace(c.Request.Context(), billingMonth, runnerID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"namespaces": aggregates, "page_info": pageInfo})
}
