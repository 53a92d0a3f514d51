package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	addondomain "github.com/smallbiznis/quotara/internal/addon/domain"
	seatdomain "github.com/smallbiznis/quotara/internal/seat/domain"
	"github.com/smallbiznis/quotara/pkg/db/pagination"
)

type createAssignmentRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) CreateAssignment(c *gin.Context) {
	purchaseID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	userID, err := snowflakeFromString(req.UserID, "user_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	assignment, err := s.seatSvc.Assign(c.Request.Context(), purchaseID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, assignment)
}

func (s *Server) DeleteAssignment(c *gin.Context) {
	purchaseID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	userID, err := parseIDParam(c, "user_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.seatSvc.Unassign(c.Request.Context(), purchaseID, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListEligibleUsers(c *gin.Context) {
	rootID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filterByAssignedSeat, err := parseOptionalBoolQuery(c, "filter_by_assigned_seat")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	users, pageInfo, err := s.seatSvc.EligibleUsers(c.Request.Context(), seatdomain.EligibleUsersRequest{
		RootNamespaceID:      rootID,
		AddOnType:            addondomain.AddOnType(c.Query("add_on_type")),
		Search:               c.Query("search"),
		Sort:                 seatdomain.SortKey(c.Query("sort")),
		FilterByAssignedSeat: filterByAssignedSeat,
		Page:                 page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users, "page_info": pageInfo})
}

func (s *Server) ListAssignedUsers(c *gin.Context) {
	namespaceID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	addOnType, err := addondomain.ParseAddOnType(c.Query("add_on_type"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	users, pageInfo, err := s.seatSvc.AssignedUsers(c.Request.Context(), namespaceID, addOnType, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users, "page_info": pageInfo})
}
