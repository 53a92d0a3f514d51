package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetComputeMinutesCallout(c *gin.Context) {
	userID, err := actingUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	rootID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	show, callout, err := s.notificationSvc.ShowCallout(c.Request.Context(), userID, rootID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{"show": show}
	if callout != nil {
		resp["callout"] = callout
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) DismissCallout(c *gin.Context) {
	userID, err := actingUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	rootID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.notificationSvc.Dismiss(c.Request.Context(), userID, rootID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
