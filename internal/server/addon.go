package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	addondomain "github.com/smallbiznis/quotara/internal/addon/domain"
)

func (s *Server) CreateAddOnPurchase(c *gin.Context) {
	var req addondomain.CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	purchase, err := s.addOnSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, purchase)
}

func (s *Server) RenewAddOnPurchase(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req addondomain.RenewPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.PurchaseID = id.String()

	purchase, err := s.addOnSvc.Renew(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, purchase)
}

func (s *Server) ListAddOnPurchases(c *gin.Context) {
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

	trial, err := parseOptionalBoolQuery(c, "trial")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	onlyActive, err := parseOptionalBoolQuery(c, "only_active")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	purchases, err := s.addOnSvc.PurchasesFor(c.Request.Context(), namespaceID, addOnType, addondomain.PurchaseFilter{
		Trial:      trial,
		OnlyActive: onlyActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"add_on_purchases": purchases})
}
