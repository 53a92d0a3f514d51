package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	namespacedomain "github.com/smallbiznis/quotara/internal/namespace/domain"
)

func (s *Server) CreateNamespace(c *gin.Context) {
	var req namespacedomain.CreateNamespaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ns, err := s.namespaceSvc.CreateNamespace(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ns)
}

func (s *Server) GetNamespace(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ns, err := s.namespaceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ns)
}

func (s *Server) CreateProject(c *gin.Context) {
	var req namespacedomain.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	project, err := s.namespaceSvc.CreateProject(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, project)
}

func (s *Server) CreateUser(c *gin.Context) {
	var req namespacedomain.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	user, err := s.namespaceSvc.CreateUser(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (s *Server) AddMember(c *gin.Context) {
	namespaceID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req namespacedomain.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.NamespaceID = namespaceID.String()

	member, err := s.namespaceSvc.AddMember(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, member)
}

type addGroupLinkRequest struct {
	SharedNamespaceID string `json:"shared_namespace_id"`
}

func (s *Server) AddGroupLink(c *gin.Context) {
	invitedID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req addGroupLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	sharedID, err := snowflakeFromString(req.SharedNamespaceID, "shared_namespace_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	link, err := s.namespaceSvc.AddGroupLink(c.Request.Context(), sharedID, invitedID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, link)
}

type banUserRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) BanUser(c *gin.Context) {
	rootID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req banUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	userID, err := snowflakeFromString(req.UserID, "user_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ban, err := s.namespaceSvc.BanUser(c.Request.Context(), rootID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ban)
}
