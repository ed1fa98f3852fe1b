package user

import (
	"net/http"

	"github.com/JonasLeetTheWay/ticketmarket/internal/apperr"
	"github.com/JonasLeetTheWay/ticketmarket/internal/auth"
	"github.com/JonasLeetTheWay/ticketmarket/internal/models"
	"github.com/gin-gonic/gin"
)

func (s *Service) SetupRoutes(r gin.IRouter, mw *auth.Middleware) {
	// Sign-in creates the record, so only a verified token is needed here.
	r.POST("/user", mw.Authenticate(), s.UpsertUser)

	me := r.Group("/user", mw.Authenticate(), mw.RequireRole())
	{
		me.GET("/role", s.GetRole)
		me.GET("/profile", s.GetProfile)
		me.PATCH("/profile", s.UpdateUserProfile)
	}

	admin := r.Group("/admin", mw.Authenticate(), mw.RequireRole(models.RoleAdmin))
	{
		admin.GET("/users", s.ListUsers)
		admin.PATCH("/users/:email/role", s.UpdateUserRole)
		admin.PATCH("/users/:email/fraud", s.MarkUserFraud)
	}
}

func (s *Service) UpsertUser(c *gin.Context) {
	var req UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("Invalid user data: "+err.Error()))
		return
	}

	u, err := s.Upsert(c.Request.Context(), auth.Email(c), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Service) GetRole(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"role": auth.CurrentUser(c).Role})
}

func (s *Service) GetProfile(c *gin.Context) {
	c.JSON(http.StatusOK, auth.CurrentUser(c))
}

func (s *Service) UpdateUserProfile(c *gin.Context) {
	var req ProfilePatch
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("Invalid profile data: "+err.Error()))
		return
	}

	u, err := s.UpdateProfile(c.Request.Context(), auth.Email(c), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Service) ListUsers(c *gin.Context) {
	users, err := s.List(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

func (s *Service) UpdateUserRole(c *gin.Context) {
	var req struct {
		Role models.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("role is required"))
		return
	}

	u, err := s.SetRole(c.Request.Context(), auth.Email(c), c.Param("email"), req.Role)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Service) MarkUserFraud(c *gin.Context) {
	u, err := s.MarkFraud(c.Request.Context(), auth.Email(c), c.Param("email"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Vendor marked as fraud",
		"user":    u,
	})
}
