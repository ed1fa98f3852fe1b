package catalog

import (
	"net/http"
	"strconv"

	"github.com/JonasLeetTheWay/ticketmarket/internal/apperr"
	"github.com/JonasLeetTheWay/ticketmarket/internal/auth"
	"github.com/JonasLeetTheWay/ticketmarket/internal/models"
	"github.com/gin-gonic/gin"
)

func (s *Service) SetupRoutes(r gin.IRouter, mw *auth.Middleware) {
	tickets := r.Group("/tickets")
	{
		tickets.GET("/all", s.ListTickets)
		tickets.GET("/latest", s.LatestTickets)
		tickets.GET("/advertised-home", s.AdvertisedTickets)
		tickets.GET("/:id", s.GetTicket)

		vendorOnly := []gin.HandlerFunc{mw.Authenticate(), mw.RequireRole(models.RoleVendor)}
		tickets.POST("", append(vendorOnly, s.CreateTicket)...)
		tickets.PATCH("/:id", append(vendorOnly, s.UpdateTicket)...)
		tickets.DELETE("/:id", append(vendorOnly, s.DeleteTicket)...)
	}

	r.GET("/vendor/tickets", mw.Authenticate(), mw.RequireRole(models.RoleVendor), s.ListVendorTickets)

	admin := r.Group("/admin", mw.Authenticate(), mw.RequireRole(models.RoleAdmin))
	{
		admin.GET("/tickets", s.ListAdminTickets)
		admin.PATCH("/tickets/:id/verify", s.VerifyTicket)
		admin.PATCH("/tickets/advertise/:id", s.ToggleAdvertiseTicket)
	}
}

func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, apperr.Validation("Invalid ticket ID")
	}
	return uint(id), nil
}

func (s *Service) ListTickets(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	tickets, total, err := s.ListPublic(c.Request.Context(), Filter{
		From:      c.Query("from"),
		To:        c.Query("to"),
		Transport: c.Query("transport"),
		Sort:      c.Query("sort"),
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tickets": tickets,
		"count":   len(tickets),
		"total":   total,
	})
}

func (s *Service) LatestTickets(c *gin.Context) {
	tickets, err := s.Latest(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets, "count": len(tickets)})
}

func (s *Service) AdvertisedTickets(c *gin.Context) {
	tickets, err := s.Advertised(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets, "count": len(tickets)})
}

func (s *Service) GetTicket(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	ticket, err := s.GetPublic(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (s *Service) CreateTicket(c *gin.Context) {
	var req TicketInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("Invalid ticket data: "+err.Error()))
		return
	}

	ticket, err := s.Create(c.Request.Context(), auth.CurrentUser(c), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

func (s *Service) UpdateTicket(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var req TicketPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("Invalid ticket data: "+err.Error()))
		return
	}

	ticket, err := s.Update(c.Request.Context(), auth.Email(c), id, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (s *Service) DeleteTicket(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	if err := s.Delete(c.Request.Context(), auth.Email(c), id); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ticket deleted successfully"})
}

func (s *Service) ListVendorTickets(c *gin.Context) {
	tickets, err := s.VendorTickets(c.Request.Context(), auth.Email(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets, "count": len(tickets)})
}

func (s *Service) ListAdminTickets(c *gin.Context) {
	tickets, err := s.AdminTickets(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets, "count": len(tickets)})
}

func (s *Service) VerifyTicket(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var req struct {
		Status models.VerificationStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("status is required"))
		return
	}

	ticket, err := s.Verify(c.Request.Context(), id, req.Status)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (s *Service) ToggleAdvertiseTicket(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	ticket, err := s.ToggleAdvertise(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ticketId":   ticket.ID,
		"advertised": ticket.Advertised,
	})
}
