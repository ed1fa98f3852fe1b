package booking

import (
	"net/http"
	"strconv"

	"github.com/JonasLeetTheWay/ticketmarket/internal/apperr"
	"github.com/JonasLeetTheWay/ticketmarket/internal/auth"
	"github.com/gin-gonic/gin"
)

func (s *Service) SetupRoutes(r gin.IRouter, mw *auth.Middleware) {
	registered := []gin.HandlerFunc{mw.Authenticate(), mw.RequireRole()}

	r.POST("/bookings", append(registered, s.CreateBooking)...)
	r.PATCH("/bookings/:id/status", append(registered, s.UpdateBookingStatus)...)
	r.DELETE("/bookings/:id", append(registered, s.CancelBooking)...)
	r.GET("/user/bookings", append(registered, s.GetUserBookings)...)
}

func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, apperr.Validation("Invalid booking ID")
	}
	return uint(id), nil
}

func (s *Service) CreateBooking(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("Invalid request data: "+err.Error()))
		return
	}

	booking, err := s.Create(c.Request.Context(), auth.CurrentUser(c), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

func (s *Service) UpdateBookingStatus(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("status is required"))
		return
	}

	booking, err := s.UpdateStatus(c.Request.Context(), auth.CurrentUser(c), id, req.Status)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

func (s *Service) CancelBooking(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	booking, err := s.Cancel(c.Request.Context(), auth.Email(c), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Booking cancelled successfully",
		"booking": booking,
	})
}

func (s *Service) GetUserBookings(c *gin.Context) {
	bookings, err := s.ListForCustomer(c.Request.Context(), auth.Email(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
	})
}
