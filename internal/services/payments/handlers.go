package payments

import (
	"net/http"

	"github.com/JonasLeetTheWay/ticketmarket/internal/apperr"
	"github.com/JonasLeetTheWay/ticketmarket/internal/auth"
	"github.com/gin-gonic/gin"
)

func (s *Service) SetupRoutes(r gin.IRouter, mw *auth.Middleware) {
	registered := []gin.HandlerFunc{mw.Authenticate(), mw.RequireRole()}

	r.POST("/create-payment-intent", append(registered, s.CreatePaymentIntent)...)
	r.POST("/payments", append(registered, s.RecordPayment)...)
	r.GET("/user/transactions", append(registered, s.GetTransactions)...)
}

func (s *Service) CreatePaymentIntent(c *gin.Context) {
	var req IntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("Invalid request data: "+err.Error()))
		return
	}

	intent, err := s.CreateIntent(c.Request.Context(), auth.Email(c), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"clientSecret":    intent.ClientSecret,
		"paymentIntentId": intent.ID,
		"amount":          intent.Amount,
		"currency":        intent.Currency,
	})
}

func (s *Service) RecordPayment(c *gin.Context) {
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("Invalid payment data: "+err.Error()))
		return
	}

	record, err := s.Record(c.Request.Context(), auth.Email(c), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Payment recorded",
		"payment": record,
	})
}

func (s *Service) GetTransactions(c *gin.Context) {
	records, err := s.ListTransactions(c.Request.Context(), auth.Email(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": records,
		"count":        len(records),
	})
}
