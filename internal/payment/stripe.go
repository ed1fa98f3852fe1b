package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	mathrand "math/rand/v2"
	"strings"

	"github.com/JonasLeetTheWay/ticketmarket/internal/config"
	"github.com/shopspring/decimal"
)

var ErrDeclined = errors.New("payment intent declined")

// Processor creates payment intents at the external payment processor.
type Processor interface {
	CreatePaymentIntent(ctx context.Context, req *PaymentRequest) (*PaymentIntent, error)
}

type PaymentIntent struct {
	ID           string          `json:"id"`
	ClientSecret string          `json:"clientSecret"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Status       string          `json:"status"`
}

type PaymentRequest struct {
	Amount   decimal.Decimal
	Currency string
	Email    string
}

// MockStripeClient stands in for Stripe when MOCK_STRIPE_ENABLED is set.
type MockStripeClient struct {
	successRate float64
	currency    string
}

func NewMockStripeClient(cfg *config.Config) *MockStripeClient {
	return &MockStripeClient{
		successRate: cfg.MockStripeSuccessRate,
		currency:    cfg.PaymentCurrency,
	}
}

func (c *MockStripeClient) CreatePaymentIntent(ctx context.Context, req *PaymentRequest) (*PaymentIntent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %s", req.Amount)
	}

	if mathrand.Float64() >= c.successRate {
		return nil, ErrDeclined
	}

	id, err := randomID()
	if err != nil {
		return nil, err
	}
	secret, err := randomID()
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = c.currency
	}

	return &PaymentIntent{
		ID:           "pi_mock_" + id,
		ClientSecret: "pi_mock_" + id + "_secret_" + secret,
		Amount:       req.Amount,
		Currency:     strings.ToLower(currency),
		Status:       "requires_payment_method",
	}, nil
}

func randomID() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
