package payments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/JonasLeetTheWay/ticketmarket/internal/apperr"
	"github.com/JonasLeetTheWay/ticketmarket/internal/database"
	"github.com/JonasLeetTheWay/ticketmarket/internal/models"
	"github.com/JonasLeetTheWay/ticketmarket/internal/monitoring"
	"github.com/JonasLeetTheWay/ticketmarket/internal/payment"
	"github.com/JonasLeetTheWay/ticketmarket/internal/redis"
	"github.com/JonasLeetTheWay/ticketmarket/internal/services/booking"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount        = apperr.Validation("amount must be greater than zero")
	ErrMissingTransaction   = apperr.Validation("transactionId is required")
	ErrAmountMismatch       = apperr.Validation("Payment amount does not match booking total")
	ErrAlreadyPaid          = apperr.Validation("Booking already paid")
	ErrBookingCancelled     = apperr.Validation("Booking is cancelled")
	ErrNotOwner             = apperr.Forbidden("You do not own this booking")
	ErrSettlementInProgress = apperr.Conflict("Payment already in progress for this booking")
	ErrTransactionReused    = apperr.Conflict("Transaction already recorded")
	ErrIntentDeclined       = apperr.Validation("Payment intent declined")
)

// Locker serializes settlement attempts for one booking across instances.
type Locker interface {
	LockSettlement(ctx context.Context, bookingID uint, ttl time.Duration) error
	UnlockSettlement(ctx context.Context, bookingID uint) error
}

type Service struct {
	db        *gorm.DB
	processor payment.Processor
	locker    Locker
	lockTTL   time.Duration
}

// NewService wires the recorder. locker may be nil; the database guards
// still prevent double settlement without it.
func NewService(db *gorm.DB, processor payment.Processor, locker Locker, lockTTL time.Duration) *Service {
	return &Service{db: db, processor: processor, locker: locker, lockTTL: lockTTL}
}

type IntentRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (s *Service) CreateIntent(ctx context.Context, email string, req IntentRequest) (*payment.PaymentIntent, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	intent, err := s.processor.CreatePaymentIntent(ctx, &payment.PaymentRequest{
		Amount:   req.Amount,
		Currency: req.Currency,
		Email:    email,
	})
	if errors.Is(err, payment.ErrDeclined) {
		return nil, ErrIntentDeclined
	}
	if err != nil {
		return nil, apperr.Internal("create payment intent", err)
	}
	return intent, nil
}

type RecordRequest struct {
	BookingID     uint            `json:"bookingId" binding:"required"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
}

// Record settles a booking: it stores the payment, confirms the booking and
// deducts inventory in a single transaction. The booking only moves out of
// pending once, so a repeated call cannot settle twice.
func (s *Service) Record(ctx context.Context, email string, req RecordRequest) (*models.Payment, error) {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if req.TransactionID == "" {
		return nil, ErrMissingTransaction
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.Method == "" {
		req.Method = "card"
	}

	if s.locker != nil {
		err := s.locker.LockSettlement(ctx, req.BookingID, s.lockTTL)
		switch {
		case errors.Is(err, redis.ErrLocked):
			monitoring.TrackSettlement("locked")
			return nil, ErrSettlementInProgress
		case err != nil:
			slog.WarnContext(ctx, "settlement lock unavailable", "bookingId", req.BookingID, "error", err)
		default:
			defer func() {
				if err := s.locker.UnlockSettlement(context.WithoutCancel(ctx), req.BookingID); err != nil {
					slog.WarnContext(ctx, "settlement unlock failed", "bookingId", req.BookingID, "error", err)
				}
			}()
		}
	}

	var record *models.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Booking
		if err := tx.First(&b, req.BookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return booking.ErrBookingNotFound
			}
			return apperr.Internal("load booking", err)
		}

		if b.CustomerEmail != email {
			return ErrNotOwner
		}
		switch b.Status {
		case models.BookingConfirmed:
			return ErrAlreadyPaid
		case models.BookingCancelled:
			return ErrBookingCancelled
		}
		if !req.Amount.Equal(b.TotalPrice) {
			return ErrAmountMismatch
		}

		settled, err := settle(tx, &b, req.TransactionID, req.Method, time.Now().UTC())
		if err != nil {
			return err
		}
		record = settled
		return nil
	})
	if err != nil {
		monitoring.TrackSettlement(settlementOutcome(err))
		return nil, err
	}

	monitoring.TrackSettlement("settled")
	return record, nil
}

// settle confirms a pending booking, records its payment and deducts
// inventory. It must run inside a transaction.
func settle(tx *gorm.DB, b *models.Booking, transactionID, method string, paidAt time.Time) (*models.Payment, error) {
	res := tx.Model(&models.Booking{}).
		Where("id = ? AND status = ?", b.ID, models.BookingPending).
		Updates(map[string]any{
			"status":         models.BookingConfirmed,
			"transaction_id": transactionID,
			"payment_method": method,
			"paid_at":        paidAt,
		})
	if res.Error != nil {
		return nil, apperr.Internal("confirm booking", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyPaid
	}

	record := models.Payment{
		BookingID:     b.ID,
		CustomerEmail: b.CustomerEmail,
		TransactionID: transactionID,
		Amount:        b.TotalPrice,
		Method:        method,
		PaidAt:        paidAt,
		TicketTitle:   b.TicketTitle,
		From:          b.From,
		To:            b.To,
		DepartureDate: b.DepartureDate,
		Seat:          b.Seat,
	}
	if err := tx.Create(&record).Error; err != nil {
		if database.IsDuplicate(err) {
			return nil, ErrTransactionReused
		}
		return nil, apperr.Internal("insert payment", err)
	}

	if err := booking.Deduct(tx, b.TicketID, b.Quantity); err != nil {
		return nil, err
	}
	return &record, nil
}

func settlementOutcome(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, booking.ErrNotEnoughTickets):
		return "insufficient"
	}
	return "failed"
}

func (s *Service) ListTransactions(ctx context.Context, email string) ([]models.Payment, error) {
	records := []models.Payment{}
	if err := s.db.WithContext(ctx).Where("customer_email = ?", email).
		Order("paid_at DESC").Order("id DESC").Find(&records).Error; err != nil {
		return nil, apperr.Internal("list transactions", err)
	}
	return records, nil
}
