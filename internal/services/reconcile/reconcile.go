package reconcile

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonasLeetTheWay/ticketmarket/internal/apperr"
	"github.com/JonasLeetTheWay/ticketmarket/internal/auth"
	"github.com/JonasLeetTheWay/ticketmarket/internal/models"
	"github.com/JonasLeetTheWay/ticketmarket/internal/monitoring"
	"github.com/JonasLeetTheWay/ticketmarket/internal/services/booking"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SlotSyncer recounts the advertisement slot counter.
type SlotSyncer interface {
	SyncAdvertSlots(ctx context.Context) (int, error)
}

type Service struct {
	db       *gorm.DB
	slots    SlotSyncer
	interval time.Duration
}

func NewService(db *gorm.DB, slots SlotSyncer, interval time.Duration) *Service {
	return &Service{db: db, slots: slots, interval: interval}
}

// Report describes one sweep.
type Report struct {
	Settled    int `json:"settled"`
	Stuck      int `json:"stuck"`
	Advertised int `json:"advertised"`
}

func (s *Service) SetupRoutes(r gin.IRouter, mw *auth.Middleware) {
	r.POST("/admin/reconcile", mw.Authenticate(), mw.RequireRole(models.RoleAdmin), s.Reconcile)
}

func (s *Service) Reconcile(c *gin.Context) {
	report, err := s.RunOnce(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Start sweeps every interval until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("reconcile worker started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconcile worker stopped")
			return
		case <-ticker.C:
			report, err := s.RunOnce(ctx)
			if err != nil {
				slog.Error("reconcile sweep failed", "error", err)
				continue
			}
			if report.Settled > 0 || report.Stuck > 0 {
				slog.Info("reconcile sweep", "settled", report.Settled, "stuck", report.Stuck, "advertised", report.Advertised)
			}
		}
	}
}

type paidPending struct {
	BookingID     uint
	TicketID      uint
	Quantity      int
	TransactionID string
	Method        string
	PaidAt        time.Time
}

// RunOnce confirms pending bookings that already have a payment on record and
// recounts advertisement slots.
func (s *Service) RunOnce(ctx context.Context) (*Report, error) {
	var rows []paidPending
	err := s.db.WithContext(ctx).Table("bookings").
		Select("bookings.id AS booking_id, bookings.ticket_id, bookings.quantity, payments.transaction_id, payments.method, payments.paid_at").
		Joins("JOIN payments ON payments.booking_id = bookings.id").
		Where("bookings.status = ?", models.BookingPending).
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal("find paid pending bookings", err)
	}

	report := &Report{}
	for _, row := range rows {
		if err := s.settle(ctx, row); err != nil {
			slog.Warn("cannot settle paid booking", "bookingId", row.BookingID, "error", err)
			report.Stuck++
			continue
		}
		report.Settled++
	}
	monitoring.TrackRepair("settled", report.Settled)

	n, err := s.slots.SyncAdvertSlots(ctx)
	if err != nil {
		return nil, err
	}
	report.Advertised = n

	return report, nil
}

func (s *Service) settle(ctx context.Context, row paidPending) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Booking{}).
			Where("id = ? AND status = ?", row.BookingID, models.BookingPending).
			Updates(map[string]any{
				"status":         models.BookingConfirmed,
				"transaction_id": row.TransactionID,
				"payment_method": row.Method,
				"paid_at":        row.PaidAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return booking.Deduct(tx, row.TicketID, row.Quantity)
	})
}
