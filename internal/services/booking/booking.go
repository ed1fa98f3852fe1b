package booking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	mathrand "math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JonasLeetTheWay/ticketmarket/internal/apperr"
	"github.com/JonasLeetTheWay/ticketmarket/internal/database"
	"github.com/JonasLeetTheWay/ticketmarket/internal/models"
	"github.com/JonasLeetTheWay/ticketmarket/internal/monitoring"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	seatRows        = 50
	seatLetters     = "ABCDEF"
	maxSeatAttempts = 5
)

var seatPattern = regexp.MustCompile(`^([1-9]|[1-4][0-9]|50)[A-F]$`)

var (
	ErrTicketNotFound    = apperr.NotFound("Ticket not found")
	ErrBookingNotFound   = apperr.NotFound("Booking not found")
	ErrNotEnoughTickets  = apperr.Validation("Not enough tickets available")
	ErrInvalidQuantity   = apperr.Validation("quantity must be at least 1")
	ErrInvalidSeat       = apperr.Validation("seat must be a row 1-50 followed by a letter A-F")
	ErrSeatTaken         = apperr.Conflict("Seat already booked")
	ErrUnknownStatus     = apperr.Validation("Unknown booking status")
	ErrInvalidTransition = apperr.Validation("Booking status transition not allowed")
	ErrBookingChanged    = apperr.Conflict("Booking was modified concurrently, try again")
	ErrNotOwner          = apperr.Forbidden("You do not own this booking")
	ErrNotAllowed        = apperr.Forbidden("You are not allowed to change this booking")
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

type CreateRequest struct {
	TicketID uint   `json:"ticketId" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
	Seat     string `json:"seat"`
}

// Create reserves a seat on a ticket as a pending booking. The active-seat
// unique index decides races between concurrent requests for one seat.
func (s *Service) Create(ctx context.Context, customer *models.User, req CreateRequest) (*models.Booking, error) {
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	seat := strings.ToUpper(strings.TrimSpace(req.Seat))
	chosen := seat != ""
	if chosen && !seatPattern.MatchString(seat) {
		return nil, ErrInvalidSeat
	}

	var ticket models.Ticket
	err := s.db.WithContext(ctx).
		Where("verification_status = ? AND hidden = ?", models.VerificationApproved, false).
		First(&ticket, req.TicketID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, apperr.Internal("load ticket", err)
	}

	if ticket.Quantity < req.Quantity {
		monitoring.TrackBooking("create", "insufficient")
		return nil, ErrNotEnoughTickets
	}

	for attempt := 0; attempt < maxSeatAttempts; attempt++ {
		if !chosen {
			seat = GenerateSeat()
		}
		reference, err := GenerateReference(time.Now())
		if err != nil {
			return nil, apperr.Internal("generate reference", err)
		}

		booking := models.Booking{
			TicketID:      ticket.ID,
			VendorEmail:   ticket.VendorEmail,
			CustomerEmail: customer.Email,
			CustomerName:  customer.Name,
			Quantity:      req.Quantity,
			UnitPrice:     ticket.Price,
			TotalPrice:    ticket.Price.Mul(decimal.NewFromInt(int64(req.Quantity))),
			Seat:          seat,
			Reference:     reference,
			Status:        models.BookingPending,
			TicketTitle:   ticket.Title,
			From:          ticket.From,
			To:            ticket.To,
			DepartureDate: ticket.DepartureDate,
			DepartureTime: ticket.DepartureTime,
		}

		err = s.db.WithContext(ctx).Create(&booking).Error
		if err == nil {
			monitoring.TrackBooking("create", "created")
			return &booking, nil
		}
		if !database.IsDuplicate(err) {
			return nil, apperr.Internal("create booking", err)
		}

		taken, lookupErr := s.seatTaken(ctx, ticket.ID, seat)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if taken && chosen {
			break
		}
	}

	monitoring.TrackBooking("create", "conflict")
	return nil, ErrSeatTaken
}

func (s *Service) seatTaken(ctx context.Context, ticketID uint, seat string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("ticket_id = ? AND seat = ? AND status IN ?", ticketID, seat, models.ActiveStatuses).
		Count(&n).Error
	if err != nil {
		return false, apperr.Internal("check seat", err)
	}
	return n > 0, nil
}

// UpdateStatus applies a client status word. Owners may only cancel; the
// ticket's vendor and admins may also confirm.
func (s *Service) UpdateStatus(ctx context.Context, requester *models.User, id uint, status string) (*models.Booking, error) {
	target, err := models.ParseExternalStatus(status)
	if err != nil {
		return nil, ErrUnknownStatus
	}

	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	isOwner := booking.CustomerEmail == requester.Email
	isVendor := requester.Role == models.RoleVendor && booking.VendorEmail == requester.Email
	isAdmin := requester.Role == models.RoleAdmin

	switch {
	case !isOwner && !isVendor && !isAdmin:
		return nil, ErrNotAllowed
	case target == models.BookingConfirmed && !isVendor && !isAdmin:
		return nil, ErrNotAllowed
	}

	return s.Transition(ctx, id, target)
}

// Cancel cancels the requester's own booking.
func (s *Service) Cancel(ctx context.Context, requesterEmail string, id uint) (*models.Booking, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.CustomerEmail != requesterEmail {
		return nil, ErrNotOwner
	}
	return s.Transition(ctx, id, models.BookingCancelled)
}

// Transition moves a booking along the lifecycle table and reconciles ticket
// inventory: entering confirmed deducts the booked quantity, leaving
// confirmed for cancelled restores it. Cancelling a cancelled booking is a
// no-op.
func (s *Service) Transition(ctx context.Context, id uint, to models.BookingStatus) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&booking, id).Error; err != nil {
			return lookupError(err)
		}

		from := booking.Status
		if from == models.BookingCancelled && to == models.BookingCancelled {
			return nil
		}
		if !models.CanTransition(from, to) {
			return ErrInvalidTransition
		}

		res := tx.Model(&models.Booking{}).
			Where("id = ? AND status = ?", id, from).
			Update("status", to)
		if res.Error != nil {
			return apperr.Internal("update booking status", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrBookingChanged
		}

		switch {
		case to == models.BookingConfirmed:
			if err := Deduct(tx, booking.TicketID, booking.Quantity); err != nil {
				return err
			}
		case from == models.BookingConfirmed && to == models.BookingCancelled:
			if err := Restore(tx, booking.TicketID, booking.Quantity); err != nil {
				return err
			}
		}

		booking.Status = to
		return nil
	})
	if err != nil {
		monitoring.TrackBooking("transition", "rejected")
		return nil, err
	}

	monitoring.TrackBooking("transition", string(to))
	return &booking, nil
}

// Deduct takes quantity seats from a ticket, refusing to go below zero.
func Deduct(tx *gorm.DB, ticketID uint, quantity int) error {
	res := tx.Model(&models.Ticket{}).
		Where("id = ? AND quantity >= ?", ticketID, quantity).
		Update("quantity", gorm.Expr("quantity - ?", quantity))
	if res.Error != nil {
		return apperr.Internal("deduct inventory", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotEnoughTickets
	}
	return nil
}

// Restore returns quantity seats to a ticket.
func Restore(tx *gorm.DB, ticketID uint, quantity int) error {
	res := tx.Unscoped().Model(&models.Ticket{}).
		Where("id = ?", ticketID).
		Update("quantity", gorm.Expr("quantity + ?", quantity))
	if res.Error != nil {
		return apperr.Internal("restore inventory", res.Error)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := s.db.WithContext(ctx).First(&booking, id).Error; err != nil {
		return nil, lookupError(err)
	}
	return &booking, nil
}

func (s *Service) ListForCustomer(ctx context.Context, email string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	if err := s.db.WithContext(ctx).Where("customer_email = ?", email).
		Order("created_at DESC").Order("id DESC").Find(&bookings).Error; err != nil {
		return nil, apperr.Internal("list bookings", err)
	}
	return bookings, nil
}

func lookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrBookingNotFound
	}
	return apperr.Internal("load booking", err)
}

// GenerateSeat picks a random seat such as "12C".
func GenerateSeat() string {
	return fmt.Sprintf("%d%c", mathrand.IntN(seatRows)+1, seatLetters[mathrand.IntN(len(seatLetters))])
}

// GenerateReference returns a human readable booking code: a base36
// timestamp followed by a random suffix, e.g. "TBM3K9Z1QX-4F2A".
func GenerateReference(now time.Time) (string, error) {
	b := make([]byte, 2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return "TB" + stamp + "-" + strings.ToUpper(hex.EncodeToString(b)), nil
}
