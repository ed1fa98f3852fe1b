package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/JonasLeetTheWay/ticketmarket/internal/apperr"
	"github.com/JonasLeetTheWay/ticketmarket/internal/models"
	"github.com/JonasLeetTheWay/ticketmarket/internal/monitoring"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	latestLimit  = 8
	defaultLimit = 9
	maxLimit     = 50

	keyLatest     = "catalog:latest"
	keyAdvertised = "catalog:advertised"
)

var (
	ErrTicketNotFound    = apperr.NotFound("Ticket not found")
	ErrNotOwner          = apperr.Forbidden("You do not own this ticket")
	ErrNotApproved       = apperr.Validation("Only approved tickets can be advertised")
	ErrTicketHidden      = apperr.Validation("Hidden tickets cannot be advertised")
	ErrInvalidPrice      = apperr.Validation("price must have at most 2 decimal places")
	ErrAdvertiseLimit    = apperr.Validation("Advertise limit reached: at most 6 tickets can be advertised")
	ErrAdvertiseChanged  = apperr.Conflict("Ticket changed while toggling advertisement, try again")
	ErrActiveBookings    = apperr.Conflict("Ticket has active bookings")
	ErrFraudVendor       = apperr.Forbidden("Vendor is marked as fraud")
	ErrInvalidVerifyStat = apperr.Validation("status must be approved or rejected")
)

// Cache is the read-through store for hot public listings.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type Service struct {
	db       *gorm.DB
	cache    Cache
	cacheTTL time.Duration
}

// NewService builds the catalog. cache may be nil to disable caching.
func NewService(db *gorm.DB, cache Cache, cacheTTL time.Duration) *Service {
	return &Service{db: db, cache: cache, cacheTTL: cacheTTL}
}

type Filter struct {
	From      string
	To        string
	Transport string
	Sort      string
	Page      int
	Limit     int
}

func visible(db *gorm.DB) *gorm.DB {
	return db.Where("verification_status = ? AND hidden = ?", models.VerificationApproved, false)
}

// ListPublic pages through approved, visible tickets.
func (s *Service) ListPublic(ctx context.Context, f Filter) ([]models.Ticket, int64, error) {
	q := visible(s.db.WithContext(ctx).Model(&models.Ticket{}))
	if f.From != "" {
		q = q.Where("LOWER(from_location) LIKE ?", "%"+strings.ToLower(f.From)+"%")
	}
	if f.To != "" {
		q = q.Where("LOWER(to_location) LIKE ?", "%"+strings.ToLower(f.To)+"%")
	}
	if f.Transport != "" {
		q = q.Where("transport_type = ?", strings.ToLower(f.Transport))
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, apperr.Internal("count tickets", err)
	}

	switch f.Sort {
	case "price_asc":
		q = q.Order("price ASC")
	case "price_desc":
		q = q.Order("price DESC")
	default:
		q = q.Order("created_at DESC")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	page := max(f.Page, 1)

	var tickets []models.Ticket
	if err := q.Order("id DESC").Limit(limit).Offset((page - 1) * limit).Find(&tickets).Error; err != nil {
		return nil, 0, apperr.Internal("list tickets", err)
	}
	return tickets, total, nil
}

func (s *Service) Latest(ctx context.Context) ([]models.Ticket, error) {
	return s.cached(ctx, keyLatest, func(tickets *[]models.Ticket) error {
		return visible(s.db.WithContext(ctx)).Order("created_at DESC").Order("id DESC").
			Limit(latestLimit).Find(tickets).Error
	})
}

func (s *Service) Advertised(ctx context.Context) ([]models.Ticket, error) {
	return s.cached(ctx, keyAdvertised, func(tickets *[]models.Ticket) error {
		return visible(s.db.WithContext(ctx)).Where("advertised = ?", true).
			Order("updated_at DESC").Limit(models.MaxAdvertised).Find(tickets).Error
	})
}

func (s *Service) cached(ctx context.Context, key string, load func(*[]models.Ticket) error) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	if s.cache != nil {
		hit, err := s.cache.GetJSON(ctx, key, &tickets)
		if err != nil {
			slog.WarnContext(ctx, "catalog cache read failed", "key", key, "error", err)
		}
		if hit {
			return tickets, nil
		}
	}

	if err := load(&tickets); err != nil {
		return nil, apperr.Internal("load "+key, err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, tickets, s.cacheTTL); err != nil {
			slog.WarnContext(ctx, "catalog cache write failed", "key", key, "error", err)
		}
	}
	return tickets, nil
}

// Invalidate drops cached listings after a ticket mutation and republishes
// the advertised gauge from the slot counter.
func (s *Service) Invalidate(ctx context.Context) {
	var used int
	if err := s.db.WithContext(ctx).Model(&models.AdvertSlot{}).Select("used").
		Where("id = ?", models.AdvertSlotID).Scan(&used).Error; err == nil {
		monitoring.SetAdvertised(used)
	}

	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, keyLatest, keyAdvertised); err != nil {
		slog.WarnContext(ctx, "catalog cache invalidation failed", "error", err)
	}
}

// GetPublic returns a ticket only if it is visible in the public catalog.
func (s *Service) GetPublic(ctx context.Context, id uint) (*models.Ticket, error) {
	var ticket models.Ticket
	err := visible(s.db.WithContext(ctx)).First(&ticket, id).Error
	if err != nil {
		return nil, lookupError(err)
	}
	return &ticket, nil
}

func lookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTicketNotFound
	}
	return apperr.Internal("load ticket", err)
}

type TicketInput struct {
	Title         string          `json:"title" binding:"required"`
	TransportType string          `json:"transportType" binding:"required"`
	From          string          `json:"from" binding:"required"`
	To            string          `json:"to" binding:"required"`
	DepartureDate string          `json:"departureDate" binding:"required"`
	DepartureTime string          `json:"departureTime"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	Perks         []string        `json:"perks"`
	ImageURL      string          `json:"imageUrl"`
}

func validatePriceQuantity(price *decimal.Decimal, quantity *int) error {
	if price != nil && !price.IsPositive() {
		return apperr.Validation("price must be greater than zero")
	}
	// Stored as decimal(12,2); anything finer would be rounded silently.
	if price != nil && !price.Equal(price.Round(2)) {
		return ErrInvalidPrice
	}
	if quantity != nil && *quantity < 0 {
		return apperr.Validation("quantity must not be negative")
	}
	return nil
}

func validateDate(date string) error {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return apperr.Validation("departureDate must be YYYY-MM-DD")
	}
	return nil
}

// Create adds a pending listing owned by vendor.
func (s *Service) Create(ctx context.Context, vendor *models.User, in TicketInput) (*models.Ticket, error) {
	if vendor.Fraud {
		return nil, ErrFraudVendor
	}
	if err := validatePriceQuantity(&in.Price, &in.Quantity); err != nil {
		return nil, err
	}
	if err := validateDate(in.DepartureDate); err != nil {
		return nil, err
	}

	ticket := models.Ticket{
		VendorEmail:        vendor.Email,
		VendorName:         vendor.Name,
		Title:              in.Title,
		TransportType:      strings.ToLower(in.TransportType),
		From:               in.From,
		To:                 in.To,
		DepartureDate:      in.DepartureDate,
		DepartureTime:      in.DepartureTime,
		Price:              in.Price,
		Quantity:           in.Quantity,
		Perks:              in.Perks,
		ImageURL:           in.ImageURL,
		VerificationStatus: models.VerificationPending,
	}
	if err := s.db.WithContext(ctx).Create(&ticket).Error; err != nil {
		return nil, apperr.Internal("create ticket", err)
	}
	return &ticket, nil
}

type TicketPatch struct {
	Title         *string          `json:"title"`
	TransportType *string          `json:"transportType"`
	From          *string          `json:"from"`
	To            *string          `json:"to"`
	DepartureDate *string          `json:"departureDate"`
	DepartureTime *string          `json:"departureTime"`
	Price         *decimal.Decimal `json:"price"`
	Quantity      *int             `json:"quantity"`
	Perks         []string         `json:"perks"`
	ImageURL      *string          `json:"imageUrl"`
}

func (p TicketPatch) updates() (map[string]any, error) {
	if err := validatePriceQuantity(p.Price, p.Quantity); err != nil {
		return nil, err
	}

	u := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			u[col] = *v
		}
	}
	set("title", p.Title)
	set("from_location", p.From)
	set("to_location", p.To)
	set("departure_time", p.DepartureTime)
	set("image_url", p.ImageURL)
	if p.TransportType != nil {
		u["transport_type"] = strings.ToLower(*p.TransportType)
	}
	if p.DepartureDate != nil {
		if err := validateDate(*p.DepartureDate); err != nil {
			return nil, err
		}
		u["departure_date"] = *p.DepartureDate
	}
	if p.Price != nil {
		u["price"] = *p.Price
	}
	if p.Quantity != nil {
		u["quantity"] = *p.Quantity
	}
	if p.Perks != nil {
		raw, err := json.Marshal(p.Perks)
		if err != nil {
			return nil, apperr.Validation("invalid perks")
		}
		u["perks"] = string(raw)
	}
	if len(u) == 0 {
		return nil, apperr.Validation("no fields to update")
	}
	return u, nil
}

func (s *Service) ownedTicket(tx *gorm.DB, vendorEmail string, id uint) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := tx.First(&ticket, id).Error; err != nil {
		return nil, lookupError(err)
	}
	if ticket.VendorEmail != vendorEmail {
		return nil, ErrNotOwner
	}
	return &ticket, nil
}

// Update edits the vendor's own listing. Moderation fields are not editable.
func (s *Service) Update(ctx context.Context, vendorEmail string, id uint, patch TicketPatch) (*models.Ticket, error) {
	updates, err := patch.updates()
	if err != nil {
		return nil, err
	}

	ticket, err := s.ownedTicket(s.db.WithContext(ctx), vendorEmail, id)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(ticket).Updates(updates).Error; err != nil {
		return nil, apperr.Internal("update ticket", err)
	}
	if err := s.db.WithContext(ctx).First(ticket, id).Error; err != nil {
		return nil, lookupError(err)
	}

	s.Invalidate(ctx)
	return ticket, nil
}

// Delete removes the vendor's own listing and frees its advertisement slot.
func (s *Service) Delete(ctx context.Context, vendorEmail string, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ticket, err := s.ownedTicket(tx, vendorEmail, id)
		if err != nil {
			return err
		}

		var active int64
		if err := tx.Model(&models.Booking{}).
			Where("ticket_id = ? AND status IN ?", id, models.ActiveStatuses).
			Count(&active).Error; err != nil {
			return apperr.Internal("count bookings", err)
		}
		if active > 0 {
			return ErrActiveBookings
		}

		if ticket.Advertised {
			if err := unadvertise(tx, id); err != nil {
				return err
			}
		}
		if err := tx.Delete(ticket).Error; err != nil {
			return apperr.Internal("delete ticket", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Invalidate(ctx)
	return nil
}

func (s *Service) VendorTickets(ctx context.Context, vendorEmail string) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	if err := s.db.WithContext(ctx).Where("vendor_email = ?", vendorEmail).
		Order("created_at DESC").Find(&tickets).Error; err != nil {
		return nil, apperr.Internal("list vendor tickets", err)
	}
	return tickets, nil
}

func (s *Service) AdminTickets(ctx context.Context) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&tickets).Error; err != nil {
		return nil, apperr.Internal("list tickets", err)
	}
	return tickets, nil
}

// Verify records the admin decision. Leaving the approved state withdraws
// any advertisement in the same transaction.
func (s *Service) Verify(ctx context.Context, id uint, status models.VerificationStatus) (*models.Ticket, error) {
	if status != models.VerificationApproved && status != models.VerificationRejected {
		return nil, ErrInvalidVerifyStat
	}

	var ticket models.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ticket, id).Error; err != nil {
			return lookupError(err)
		}
		if status != models.VerificationApproved && ticket.Advertised {
			if err := unadvertise(tx, id); err != nil {
				return err
			}
			ticket.Advertised = false
		}
		if err := tx.Model(&ticket).Update("verification_status", status).Error; err != nil {
			return apperr.Internal("verify ticket", err)
		}
		ticket.VerificationStatus = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx)
	return &ticket, nil
}

// ToggleAdvertise flips the advertised flag. Turning it on reserves one of
// the MaxAdvertised slots with a conditional counter update, so concurrent
// admins cannot exceed the cap.
func (s *Service) ToggleAdvertise(ctx context.Context, id uint) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ticket, id).Error; err != nil {
			return lookupError(err)
		}

		if ticket.Advertised {
			if err := unadvertise(tx, id); err != nil {
				return err
			}
			ticket.Advertised = false
			return nil
		}

		if ticket.VerificationStatus != models.VerificationApproved {
			return ErrNotApproved
		}
		if ticket.Hidden {
			return ErrTicketHidden
		}

		res := tx.Model(&models.AdvertSlot{}).
			Where("id = ? AND used < ?", models.AdvertSlotID, models.MaxAdvertised).
			Update("used", gorm.Expr("used + 1"))
		if res.Error != nil {
			return apperr.Internal("reserve advert slot", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAdvertiseLimit
		}

		res = tx.Model(&models.Ticket{}).
			Where("id = ? AND advertised = ? AND hidden = ? AND verification_status = ?", id, false, false, models.VerificationApproved).
			Update("advertised", true)
		if res.Error != nil {
			return apperr.Internal("advertise ticket", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAdvertiseChanged
		}
		ticket.Advertised = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx)
	return &ticket, nil
}

func unadvertise(tx *gorm.DB, id uint) error {
	res := tx.Model(&models.Ticket{}).Where("id = ? AND advertised = ?", id, true).Update("advertised", false)
	if res.Error != nil {
		return apperr.Internal("unadvertise ticket", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}
	if err := tx.Model(&models.AdvertSlot{}).
		Where("id = ? AND used > 0", models.AdvertSlotID).
		Update("used", gorm.Expr("used - 1")).Error; err != nil {
		return apperr.Internal("release advert slot", err)
	}
	return nil
}

// HideVendorTickets removes every listing of a vendor from the public catalog
// and gives back their advertisement slots. tx must be a transaction.
func (s *Service) HideVendorTickets(ctx context.Context, tx *gorm.DB, vendorEmail string) (int64, error) {
	tx = tx.WithContext(ctx)

	res := tx.Model(&models.Ticket{}).
		Where("vendor_email = ? AND advertised = ? AND verification_status = ?", vendorEmail, true, models.VerificationApproved).
		Update("advertised", false)
	if res.Error != nil {
		return 0, apperr.Internal("unadvertise vendor tickets", res.Error)
	}
	if freed := res.RowsAffected; freed > 0 {
		if err := tx.Model(&models.AdvertSlot{}).Where("id = ?", models.AdvertSlotID).
			Update("used", gorm.Expr("CASE WHEN used >= ? THEN used - ? ELSE 0 END", freed, freed)).Error; err != nil {
			return 0, apperr.Internal("release advert slots", err)
		}
	}

	res = tx.Model(&models.Ticket{}).
		Where("vendor_email = ?", vendorEmail).
		Update("hidden", true)
	if res.Error != nil {
		return 0, apperr.Internal("hide vendor tickets", res.Error)
	}
	return res.RowsAffected, nil
}

// SyncAdvertSlots recounts advertised tickets and rewrites the slot counter.
// Advertised tickets that are hidden or no longer approved lose the flag.
func (s *Service) SyncAdvertSlots(ctx context.Context) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Ticket{}).
			Where("advertised = ? AND (verification_status <> ? OR hidden = ?)", true, models.VerificationApproved, true).
			Update("advertised", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Ticket{}).
			Where("advertised = ? AND hidden = ? AND verification_status = ?", true, false, models.VerificationApproved).
			Count(&count).Error; err != nil {
			return err
		}
		return tx.Model(&models.AdvertSlot{}).Where("id = ?", models.AdvertSlotID).
			Update("used", count).Error
	})
	if err != nil {
		return 0, apperr.Internal("sync advert slots", err)
	}

	monitoring.SetAdvertised(int(count))
	return int(count), nil
}
