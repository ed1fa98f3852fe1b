package user

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/JonasLeetTheWay/ticketmarket/internal/apperr"
	"github.com/JonasLeetTheWay/ticketmarket/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound   = apperr.NotFound("User not found")
	ErrEmailMismatch  = apperr.Forbidden("email does not match the signed-in user")
	ErrInvalidRole    = apperr.Validation("role must be customer, vendor or admin")
	ErrSelfDemotion   = apperr.Validation("admins cannot change their own role")
	ErrNotVendor      = apperr.Validation("Only vendors can be marked as fraud")
	ErrNothingToPatch = apperr.Validation("no fields to update")
)

// TicketHider takes a vendor's listings out of the public catalog.
type TicketHider interface {
	HideVendorTickets(ctx context.Context, tx *gorm.DB, vendorEmail string) (int64, error)
	Invalidate(ctx context.Context)
}

type Service struct {
	db      *gorm.DB
	tickets TicketHider
}

func NewService(db *gorm.DB, tickets TicketHider) *Service {
	return &Service{db: db, tickets: tickets}
}

type UpsertRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL"`
}

// Upsert records a signed-in user. New users start as customers; an existing
// user keeps their role and fraud flag and only gets profile fields refreshed.
func (s *Service) Upsert(ctx context.Context, subject string, req UpsertRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		email = subject
	}
	if email != subject {
		return nil, ErrEmailMismatch
	}

	u := models.User{
		Email:    email,
		Name:     req.Name,
		PhotoURL: req.PhotoURL,
		Role:     models.RoleCustomer,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "photo_url", "updated_at"}),
	}).Create(&u).Error
	if err != nil {
		return nil, apperr.Internal("upsert user", err)
	}

	return s.Get(ctx, email)
}

func (s *Service) Get(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperr.Internal("load user", err)
	}
	return &u, nil
}

type ProfilePatch struct {
	Name     *string `json:"name"`
	PhotoURL *string `json:"photoURL"`
}

func (s *Service) UpdateProfile(ctx context.Context, email string, patch ProfilePatch) (*models.User, error) {
	updates := map[string]any{}
	if patch.Name != nil {
		updates["name"] = strings.TrimSpace(*patch.Name)
	}
	if patch.PhotoURL != nil {
		updates["photo_url"] = *patch.PhotoURL
	}
	if len(updates) == 0 {
		return nil, ErrNothingToPatch
	}

	res := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Updates(updates)
	if res.Error != nil {
		return nil, apperr.Internal("update profile", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return s.Get(ctx, email)
}

func (s *Service) List(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&users).Error; err != nil {
		return nil, apperr.Internal("list users", err)
	}
	return users, nil
}

// SetRole changes a user's role. The new role applies from the next request.
func (s *Service) SetRole(ctx context.Context, actor, email string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	email = strings.ToLower(email)
	if email == actor {
		return nil, ErrSelfDemotion
	}

	res := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).
		Updates(map[string]any{"role": role, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, apperr.Internal("update role", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}

	slog.InfoContext(ctx, "role changed", "actor", actor, "email", email, "role", role)
	return s.Get(ctx, email)
}

// MarkFraud flags a vendor and hides all of their listings in one
// transaction.
func (s *Service) MarkFraud(ctx context.Context, actor, email string) (*models.User, error) {
	email = strings.ToLower(email)

	var hidden int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.Where("email = ?", email).First(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return apperr.Internal("load user", err)
		}
		if u.Role != models.RoleVendor {
			return ErrNotVendor
		}

		if err := tx.Model(&u).Update("fraud", true).Error; err != nil {
			return apperr.Internal("mark fraud", err)
		}

		n, err := s.tickets.HideVendorTickets(ctx, tx, email)
		if err != nil {
			return err
		}
		hidden = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.tickets.Invalidate(ctx)
	slog.InfoContext(ctx, "vendor marked as fraud", "actor", actor, "email", email, "hiddenTickets", hidden)
	return s.Get(ctx, email)
}
