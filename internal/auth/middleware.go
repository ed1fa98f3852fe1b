package auth

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/JonasLeetTheWay/ticketmarket/internal/apperr"
	"github.com/JonasLeetTheWay/ticketmarket/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	ctxEmail = "userEmail"
	ctxUser  = "user"
)

var ErrNoRole = apperr.Forbidden("user not registered")

// Resolver reads a subject's role from the user store on every request so
// role changes take effect immediately.
type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

func (r *Resolver) Resolve(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoRole
	}
	if err != nil {
		return nil, apperr.Internal("resolve role", err)
	}
	return &user, nil
}

type Middleware struct {
	verifier Verifier
	resolver *Resolver
}

func NewMiddleware(verifier Verifier, resolver *Resolver) *Middleware {
	return &Middleware{verifier: verifier, resolver: resolver}
}

// Authenticate verifies the bearer token and stores the subject email.
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			apperr.Respond(c, apperr.Auth(err.Error()))
			return
		}

		email, err := m.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			slog.DebugContext(c.Request.Context(), "token rejected", "error", err)
			apperr.Respond(c, apperr.Auth("Invalid token"))
			return
		}

		c.Set(ctxEmail, email)
		c.Next()
	}
}

// RequireRole resolves the stored user and admits it when its role is one of
// roles. An empty roles list admits any registered user.
func (m *Middleware) RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := Email(c)
		if email == "" {
			apperr.Respond(c, apperr.Auth("authorization header required"))
			return
		}

		user, err := m.resolver.Resolve(c.Request.Context(), email)
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		if len(roles) > 0 && !slices.Contains(roles, user.Role) {
			apperr.Respond(c, apperr.Forbidden("Insufficient permissions"))
			return
		}

		c.Set(ctxUser, user)
		c.Next()
	}
}

// Email returns the verified subject of the request.
func Email(c *gin.Context) string {
	return c.GetString(ctxEmail)
}

// CurrentUser returns the user loaded by RequireRole.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(ctxUser); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}
