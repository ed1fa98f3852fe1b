package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonasLeetTheWay/ticketmarket/internal/auth"
	"github.com/JonasLeetTheWay/ticketmarket/internal/config"
	"github.com/JonasLeetTheWay/ticketmarket/internal/logging"
	"github.com/JonasLeetTheWay/ticketmarket/internal/monitoring"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RouteSetter is implemented by every service that exposes HTTP routes.
type RouteSetter interface {
	SetupRoutes(r gin.IRouter, mw *auth.Middleware)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Config     *config.Config
	Logger     *slog.Logger
	DB         *gorm.DB
	Cache      Pinger // optional
	Middleware *auth.Middleware
	Services   []RouteSetter
}

func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.Middleware(opts.Logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     opts.Config.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", logging.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", logging.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", healthCheck(opts.DB, opts.Cache))
	r.GET("/metrics", monitoring.Handler())

	for _, svc := range opts.Services {
		svc.SetupRoutes(r, opts.Middleware)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})

	return r
}

func healthCheck(db *gorm.DB, cache Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := gin.H{"database": "ok"}

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			status = http.StatusServiceUnavailable
			checks["database"] = "unreachable"
		}

		if cache != nil {
			checks["redis"] = "ok"
			if err := cache.Ping(ctx); err != nil {
				// Redis only backs caching and settle locks.
				checks["redis"] = "degraded"
			}
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status": state,
			"checks": checks,
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}
