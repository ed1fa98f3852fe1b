package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JonasLeetTheWay/ticketmarket/internal/auth"
	"github.com/JonasLeetTheWay/ticketmarket/internal/config"
	"github.com/JonasLeetTheWay/ticketmarket/internal/database"
	"github.com/JonasLeetTheWay/ticketmarket/internal/logging"
	"github.com/JonasLeetTheWay/ticketmarket/internal/payment"
	"github.com/JonasLeetTheWay/ticketmarket/internal/redis"
	"github.com/JonasLeetTheWay/ticketmarket/internal/server"
	"github.com/JonasLeetTheWay/ticketmarket/internal/services/booking"
	"github.com/JonasLeetTheWay/ticketmarket/internal/services/catalog"
	"github.com/JonasLeetTheWay/ticketmarket/internal/services/payments"
	"github.com/JonasLeetTheWay/ticketmarket/internal/services/reconcile"
	"github.com/JonasLeetTheWay/ticketmarket/internal/services/user"
	"github.com/JonasLeetTheWay/ticketmarket/internal/services/vendor"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger := logging.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(cfg.GinMode)

	if !cfg.MockStripeEnabled {
		logger.Error("no live payment processor is available, set MOCK_STRIPE_ENABLED=true")
		os.Exit(1)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	// Redis backs the catalog cache and settlement locks; the database
	// guards still hold when it is down.
	redisClient := redis.NewClient(cfg)
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()); err != nil {
		logger.Warn("redis unreachable, continuing without cache", "error", err)
	}

	// Create services
	catalogService := catalog.NewService(db, redisClient, cfg.CatalogCacheTTL)
	bookingService := booking.NewService(db)
	paymentService := payments.NewService(db, payment.NewMockStripeClient(cfg), redisClient, cfg.SettleLockTTL)
	userService := user.NewService(db, catalogService)
	vendorService := vendor.NewService(db)
	reconcileService := reconcile.NewService(db, catalogService, cfg.ReconcileInterval)

	mw := auth.NewMiddleware(auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer), auth.NewResolver(db))

	r := server.NewRouter(server.Options{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Cache:      redisClient,
		Middleware: mw,
		Services: []server.RouteSetter{
			catalogService,
			bookingService,
			paymentService,
			userService,
			vendorService,
			reconcileService,
		},
	})

	// Start reconcile worker in background
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reconcileService.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("ticketmarket API starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
}
