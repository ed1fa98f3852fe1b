package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/JonasLeetTheWay/ticketmarket/internal/config"
	"github.com/JonasLeetTheWay/ticketmarket/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxOpenConns / 2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := models.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("database connected and migrated", "host", cfg.DBHost, "name", cfg.DBName)
	return db, nil
}

// Close releases the pooled connections held by db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func SeedData(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		slog.Info("data already seeded, skipping")
		return nil
	}

	users := []models.User{
		{Email: "admin@ticketmarket.dev", Name: "Marketplace Admin", Role: models.RoleAdmin},
		{Email: "greenline@ticketmarket.dev", Name: "Greenline Coaches", Role: models.RoleVendor},
		{Email: "rivera@ticketmarket.dev", Name: "Rivera Ferries", Role: models.RoleVendor},
		{Email: "customer@ticketmarket.dev", Name: "Demo Customer", Role: models.RoleCustomer},
	}
	for _, user := range users {
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
	}

	tickets := []models.Ticket{
		seedTicket(users[1], "Dhaka to Chittagong Express", "bus", "Dhaka", "Chittagong", "2026-11-02", "08:30", "25.00", 40),
		seedTicket(users[1], "Night Coach to Sylhet", "bus", "Dhaka", "Sylhet", "2026-11-03", "22:00", "18.50", 36),
		seedTicket(users[2], "River Cruise to Barisal", "launch", "Dhaka", "Barisal", "2026-11-05", "19:00", "30.00", 120),
		seedTicket(users[2], "Morning Ferry to Khulna", "launch", "Barisal", "Khulna", "2026-11-06", "07:15", "12.00", 80),
	}
	for _, ticket := range tickets {
		if err := db.Create(&ticket).Error; err != nil {
			return fmt.Errorf("failed to create ticket: %w", err)
		}
	}

	slog.Info("sample data seeded", "users", len(users), "tickets", len(tickets))
	return nil
}

func seedTicket(vendor models.User, title, transport, from, to, date, at, price string, quantity int) models.Ticket {
	return models.Ticket{
		VendorEmail:        vendor.Email,
		VendorName:         vendor.Name,
		Title:              title,
		TransportType:      transport,
		From:               from,
		To:                 to,
		DepartureDate:      date,
		DepartureTime:      at,
		Price:              decimal.RequireFromString(price),
		Quantity:           quantity,
		Perks:              []string{"AC", "Water"},
		VerificationStatus: models.VerificationApproved,
	}
}
