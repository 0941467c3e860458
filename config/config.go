package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/prawira/gotix/internal/models"
	"github.com/prawira/gotix/internal/provider"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	ReservationTTL time.Duration
	SweepInterval  time.Duration
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		DBHost:         os.Getenv("DB_HOST"),
		DBPort:         os.Getenv("DB_PORT"),
		DBUser:         os.Getenv("DB_USER"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBName:         os.Getenv("DB_NAME"),
		ReservationTTL: 15 * time.Minute,
		SweepInterval:  time.Minute,
	}

	if minutes := os.Getenv("RESERVATION_TTL_MINUTES"); minutes != "" {
		parsed, err := strconv.Atoi(minutes)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid RESERVATION_TTL_MINUTES: %q", minutes)
		}
		cfg.ReservationTTL = time.Duration(parsed) * time.Minute
	}
	if seconds := os.Getenv("SWEEP_INTERVAL_SECONDS"); seconds != "" {
		parsed, err := strconv.Atoi(seconds)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid SWEEP_INTERVAL_SECONDS: %q", seconds)
		}
		cfg.SweepInterval = time.Duration(parsed) * time.Second
	}

	return cfg, nil
}

func LoadDokuConfig() provider.DokuConfig {
	baseURL := os.Getenv("DOKU_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api-sandbox.doku.com"
	}
	return provider.DokuConfig{
		ClientID:  os.Getenv("DOKU_CLIENT_ID"),
		SecretKey: os.Getenv("DOKU_SECRET_KEY"),
		BaseURL:   baseURL,
	}
}

func LoadXenditConfig() provider.XenditConfig {
	baseURL := os.Getenv("BASE_URL")
	return provider.XenditConfig{
		SecretKey:     os.Getenv("XENDIT_SECRET_KEY"),
		CallbackToken: os.Getenv("XENDIT_CALLBACK_TOKEN"),
		SuccessURL:    baseURL + "/payment/success",
		FailureURL:    baseURL + "/payment/failed",
	}
}

func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error
}

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := enableUUIDExtension(db); err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.Event{},
		&models.Reservation{},
		&models.Order{},
		&models.Ticket{},
		&models.PaymentCallback{},
	)
	if err != nil {
		return nil, err
	}

	seedRoles(db)
	seedAdmin(db)

	return db, nil
}

func seedRoles(db *gorm.DB) {
	roles := []models.Role{
		{Name: "attendee"},
		{Name: "admin"},
	}

	for _, role := range roles {
		var existingRole models.Role
		result := db.Where("name = ?", role.Name).First(&existingRole)
		if result.Error != nil {
			db.Create(&role)
		}
	}
}

func seedAdmin(db *gorm.DB) {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return
	}

	var existing models.User
	if result := db.Where("email = ?", email).First(&existing); result.Error == nil {
		return
	}

	var adminRole models.Role
	if err := db.Where("name = ?", "admin").First(&adminRole).Error; err != nil {
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return
	}

	db.Create(&models.User{
		ID:          uuid.New(),
		Name:        "Admin User",
		Email:       email,
		Password:    string(hashed),
		PhoneNumber: "-",
		RoleID:      adminRole.ID,
	})
}
