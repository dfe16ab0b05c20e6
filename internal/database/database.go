package database

import (
	"fmt"
	"log"

	"leadbot-gateway/internal/config"
	"leadbot-gateway/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Init opens the database connection and runs auto-migration. PostgreSQL is
// used when DB_HOST is configured; otherwise a local SQLite file.
func Init(cfg *config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	if cfg.DBHost != "" {
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		log.Println("Connected to PostgreSQL successfully")
	} else {
		db, err = gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
		log.Printf("Using SQLite database at %s", cfg.DBPath)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs auto-migration for all models. Exposed separately so tests can
// run it against a throwaway database.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Contact{},
		&models.Message{},
		&models.LeadProfile{},
		&models.User{},
		&models.SystemConfig{},
	)
	if err != nil {
		return fmt.Errorf("failed to run auto-migration: %w", err)
	}
	log.Println("Database migration completed")
	return nil
}

// SyncConfig reconciles environment configuration with the system_configs
// table: DB values win when present, env values are persisted when the key is
// missing.
func SyncConfig(db *gorm.DB, cfg *config.Config) {
	settings := []struct {
		Key   string
		Value *string
	}{
		{"ZAPI_INSTANCE_ID", &cfg.ZAPIInstanceID},
		{"ZAPI_TOKEN", &cfg.ZAPIToken},
		{"ZAPI_CLIENT_TOKEN", &cfg.ZAPIClientToken},
		{"GEMINI_API_KEY", &cfg.GeminiAPIKey},
	}

	for _, s := range settings {
		var row models.SystemConfig
		if err := db.Where("key = ?", s.Key).First(&row).Error; err == nil {
			if row.Value != "" {
				*s.Value = row.Value
			}
		} else if *s.Value != "" {
			db.Create(&models.SystemConfig{
				Key:   s.Key,
				Value: *s.Value,
			})
		}
	}
	log.Println("System settings synchronized from database")
}
