package database

import (
	"database/sql"
	"fmt"

	"subhub/internal/config"
	"subhub/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var DB *gorm.DB

// InitDB initializes the database connection
func InitDB(cfg *config.DatabaseConfig) error {
	// TranslateError is required: the allocator relies on
	// gorm.ErrDuplicatedKey to detect losing claim races.
	gormCfg := &gorm.Config{TranslateError: true}

	switch cfg.Type {
	case "sqlite":
		// Use pure Go SQLite driver (modernc.org/sqlite)
		sqlDB, err := sql.Open("sqlite", cfg.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		DB, err = gorm.Open(sqlite.Dialector{Conn: sqlDB}, gormCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize GORM: %w", err)
		}
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode(cfg))

		var err error
		DB, err = gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
	default:
		return fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	return Migrate(DB)
}

// Migrate runs schema auto-migration
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.DonatedDomain{},
		&models.SubdomainClaim{},
		&models.OrphanRecord{},
		&models.Notification{},
		&models.User{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

func sslMode(cfg *config.DatabaseConfig) string {
	if cfg.SSLMode == "" {
		return "disable"
	}
	return cfg.SSLMode
}
