package database

import (
	"fmt"
	"time"

	"zakaria-backend/internal/config"
	"zakaria-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects with the configured driver. sqlite is meant for local runs
// and tests.
func Open(driver, dsn string) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), gormCfg)
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
		if err != nil {
			return nil, err
		}
		// one writer at a time
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.EMILedger{},
		&models.Installment{},
		&models.Payment{},
		&models.AuditLog{},
	)
}

// Init opens the database, migrates it and stores the handle in DB.
func Init(cfg *config.Config, log zerolog.Logger) *gorm.DB {
	db, err := Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("could not connect to database")
	}

	if err := Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("AutoMigrate failed")
	}

	log.Info().Str("driver", cfg.DatabaseDriver).Msg("database connected, migration complete")
	DB = db
	return db
}
