package db

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"arena-agent/internal/config"
	"arena-agent/internal/session"
)

// Init opens the postgres connection and migrates the session schema. The
// handle is returned, not stored; callers own it.
func Init(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := session.Migrate(db); err != nil {
		return nil, err
	}
	log.Printf("[DB] database connected and migrated")
	return db, nil
}
