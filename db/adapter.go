// Package db opens the configured SQL backend.
package db

import (
	"fmt"

	"github.com/kasuganosora/nickfinder/config"
	dbmysql "github.com/kasuganosora/nickfinder/db/mysql"
	dbpostgres "github.com/kasuganosora/nickfinder/db/postgres"
	dbsqlite "github.com/kasuganosora/nickfinder/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite   = "sqlite"
	ModeMySQL    = "mysql"
	ModePostgres = "postgres"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg)
	case ModePostgres:
		return dbpostgres.Open(cfg)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
