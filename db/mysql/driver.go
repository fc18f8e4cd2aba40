package mysql

import (
	"fmt"
	"net/url"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/kasuganosora/nickfinder/config"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN forces the connection options the models depend on: parsed DATETIME
// columns in UTC and utf8mb4 for nicknames and messages.
func DSN(raw string) (string, error) {
	c, err := gomysql.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("mysql: parse dsn: %w", err)
	}
	c.ParseTime = true
	if !hasParam(raw, "charset") {
		if c.Params == nil {
			c.Params = map[string]string{}
		}
		c.Params["charset"] = "utf8mb4"
	}
	return c.FormatDSN(), nil
}

// hasParam reports whether the DSN query string sets key. The driver keeps
// charset out of Config.Params, so the raw DSN is the only place to look.
func hasParam(raw, key string) bool {
	i := strings.LastIndexByte(raw, '?')
	if i < 0 {
		return false
	}
	q, err := url.ParseQuery(raw[i+1:])
	if err != nil {
		return false
	}
	_, ok := q[key]
	return ok
}

// Open connects to MySQL and applies the configured pool limits.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn, err := DSN(cfg.MySQLDSN)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetConnMaxLifetime(cfg.MaxLife)
	return db, nil
}
