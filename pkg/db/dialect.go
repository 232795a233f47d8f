package db

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/portbilling/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect opens the configured driver. Every dialect pins the session to UTC
// so stored voyage instants and cut-off dates compare without offsets.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	switch dialectName(cfg) {
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	default:
		return sqlite.Open(dsn), nil
	}
}

// DSN renders the connection string for cfg.DBType.
func DSN(cfg config.Config) (string, error) {
	switch dialectName(cfg) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName), nil
	case "postgres":
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode), nil
	case "sqlite":
		name := strings.TrimSpace(cfg.DBName)
		if name == "" {
			return "", fmt.Errorf("sqlite database name is required")
		}
		if name == ":memory:" || strings.HasPrefix(name, "file:") {
			return name, nil
		}
		if !strings.HasSuffix(name, ".db") {
			name += ".db"
		}
		return name + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", nil
	default:
		return "", fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

func dialectName(cfg config.Config) string {
	return strings.ToLower(strings.TrimSpace(cfg.DBType))
}
