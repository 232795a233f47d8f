package migration

import (
	"strings"
	"time"

	"github.com/smallbiznis/portbilling/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		dbType := strings.ToLower(strings.TrimSpace(cfg.DBType))
		if dbType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
			log.Info("migrations applied", zap.String("type", dbType))
			return nil
		}

		if err := AutoMigrate(conn); err != nil {
			return err
		}
		if err := SeedVatCodes(conn, time.Now().UTC()); err != nil {
			return err
		}
		log.Info("schema auto migrated", zap.String("type", dbType))
		return nil
	}),
)
