package migration

import (
	"github.com/smallbiznis/bursar/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.MigrateOnStart {
			log.Info("schema migrations disabled", zap.String("dialect", conn.Dialector.Name()))
			return nil
		}
		return Migrate(conn)
	}),
)
