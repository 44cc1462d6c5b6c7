package migration

import (
	"github.com/vidra-ai/vidra/internal/config"
	"github.com/vidra-ai/vidra/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite has no versioned migrations; build the schema from
			// the domain models.
			if err := Bootstrap(conn); err != nil {
				return err
			}
			return seed.EnsureModels(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		return seed.EnsureModels(conn)
	}),
)
