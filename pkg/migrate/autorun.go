package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/db"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date at boot in dev when the
// auto-migrate flag is set. sqlite gets the embedded schema instead of goose.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if client.IsSQLite() {
		logg.Info(ctx, "applying sqlite schema")
		return db.ApplySQLiteSchema(ctx, client.DB())
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql db: %w", err)
	}
	files, err := Files("")
	if err != nil {
		return err
	}
	m, err := New(sqlDB, files, logg)
	if err != nil {
		return err
	}
	return m.Up(ctx)
}
