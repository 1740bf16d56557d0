package infrastructure

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"

	"pdsno.io/controller/internal/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the NIB schema migrations (goose) and the River queue
// table migrations, in that order. Only use AutoMigrate in development;
// production deployments should apply migrations out-of-band.
func (c *DatabaseClients) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}

	logger.Info("Running NIB schema migration...")
	if err := goose.UpContext(ctx, c.DB, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	logger.Info("NIB schema migration completed")

	logger.Info("Running River migration...")
	migrator, err := rivermigrate.New(riverpgxv5.New(c.Pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	if len(res.Versions) > 0 {
		logger.Info("River migration completed", zap.Int("versions_applied", len(res.Versions)))
	} else {
		logger.Info("River migration: already up-to-date")
	}

	return nil
}
