package app

import (
	"context"
	"strings"
	"time"

	"github.com/wayposthq/waypost/internal/config"
	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/migrator"
	"go.uber.org/zap"
)

const (
	migrationMaxRetries = 3
	migrationRetryDelay = 5 * time.Second
)

// runMigration brings the postgres schema up to date before any worker
// starts. When several nodes boot at once, one wins the migration lock and
// the others fail with a lock error; those wait out the delay and retry, by
// which time the schema is current and the lock is free again.
func runMigration(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	var lastErr error

	for attempt := 1; attempt <= migrationMaxRetries; attempt++ {
		m, err := migrator.New(cfg.ToMigratorOpts())
		if err != nil {
			return err
		}

		version, applied, err := m.Up(ctx, -1)

		sourceErr, dbErr := m.Close(ctx)
		if sourceErr != nil {
			logger.Error("failed to close migration source", zap.Error(sourceErr))
		}
		if dbErr != nil {
			logger.Error("failed to close migration database connection", zap.Error(dbErr))
		}

		if err == nil {
			if applied > 0 {
				logger.Info("migrations applied",
					zap.Int("version", version),
					zap.Int("migrations_applied", applied))
			} else {
				logger.Info("schema up to date", zap.Int("version", version))
			}
			return nil
		}

		lastErr = err
		if !isLockRelatedError(err) {
			logger.Error("migration failed", zap.Error(err))
			return err
		}

		if attempt == migrationMaxRetries {
			logger.Error("migration failed after retries",
				zap.Int("attempts", migrationMaxRetries),
				zap.Error(err))
			break
		}

		logger.Warn("migration lock held by another node, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("retry_delay", migrationRetryDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(migrationRetryDelay):
		}
	}

	return lastErr
}

// isLockRelatedError reports whether err is a golang-migrate lock acquisition
// failure. "can't acquire lock" is database.ErrLocked; "try lock failed"
// comes from the postgres driver when pg_advisory_lock fails.
func isLockRelatedError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "can't acquire lock") ||
		strings.Contains(msg, "try lock failed")
}
