package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "store:clear"

// ClearTasks truncates the relay_tasks table. Schema is preserved; only data
// is removed. Pending tasks lose their metadata and will be treated as
// orphans by the replacement coordinator, so only run this while the relay is
// stopped.
func ClearTasks(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing relay task table", clearLogPrefix))

	_, err := pool.Exec(ctx, `TRUNCATE TABLE relay_tasks RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Relay tasks cleared", clearLogPrefix))
	return nil
}
