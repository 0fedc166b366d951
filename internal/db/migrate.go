package db

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// migrationLockID serialises migrations across API replicas starting together.
const migrationLockID int64 = 0x7669_7261_6c

// RunMigrations applies every *.up.sql file of fsys not yet recorded in
// schema_migrations, in lexical order, each in its own transaction.
// It returns the number of files applied.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, log *zap.Logger) (int, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return 0, fmt.Errorf("migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT now()
		)
	`)
	if err != nil {
		return 0, err
	}

	done, err := appliedVersions(ctx, conn.Conn())
	if err != nil {
		return 0, err
	}
	upFiles, err := pendingFiles(fsys, done)
	if err != nil {
		return 0, err
	}

	for _, f := range upFiles {
		version := strings.TrimSuffix(f, ".up.sql")

		sql, err := fs.ReadFile(fsys, f)
		if err != nil {
			return 0, err
		}

		err = pgx.BeginFunc(ctx, conn.Conn(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("migration %s: %w", version, err)
		}

		log.Info("migration applied", zap.String("version", version))
	}

	return len(upFiles), nil
}

func appliedVersions(ctx context.Context, conn *pgx.Conn) (map[string]bool, error) {
	rows, err := conn.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(versions))
	for _, v := range versions {
		done[v] = true
	}
	return done, nil
}

// pendingFiles lists top-level *.up.sql files whose version is not in done.
func pendingFiles(fsys fs.FS, done map[string]bool) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var upFiles []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		if done[strings.TrimSuffix(name, ".up.sql")] {
			continue
		}
		upFiles = append(upFiles, name)
	}
	sort.Strings(upFiles)
	return upFiles, nil
}
