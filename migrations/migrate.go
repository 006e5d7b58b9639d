package migrations

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed *.sql
var migrationFiles embed.FS

// migrationLockID serializes concurrent starters against one database.
const migrationLockID int64 = 474923001

type migration struct {
	name     string
	sql      string
	checksum string
}

// Apply runs the embedded SQL migrations in filename order. Each applied
// migration is recorded with a checksum of its source; editing an already
// applied file is reported as an error rather than silently ignored.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	pending, err := load()
	if err != nil {
		return err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockID)
	}()

	if _, err := conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	checksum TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, m := range pending {
		var recorded string
		err := conn.QueryRow(ctx, `SELECT checksum FROM schema_migrations WHERE name = $1`, m.name).Scan(&recorded)
		switch {
		case err == nil:
			if recorded != m.checksum {
				return fmt.Errorf("migration %s changed after being applied (checksum %s, recorded %s)", m.name, m.checksum, recorded)
			}
			continue
		case errors.Is(err, pgx.ErrNoRows):
			// not applied yet
		default:
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}

		if err := applyOne(ctx, conn.Exec, m); err != nil {
			return err
		}
	}
	return nil
}

type execer func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

func applyOne(ctx context.Context, exec execer, m migration) error {
	if _, err := exec(ctx, m.sql); err != nil {
		return fmt.Errorf("exec migration %s: %w", m.name, err)
	}
	if _, err := exec(ctx, `INSERT INTO schema_migrations (name, checksum) VALUES ($1, $2)`, m.name, m.checksum); err != nil {
		return fmt.Errorf("record migration %s: %w", m.name, err)
	}
	return nil
}

// load reads and orders the embedded files, skipping empty ones.
func load() ([]migration, error) {
	entries, err := migrationFiles.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	out := make([]migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		raw, err := migrationFiles.ReadFile(e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		sql := strings.TrimSpace(string(raw))
		if sql == "" {
			continue
		}
		sum := sha256.Sum256([]byte(sql))
		out = append(out, migration{
			name:     e.Name(),
			sql:      sql,
			checksum: hex.EncodeToString(sum[:]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}
