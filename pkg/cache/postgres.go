package cache

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"time"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Postgres stores entries in a PostgreSQL table. It expects the lib/pq driver
// to be registered by the caller that opened db.
type Postgres struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// NewPostgres creates a PostgreSQL-backed cache using table.
func NewPostgres(db *sql.DB, table string) (*Postgres, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("cache: invalid table name %q", table)
	}
	return &Postgres{db: db, table: table, now: time.Now}, nil
}

// Initialize creates the cache table if it doesn't exist
func (p *Postgres) Initialize(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			expires_at TIMESTAMP
		)
	`, p.table))
	return err
}

// Get retrieves a value by key. Expired rows are treated as missing.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT value FROM %s
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
	`, p.table), key, p.now().UTC()).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set stores a value, replacing any existing entry.
func (p *Postgres) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires sql.NullTime
	if ttl > 0 {
		expires = sql.NullTime{Time: p.now().UTC().Add(ttl), Valid: true}
	}
	_, err := p.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, p.table), key, value, expires)
	return err
}

// Delete removes a value.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, p.table), key)
	return err
}

// Purge deletes expired rows and returns how many were removed.
func (p *Postgres) Purge(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= $1
	`, p.table), p.now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Janitor purges expired rows every interval until ctx is done. Purge
// failures are logged and retried on the next tick.
func (p *Postgres) Janitor(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			n, err := p.Purge(ctx)
			if err != nil {
				logger.WarnContext(ctx, "Cache purge failed", slog.String("table", p.table), slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				logger.DebugContext(ctx, "Cache purged", slog.String("table", p.table), slog.Int64("rows", n))
			}
		case <-ctx.Done():
			return
		}
	}
}
