package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/docloom/docloom/internal/errs"
)

// SQLiteStore persists keys and sorted sets in a local SQLite database.
// Expiry is enforced lazily: expired rows are invisible to reads and
// swept opportunistically on writes.
type SQLiteStore struct {
	db *sqlx.DB
}

// Open constructs a SQLiteStore at the provided path. The schema is
// migrated on first use.
func Open(path string) (*SQLiteStore, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		cfg.Path = trimmed
	}
	return OpenWithConfig(cfg)
}

// OpenWithConfig constructs a SQLiteStore using the provided configuration.
func OpenWithConfig(cfg Config) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("kvstore path required")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve kvstore path: %w", err)
	}
	busy := int(cfg.BusyTimeout / time.Millisecond)
	if busy <= 0 {
		busy = 5000
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", abs, busy)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open kvstore: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.BusyTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping kvstore: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at INTEGER
	);`,
	`CREATE TABLE IF NOT EXISTS zset (
		key TEXT NOT NULL,
		member TEXT NOT NULL,
		score REAL NOT NULL,
		PRIMARY KEY (key, member)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_zset_key_score ON zset (key, score DESC);`,
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value,
		`SELECT value FROM kv WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, time.Now().UnixMilli())
	if errors.Is(err, sql.ErrNoRows) {
		return "", errs.NotFound("key %q not found", key)
	}
	if err != nil {
		return "", fmt.Errorf("kvstore get: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var expires interface{}
	if ttl > 0 {
		expires = time.Now().Add(ttl).UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expires)
	if err != nil {
		return fmt.Errorf("kvstore set: %w", err)
	}
	s.sweep(ctx)
	return nil
}

func (s *SQLiteStore) Del(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kvstore del: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	like := globToLike(pattern)
	var keys []string
	err := s.db.SelectContext(ctx, &keys,
		`SELECT key FROM kv WHERE key LIKE ? ESCAPE '\' AND (expires_at IS NULL OR expires_at > ?) ORDER BY key`,
		like, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("kvstore scan: %w", err)
	}
	return keys, nil
}

func (s *SQLiteStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO zset (key, member, score) VALUES (?, ?, ?)
		 ON CONFLICT(key, member) DO UPDATE SET score = excluded.score`,
		key, member, score)
	if err != nil {
		return fmt.Errorf("kvstore zadd: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ZRem(ctx context.Context, key, member string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM zset WHERE key = ? AND member = ?`, key, member); err != nil {
		return fmt.Errorf("kvstore zrem: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ZRevRangeByScore(ctx context.Context, key string, limit int) ([]string, error) {
	query := `SELECT member FROM zset WHERE key = ? ORDER BY score DESC`
	args := []interface{}{key}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var members []string
	if err := s.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, fmt.Errorf("kvstore zrange: %w", err)
	}
	return members, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// sweep deletes expired rows. Failures are ignored; expired rows stay
// invisible to reads regardless.
func (s *SQLiteStore) sweep(ctx context.Context) {
	_, _ = s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= ?`, time.Now().UnixMilli())
}

func globToLike(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var _ Store = (*SQLiteStore)(nil)
