package blacklist

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the embedded-database variant of the store: inserts are
// atomic upserts, so concurrent writers no longer lose updates. The
// external contract is the same as XMLStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *log.Logger
}

func OpenSQLite(path string, logger *log.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = log.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create blacklist dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS blacklist (
			domain TEXT PRIMARY KEY,
			added_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) Set {
	set := Set{}
	rows, err := s.db.QueryContext(ctx, `SELECT domain FROM blacklist ORDER BY domain`)
	if err != nil {
		s.logger.Printf("[blacklist] sqlite load: %v", err)
		return set
	}
	defer rows.Close()
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			s.logger.Printf("[blacklist] sqlite scan: %v", err)
			return set
		}
		set.Add(d)
	}
	if err := rows.Err(); err != nil {
		s.logger.Printf("[blacklist] sqlite rows: %v", err)
	}
	return set
}

func (s *SQLiteStore) Add(ctx context.Context, domain string) error {
	domain = normalize(domain)
	if domain == "" {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO blacklist(domain, added_at) VALUES(?, ?)`, domain, now); err != nil {
		return fmt.Errorf("insert domain: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO meta(key, value) VALUES('last_updated', ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, now); err != nil {
		return fmt.Errorf("touch last_updated: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Printf("[blacklist] added domain=%s", domain)
	return nil
}

func (s *SQLiteStore) Contains(ctx context.Context, domain string) bool {
	domain = normalize(domain)
	if domain == "" {
		return false
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM blacklist WHERE domain = ? LIMIT 1`, domain).Scan(&one)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		s.logger.Printf("[blacklist] sqlite contains domain=%s: %v", domain, err)
		return false
	}
	return true
}

// LastUpdated returns the time of the most recent insertion, if any.
func (s *SQLiteStore) LastUpdated(ctx context.Context) (time.Time, bool) {
	var v string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'last_updated'`).Scan(&v); err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
