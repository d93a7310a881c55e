package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps counters in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB

	mu       sync.Mutex
	migrated map[string]bool
}

// NewSQLiteStore opens (and creates if needed) the database at dsn.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty sqlite path", ErrUnsupportedStore)
	}

	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer connection serialises increments inside this process.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, migrated: make(map[string]bool)}, nil
}

// Increment upserts the day row in a single statement.
func (s *SQLiteStore) Increment(ctx context.Context, table, column, day string) error {
	if !validIdentifier(table) || !validIdentifier(column) {
		return ErrInvalidIdentifier
	}
	if err := s.migrate(ctx, table, column); err != nil {
		return err
	}

	query := fmt.Sprintf(
		`INSERT INTO %[1]s (%[2]s, %[3]s) VALUES (?, 1)
		ON CONFLICT(%[2]s) DO UPDATE SET %[3]s = %[3]s + 1`,
		table, dayColumn, column,
	)
	if _, err := s.db.ExecContext(ctx, query, day); err != nil {
		return fmt.Errorf("upsert counter: %w", err)
	}
	return nil
}

// Count returns the stored value for day, or zero when no row exists.
func (s *SQLiteStore) Count(ctx context.Context, table, column, day string) (int64, error) {
	if !validIdentifier(table) || !validIdentifier(column) {
		return 0, ErrInvalidIdentifier
	}
	if err := s.migrate(ctx, table, column); err != nil {
		return 0, err
	}

	var count int64
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`, column, table, dayColumn)
	err := s.db.QueryRowContext(ctx, query, day).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return count, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context, table, column string) error {
	key := table + "." + column

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.migrated[key] {
		return nil
	}

	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			%s TEXT PRIMARY KEY,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`, table, dayColumn),
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	if err := s.ensureColumn(ctx, table, column); err != nil {
		return err
	}

	s.migrated[key] = true
	return nil
}

func (s *SQLiteStore) ensureColumn(ctx context.Context, table, column string) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return fmt.Errorf("inspect table %s: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect table %s: %w", table, err)
	}
	rows.Close()

	stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s INTEGER NOT NULL DEFAULT 0`, table, column)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("migration failed: %w\nSQL: %s", err, stmt)
	}
	return nil
}
