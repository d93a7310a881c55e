// Package usage keeps a best-effort daily count of chat sessions.
package usage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultTable  = "daily_summary"
	DefaultColumn = "chat_ct"

	// dayColumn is the key column of every counter table.
	dayColumn = "today"
	dayLayout = "01-02-2006"
)

var (
	ErrInvalidIdentifier = errors.New("usage: invalid table or column name")
	ErrMissingConfig     = errors.New("usage: store url and key are required")
	ErrUnsupportedStore  = errors.New("usage: unsupported store url")
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store atomically increments one column of the row keyed by day, inserting
// the row when it does not exist yet.
type Store interface {
	Increment(ctx context.Context, table, column, day string) error
	Close() error
}

// Counter increments today's row of one table column.
type Counter struct {
	store  Store
	table  string
	column string
	now    func() time.Time
}

// NewCounter validates the identifiers and binds them to store.
func NewCounter(store Store, table, column string) (*Counter, error) {
	if store == nil {
		return nil, errors.New("usage: store is required")
	}
	if !validIdentifier(table) || !validIdentifier(column) || column == dayColumn {
		return nil, fmt.Errorf("%w: table=%q column=%q", ErrInvalidIdentifier, table, column)
	}
	return &Counter{store: store, table: table, column: column, now: time.Now}, nil
}

// Increment adds one to today's counter.
func (c *Counter) Increment(ctx context.Context) error {
	day := DayKey(c.now())
	if err := c.store.Increment(ctx, c.table, c.column, day); err != nil {
		return fmt.Errorf("increment %s.%s for %s: %w", c.table, c.column, day, err)
	}
	return nil
}

// DayKey formats t the way counter rows are keyed.
func DayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// NewStore picks a store implementation from the url scheme: http(s) talks to
// a PostgREST endpoint, sqlite:/file: opens a local database.
func NewStore(rawURL, key string) (Store, error) {
	rawURL = strings.TrimSpace(rawURL)
	key = strings.TrimSpace(key)
	if rawURL == "" || key == "" {
		return nil, ErrMissingConfig
	}

	switch {
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		return NewRESTStore(rawURL, key, nil), nil
	case strings.HasPrefix(rawURL, "sqlite://"):
		return openSQLite(strings.TrimPrefix(rawURL, "sqlite://"))
	case strings.HasPrefix(rawURL, "sqlite:"):
		return openSQLite(strings.TrimPrefix(rawURL, "sqlite:"))
	case strings.HasPrefix(rawURL, "file:"):
		return openSQLite(rawURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStore, rawURL)
	}
}

func openSQLite(dsn string) (Store, error) {
	store, err := NewSQLiteStore(dsn)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func validIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}
