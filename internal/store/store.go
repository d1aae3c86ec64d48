package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	logs "github.com/danmuck/meshboard/internal/logging"
)

const DefaultMaxNotes = 200

// Options tune a Store.
type Options struct {
	// MaxNotes caps live notes per board; older notes beyond it are tombstoned.
	MaxNotes int
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Store is the sqlite-backed note and ack table.
type Store struct {
	db       *sqlx.DB
	now      func() time.Time
	maxNotes int
}

// Open connects to the sqlite file at path and applies the schema.
func Open(path string, opts Options) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: empty db path")
	}
	dsn := "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect %q: %w", path, err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY between goroutines.
	db.SetMaxOpenConns(1)
	s, err := New(db, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logs.Infof("store.Open path=%q max_notes=%d", path, s.maxNotes)
	return s, nil
}

// New wraps an existing handle and applies the schema.
func New(db *sqlx.DB, opts Options) (*Store, error) {
	if opts.MaxNotes <= 0 {
		opts.MaxNotes = DefaultMaxNotes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{db: db, now: opts.Now, maxNotes: opts.MaxNotes}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) nowMS() int64 {
	return s.now().UnixMilli()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func getNote(ctx context.Context, q sqlx.QueryerContext, where string, args ...any) (Note, bool, error) {
	var n Note
	err := sqlx.GetContext(ctx, q, &n, `SELECT `+noteColumns+` FROM notes WHERE `+where+` LIMIT 1`, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, false, nil
	}
	if err != nil {
		return Note{}, false, fmt.Errorf("store: select note: %w", err)
	}
	return n, true, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
