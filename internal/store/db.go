// Package store is the Repo (spec.md §4.4): the sole persistence interface
// used by the scheduler, delivery FSM, and command handlers. Backed by
// SQLite via database/sql, schema evolved through embedded goose migrations.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pressly/goose/v3"
	_ "github.com/mattn/go-sqlite3"

	"github.com/basket/pixivbot-go/internal/store/migrations"
)

// Store wraps a *sql.DB with the Repo operations. All exported methods are
// safe for concurrent use — database/sql pools connections internally and
// SQLite serializes writers at the engine level.
type Store struct {
	db *sql.DB
}

// gooseLogger adapts slog to goose.Logger, mirroring the teacher's
// zerolog-to-goose adapter in the pack's uncord-server teacher file.
type gooseLogger struct{ logger *slog.Logger }

func (g gooseLogger) Fatalf(format string, v ...any) { g.logger.Error(fmt.Sprintf(format, v...)) }
func (g gooseLogger) Printf(format string, v ...any) { g.logger.Info(fmt.Sprintf(format, v...)) }

// dsnToPath extracts the filesystem path from a "sqlite:<path>?opts" URL, the
// shape spec.md §6's database.url default uses.
func dsnToPath(url string) string {
	path := strings.TrimPrefix(url, "sqlite:")
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	return path
}

// Open creates/migrates the SQLite database at url ("sqlite:<path>?mode=rwc")
// and returns a ready Store.
func Open(url string, logger *slog.Logger) (*Store, error) {
	path := dsnToPath(url)
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	// SQLite allows exactly one writer; keep the pool to one connection so
	// database/sql doesn't hand out a second conn that collides with it.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite at %s: %w", path, err)
	}

	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate runs all pending goose migrations against db.
func Migrate(db *sql.DB, logger *slog.Logger) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for the doctor diagnostics and for tests
// that need to assert on raw rows.
func (s *Store) DB() *sql.DB { return s.db }
