package session

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps named sessions in a SQLite database. Each store
// instance reads and writes one name.
type SQLiteStore struct {
	db   *sql.DB
	name string
}

// OpenSQLiteStore opens (creating if needed) the database at dsn, applies
// pending migrations, and returns a store for the session called name.
func OpenSQLiteStore(ctx context.Context, dsn, name string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("session: opening %s: %w", dsn, err)
	}

	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, name: name}, nil
}

// runMigrations applies all pending schema migrations to the database.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("session: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("session: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("session: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*Session, error) {
	var data []byte

	err := s.db.QueryRowContext(ctx, `SELECT record FROM sessions WHERE name = ?`, s.name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("session: loading %q: %w", s.name, err)
	}

	return decodeRecord(data)
}

func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	data, err := encodeRecord(sess)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (name, record, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		s.name, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("session: saving %q: %w", s.name, err)
	}

	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE name = ?`, s.name); err != nil {
		return fmt.Errorf("session: clearing %q: %w", s.name, err)
	}

	return nil
}

// Close releases the database. Close() is idempotent.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
