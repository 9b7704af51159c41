package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // SQLite driver

	"policyrag/internal/domain"
	"policyrag/internal/ledger/migrations"
)

// SQLite is a file-backed ledger. Records are partitioned by scope so one
// file can serve several vector stores or collections.
type SQLite struct {
	db    *sql.DB
	path  string
	scope string
}

var _ domain.Ledger = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the ledger database at path,
// applies pending migrations and returns a ledger bound to scope.
func OpenSQLite(path, scope string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &SQLite{db: db, path: path, scope: scope}, nil
}

// migrateUp applies the embedded migrations. The migrate instance is not
// closed since that would close db as well.
func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{MigrationsTable: "ledger_migrations"})
	if err != nil {
		return fmt.Errorf("init migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (l *SQLite) Close() error { return l.db.Close() }

func (l *SQLite) Path() string { return l.path }

func (l *SQLite) Scope() string { return l.scope }

func (l *SQLite) Lookup(ctx context.Context, checksum string) (domain.IngestionRecord, bool, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT checksum, document_id, file_name, source, chunks, summary, ingested_at
		FROM ingestions WHERE scope = ? AND checksum = ?`, l.scope, checksum)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IngestionRecord{}, false, nil
	}
	if err != nil {
		return domain.IngestionRecord{}, false, fmt.Errorf("lookup %s: %w", checksum, err)
	}
	return rec, true, nil
}

func (l *SQLite) Record(ctx context.Context, rec domain.IngestionRecord) error {
	if rec.Checksum == "" {
		return fmt.Errorf("%w: empty checksum", domain.ErrInvalidInput)
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO ingestions (scope, checksum, document_id, file_name, source, chunks, summary, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, checksum) DO UPDATE SET
			document_id = excluded.document_id,
			file_name = excluded.file_name,
			source = excluded.source,
			chunks = excluded.chunks,
			summary = excluded.summary,
			ingested_at = excluded.ingested_at
	`, l.scope, rec.Checksum, rec.DocumentID, rec.FileName, rec.Source, rec.Chunks, rec.Summary,
		rec.IngestedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording %s: %w", rec.Source, err)
	}
	return nil
}

func (l *SQLite) List(ctx context.Context) ([]domain.IngestionRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT checksum, document_id, file_name, source, chunks, summary, ingested_at
		FROM ingestions WHERE scope = ?`, l.scope)
	if err != nil {
		return nil, fmt.Errorf("listing ingestions: %w", err)
	}
	defer rows.Close()

	var out []domain.IngestionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortRecords(out)
	return out, nil
}

// Clear forgets every record in this ledger's scope.
func (l *SQLite) Clear(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM ingestions WHERE scope = ?`, l.scope); err != nil {
		return fmt.Errorf("clearing ledger scope %q: %w", l.scope, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (domain.IngestionRecord, error) {
	var (
		rec domain.IngestionRecord
		at  string
	)
	if err := s.Scan(&rec.Checksum, &rec.DocumentID, &rec.FileName, &rec.Source, &rec.Chunks, &rec.Summary, &at); err != nil {
		return rec, err
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return rec, fmt.Errorf("parsing ingested_at %q: %w", at, err)
	}
	rec.IngestedAt = t
	return rec, nil
}
