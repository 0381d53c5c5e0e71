// Package sqlite provides a SQLite-backed TemplateRepository. It is the
// default for local development and what the store tests run against.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"mailtpl/internal/models"
	"mailtpl/internal/ports"
	"mailtpl/internal/repositories/sqlite/migrations"
)

const versionColumns = `id, template_id, title, content, description, created_at`

// Store persists templates and versions in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ ports.TemplateRepository = (*Store)(nil)

// Timestamps are stored as unix microseconds, the resolution of a Postgres
// timestamptz, so both backends hand back identical values.
func toMicros(value time.Time) int64 {
	return value.UTC().UnixMicro()
}

func fromMicros(value int64) time.Time {
	return time.UnixMicro(value).UTC()
}

// Open opens a SQLite template store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway and this keeps
	// busy errors out of concurrent appends.
	sqlDB.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) CreateTemplate(ctx context.Context, t models.Template, v models.TemplateVersion) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO templates (id, title, created_at) VALUES (?, ?, ?)`,
			t.ID, t.Title, toMicros(t.CreatedAt),
		); err != nil {
			if isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE) {
				return ports.ErrDuplicateID
			}
			return fmt.Errorf("insert template: %w", err)
		}
		return insertVersion(ctx, tx, v)
	})
}

func (s *Store) GetTemplate(ctx context.Context, id string) (models.Template, error) {
	var (
		t         models.Template
		createdAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, title, created_at FROM templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.Title, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Template{}, ports.ErrTemplateNotFound
		}
		return models.Template{}, fmt.Errorf("get template: %w", err)
	}
	t.CreatedAt = fromMicros(createdAt)
	return t, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]models.Template, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, title, created_at FROM templates ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	out := []models.Template{}
	for rows.Next() {
		var (
			t         models.Template
			createdAt int64
		)
		if err := rows.Scan(&t.ID, &t.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		t.CreatedAt = fromMicros(createdAt)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

func (s *Store) AppendVersion(ctx context.Context, v models.TemplateVersion) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var found int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM templates WHERE id = ?`, v.TemplateID).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return ports.ErrTemplateNotFound
		}
		if err != nil {
			return fmt.Errorf("check template: %w", err)
		}
		return insertVersion(ctx, tx, v)
	})
}

func insertVersion(ctx context.Context, tx *sql.Tx, v models.TemplateVersion) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO template_versions (id, template_id, title, content, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.TemplateID, v.Title, v.Content, v.Description, toMicros(v.CreatedAt),
	)
	if err != nil {
		switch {
		case isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY):
			return ports.ErrTemplateNotFound
		case isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY):
			return ports.ErrDuplicateID
		}
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func (s *Store) GetVersion(ctx context.Context, id string) (models.TemplateVersion, error) {
	v, err := scanVersion(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM template_versions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.TemplateVersion{}, ports.ErrVersionNotFound
	}
	if err != nil {
		return models.TemplateVersion{}, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

func (s *Store) ListVersions(ctx context.Context, templateID string) ([]models.TemplateVersion, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+versionColumns+`
		 FROM template_versions
		 WHERE template_id = ?
		 ORDER BY created_at DESC, seq DESC`, templateID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	out := []models.TemplateVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return out, nil
}

func (s *Store) LatestVersion(ctx context.Context, templateID string) (models.TemplateVersion, error) {
	v, err := scanVersion(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+versionColumns+`
		 FROM template_versions
		 WHERE template_id = ?
		 ORDER BY created_at DESC, seq DESC
		 LIMIT 1`, templateID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.TemplateVersion{}, ports.ErrVersionNotFound
	}
	if err != nil {
		return models.TemplateVersion{}, fmt.Errorf("latest version: %w", err)
	}
	return v, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (models.TemplateVersion, error) {
	var (
		v           models.TemplateVersion
		description sql.NullString
		createdAt   int64
	)
	if err := row.Scan(&v.ID, &v.TemplateID, &v.Title, &v.Content, &description, &createdAt); err != nil {
		return models.TemplateVersion{}, err
	}
	if description.Valid {
		v.Description = &description.String
	}
	v.CreatedAt = fromMicros(createdAt)
	return v, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isConstraint(err error, codes ...int) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	for _, code := range codes {
		if sqliteErr.Code() == code {
			return true
		}
	}
	return false
}
