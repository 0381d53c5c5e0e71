// Package postgres is the PostgreSQL TemplateRepository built on pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailtpl/internal/models"
	"mailtpl/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

const versionColumns = `id, template_id, title, content, description, created_at`

type TemplateRepository struct {
	db *pgxpool.Pool
}

var _ ports.TemplateRepository = (*TemplateRepository)(nil)

func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Open connects to databaseURL, verifies the connection and makes sure the
// schema exists.
func Open(ctx context.Context, databaseURL string) (*TemplateRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewTemplateRepository(pool), nil
}

// EnsureSchema creates the tables if they are missing. Every statement is
// idempotent.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	// No arguments, so pgx sends this over the simple protocol, which accepts
	// several statements at once.
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (r *TemplateRepository) CreateTemplate(ctx context.Context, t models.Template, v models.TemplateVersion) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO templates (id, title, created_at)
			VALUES ($1,$2,$3)
		`, t.ID, t.Title, t.CreatedAt)
		if err != nil {
			if IsUniqueViolation(err) {
				return ports.ErrDuplicateID
			}
			return fmt.Errorf("insert template: %w", err)
		}
		return insertVersion(ctx, tx, v)
	})
}

func (r *TemplateRepository) GetTemplate(ctx context.Context, id string) (models.Template, error) {
	var t models.Template
	err := r.db.QueryRow(ctx, `
		SELECT id, title, created_at
		FROM templates
		WHERE id=$1
	`, id).Scan(&t.ID, &t.Title, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Template{}, ports.ErrTemplateNotFound
		}
		return models.Template{}, fmt.Errorf("get template: %w", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func (r *TemplateRepository) ListTemplates(ctx context.Context) ([]models.Template, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, title, created_at
		FROM templates
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.Template])
	if err != nil {
		return nil, fmt.Errorf("scan templates: %w", err)
	}
	for i := range out {
		out[i].CreatedAt = out[i].CreatedAt.UTC()
	}
	return out, nil
}

func (r *TemplateRepository) AppendVersion(ctx context.Context, v models.TemplateVersion) error {
	return insertVersion(ctx, r.db, v)
}

func insertVersion(ctx context.Context, db execer, v models.TemplateVersion) error {
	_, err := db.Exec(ctx, `
		INSERT INTO template_versions (id, template_id, title, content, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, v.ID, v.TemplateID, v.Title, v.Content, v.Description, v.CreatedAt)
	if err != nil {
		switch {
		case IsForeignKeyViolation(err):
			return ports.ErrTemplateNotFound
		case IsUniqueViolation(err):
			return ports.ErrDuplicateID
		}
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func (r *TemplateRepository) GetVersion(ctx context.Context, id string) (models.TemplateVersion, error) {
	rows, err := r.db.Query(ctx, `SELECT `+versionColumns+` FROM template_versions WHERE id=$1`, id)
	if err != nil {
		return models.TemplateVersion{}, fmt.Errorf("get version: %w", err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[models.TemplateVersion])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TemplateVersion{}, ports.ErrVersionNotFound
		}
		return models.TemplateVersion{}, fmt.Errorf("scan version: %w", err)
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return v, nil
}

func (r *TemplateRepository) ListVersions(ctx context.Context, templateID string) ([]models.TemplateVersion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+versionColumns+`
		FROM template_versions
		WHERE template_id=$1
		ORDER BY created_at DESC, seq DESC
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.TemplateVersion])
	if err != nil {
		return nil, fmt.Errorf("scan versions: %w", err)
	}
	for i := range out {
		out[i].CreatedAt = out[i].CreatedAt.UTC()
	}
	return out, nil
}

func (r *TemplateRepository) LatestVersion(ctx context.Context, templateID string) (models.TemplateVersion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+versionColumns+`
		FROM template_versions
		WHERE template_id=$1
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, templateID)
	if err != nil {
		return models.TemplateVersion{}, fmt.Errorf("latest version: %w", err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[models.TemplateVersion])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TemplateVersion{}, ports.ErrVersionNotFound
		}
		return models.TemplateVersion{}, fmt.Errorf("scan latest version: %w", err)
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return v, nil
}

func (r *TemplateRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Stat exposes pool counters for the deep health check.
func (r *TemplateRepository) Stat() *pgxpool.Stat {
	return r.db.Stat()
}

func (r *TemplateRepository) Close() error {
	r.db.Close()
	return nil
}
