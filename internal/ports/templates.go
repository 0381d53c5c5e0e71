package ports

import (
	"context"
	"errors"

	"mailtpl/internal/models"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrVersionNotFound  = errors.New("template version not found")
	// ErrDuplicateID means an insert reused an existing primary key.
	ErrDuplicateID = errors.New("duplicate id")
)

// TemplateRepository persists templates and their append-only version history.
// Implementations: repositories/postgres (pgx) and repositories/sqlite.
type TemplateRepository interface {
	// CreateTemplate inserts t and its initial version v in one transaction.
	// Either both rows exist afterwards or neither does.
	CreateTemplate(ctx context.Context, t models.Template, v models.TemplateVersion) error
	GetTemplate(ctx context.Context, id string) (models.Template, error)
	// ListTemplates returns all templates, newest first.
	ListTemplates(ctx context.Context) ([]models.Template, error)

	// AppendVersion inserts v. It returns ErrTemplateNotFound when
	// v.TemplateID does not reference a template.
	AppendVersion(ctx context.Context, v models.TemplateVersion) error
	GetVersion(ctx context.Context, id string) (models.TemplateVersion, error)
	// ListVersions returns the history of a template ordered by created_at
	// descending; equal timestamps list the later insert first.
	ListVersions(ctx context.Context, templateID string) ([]models.TemplateVersion, error)
	// LatestVersion is the first entry ListVersions would return.
	LatestVersion(ctx context.Context, templateID string) (models.TemplateVersion, error)

	Ping(ctx context.Context) error
	Close() error
}

// VersionCache memoizes ListVersions results.
//
// Lookup hands back a token on a miss; Store must be called with that token so
// an entry computed before an Invalidate can never be served after it.
type VersionCache interface {
	Lookup(ctx context.Context, templateID string) (versions []models.TemplateVersion, token string, hit bool, err error)
	Store(ctx context.Context, templateID, token string, versions []models.TemplateVersion) error
	Invalidate(ctx context.Context, templateID string) error
}
