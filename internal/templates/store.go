// Package templates implements the versioned template store: creating
// templates, appending versions, listing history and reverting. Version rows
// are never updated or deleted; a revert appends a copy.
package templates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mailtpl/internal/cache"
	"mailtpl/internal/models"
	apperrors "mailtpl/internal/pkg/errors"
	"mailtpl/internal/pkg/ids"
	"mailtpl/internal/pkg/logger"
	"mailtpl/internal/ports"
)

// InitialDescription is used for the first version when the caller gives none.
const InitialDescription = "Initial version"

type CreateTemplateInput struct {
	Title       string
	Content     string
	Description *string
}

type CreateVersionInput struct {
	// Title falls back to the template title when blank.
	Title       string
	Content     string
	Description *string
}

type Deps struct {
	Repo  ports.TemplateRepository
	Cache ports.VersionCache
	Log   *logger.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Store struct {
	repo  ports.TemplateRepository
	cache ports.VersionCache
	log   *logger.Logger
	now   func() time.Time
}

func New(d Deps) *Store {
	s := &Store{
		repo:  d.Repo,
		cache: d.Cache,
		log:   d.Log,
		now:   d.Now,
	}
	if s.cache == nil {
		s.cache = cache.Noop{}
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.log = s.log.WithComponent("templates")
	return s
}

// Both backends keep microseconds.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func requireContent(content string) *apperrors.Error {
	if strings.TrimSpace(content) == "" {
		return apperrors.ValidationField("template", "template content is required")
	}
	return nil
}

// CreateTemplate persists a template together with its first version.
func (s *Store) CreateTemplate(ctx context.Context, in CreateTemplateInput) (models.Template, models.TemplateVersion, error) {
	const op = "templates.create_template"

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.Template{}, models.TemplateVersion{}, apperrors.ValidationField("title", "title is required").WithOp(op)
	}
	if err := requireContent(in.Content); err != nil {
		return models.Template{}, models.TemplateVersion{}, err.WithOp(op)
	}

	description := in.Description
	if description == nil {
		d := InitialDescription
		description = &d
	}

	now := s.timestamp()
	tpl := models.Template{
		ID:        ids.NewTemplateID(),
		Title:     title,
		CreatedAt: now,
	}
	v := models.TemplateVersion{
		ID:          ids.NewVersionID(),
		TemplateID:  tpl.ID,
		Title:       title,
		Content:     in.Content,
		Description: description,
		CreatedAt:   now,
	}

	if err := s.repo.CreateTemplate(ctx, tpl, v); err != nil {
		return models.Template{}, models.TemplateVersion{}, s.repoError(op, err, tpl.ID)
	}

	s.log.FromContext(ctx).Info("template created", "template_id", tpl.ID, "version_id", v.ID)
	return tpl, v, nil
}

// CreateVersion appends a version to an existing template.
func (s *Store) CreateVersion(ctx context.Context, templateID string, in CreateVersionInput) (models.TemplateVersion, error) {
	const op = "templates.create_version"

	if err := requireContent(in.Content); err != nil {
		return models.TemplateVersion{}, err.WithOp(op)
	}

	tpl, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return models.TemplateVersion{}, s.repoError(op, err, templateID)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = tpl.Title
	}

	v := models.TemplateVersion{
		ID:          ids.NewVersionID(),
		TemplateID:  tpl.ID,
		Title:       title,
		Content:     in.Content,
		Description: in.Description,
		CreatedAt:   s.timestamp(),
	}
	if err := s.append(ctx, op, v); err != nil {
		return models.TemplateVersion{}, err
	}
	return v, nil
}

// ListVersions returns the full history, newest first.
func (s *Store) ListVersions(ctx context.Context, templateID string) ([]models.TemplateVersion, error) {
	const op = "templates.list_versions"
	log := s.log.FromContext(ctx)

	// Templates are never deleted, so a cached list implies the template exists.
	cached, token, hit, err := s.cache.Lookup(ctx, templateID)
	if err != nil {
		log.Warn("version cache lookup failed", "template_id", templateID, "error", err.Error())
	}
	if hit {
		return cached, nil
	}

	if _, err := s.repo.GetTemplate(ctx, templateID); err != nil {
		return nil, s.repoError(op, err, templateID)
	}
	versions, err := s.repo.ListVersions(ctx, templateID)
	if err != nil {
		return nil, s.repoError(op, err, templateID)
	}

	if token != "" {
		if err := s.cache.Store(ctx, templateID, token, versions); err != nil {
			log.Warn("version cache store failed", "template_id", templateID, "error", err.Error())
		}
	}
	return versions, nil
}

// Revert appends a new version copying the title and content of versionID.
// The source version is left as it is.
func (s *Store) Revert(ctx context.Context, templateID, versionID string) (models.TemplateVersion, error) {
	const op = "templates.revert"

	if _, err := s.repo.GetTemplate(ctx, templateID); err != nil {
		return models.TemplateVersion{}, s.repoError(op, err, templateID)
	}
	src, err := s.repo.GetVersion(ctx, versionID)
	if err != nil {
		return models.TemplateVersion{}, s.repoError(op, err, versionID)
	}
	if src.TemplateID != templateID {
		return models.TemplateVersion{}, apperrors.ValidationField("version_id", "version does not belong to this template").
			WithField("template_id", templateID).
			WithOp(op)
	}

	description := fmt.Sprintf("Reverted to version from %s", src.CreatedAt.UTC().Format(time.RFC3339Nano))
	v := models.TemplateVersion{
		ID:          ids.NewVersionID(),
		TemplateID:  templateID,
		Title:       src.Title,
		Content:     src.Content,
		Description: &description,
		CreatedAt:   s.timestamp(),
	}
	if err := s.append(ctx, op, v); err != nil {
		return models.TemplateVersion{}, err
	}
	return v, nil
}

// GetTemplate returns a template and its current latest version.
func (s *Store) GetTemplate(ctx context.Context, templateID string) (models.Template, models.TemplateVersion, error) {
	const op = "templates.get_template"

	tpl, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return models.Template{}, models.TemplateVersion{}, s.repoError(op, err, templateID)
	}
	latest, err := s.repo.LatestVersion(ctx, templateID)
	if err != nil {
		return models.Template{}, models.TemplateVersion{}, s.repoError(op, err, templateID)
	}
	return tpl, latest, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]models.Template, error) {
	out, err := s.repo.ListTemplates(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "templates.list_templates", "failed to list templates")
	}
	return out, nil
}

func (s *Store) append(ctx context.Context, op string, v models.TemplateVersion) error {
	if err := s.repo.AppendVersion(ctx, v); err != nil {
		return s.repoError(op, err, v.TemplateID)
	}

	log := s.log.FromContext(ctx)
	if err := s.cache.Invalidate(ctx, v.TemplateID); err != nil {
		log.Warn("version cache invalidate failed", "template_id", v.TemplateID, "error", err.Error())
	}
	log.Info("version appended", "template_id", v.TemplateID, "version_id", v.ID)
	return nil
}

func (s *Store) repoError(op string, err error, id string) error {
	switch {
	case apperrors.Is(err, ports.ErrTemplateNotFound):
		return apperrors.NotFound("template", id).WithOp(op)
	case apperrors.Is(err, ports.ErrVersionNotFound):
		return apperrors.NotFound("version", id).WithOp(op)
	case apperrors.Is(err, ports.ErrDuplicateID):
		return apperrors.Conflict("id already exists").WithField("id", id).WithOp(op)
	default:
		return apperrors.Wrap(err, op, "storage failure")
	}
}
