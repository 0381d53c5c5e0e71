// Package repotest holds the behaviour every ports.TemplateRepository must
// show, run against each backend from its own tests.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtpl/internal/models"
	"mailtpl/internal/pkg/ids"
	"mailtpl/internal/ports"
)

// OpenFunc returns a ready repository; it owns cleanup via t.Cleanup.
type OpenFunc func(t *testing.T) ports.TemplateRepository

var base = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func newTemplate(at time.Time) (models.Template, models.TemplateVersion) {
	t := models.Template{ID: ids.NewTemplateID(), Title: "Welcome", CreatedAt: at}
	v := models.TemplateVersion{
		ID:          ids.NewVersionID(),
		TemplateID:  t.ID,
		Title:       t.Title,
		Content:     "Hello /user.name",
		Description: strPtr("Initial version"),
		CreatedAt:   at,
	}
	return t, v
}

func newVersion(templateID, content string, at time.Time) models.TemplateVersion {
	return models.TemplateVersion{
		ID:         ids.NewVersionID(),
		TemplateID: templateID,
		Title:      "Welcome",
		Content:    content,
		CreatedAt:  at,
	}
}

// Run executes the repository contract.
func Run(t *testing.T, open OpenFunc) {
	t.Run("create and read back", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()
		tpl, v := newTemplate(base)

		require.NoError(t, repo.CreateTemplate(ctx, tpl, v))

		gotTpl, err := repo.GetTemplate(ctx, tpl.ID)
		require.NoError(t, err)
		assert.Equal(t, tpl, gotTpl)

		gotV, err := repo.GetVersion(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, v, gotV)

		latest, err := repo.LatestVersion(ctx, tpl.ID)
		require.NoError(t, err)
		assert.Equal(t, v.ID, latest.ID)

		versions, err := repo.ListVersions(ctx, tpl.ID)
		require.NoError(t, err)
		assert.Equal(t, []models.TemplateVersion{v}, versions)
	})

	t.Run("create is atomic", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()
		first, firstVersion := newTemplate(base)
		require.NoError(t, repo.CreateTemplate(ctx, first, firstVersion))

		second, secondVersion := newTemplate(base.Add(time.Second))
		secondVersion.ID = firstVersion.ID

		err := repo.CreateTemplate(ctx, second, secondVersion)
		require.ErrorIs(t, err, ports.ErrDuplicateID)

		_, err = repo.GetTemplate(ctx, second.ID)
		assert.ErrorIs(t, err, ports.ErrTemplateNotFound)
	})

	t.Run("append to missing template", func(t *testing.T) {
		repo := open(t)

		err := repo.AppendVersion(context.Background(), newVersion(ids.NewTemplateID(), "x", base))

		assert.ErrorIs(t, err, ports.ErrTemplateNotFound)
	})

	t.Run("missing rows", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()

		_, err := repo.GetTemplate(ctx, "tpl_missing")
		assert.ErrorIs(t, err, ports.ErrTemplateNotFound)

		_, err = repo.GetVersion(ctx, "ver_missing")
		assert.ErrorIs(t, err, ports.ErrVersionNotFound)

		_, err = repo.LatestVersion(ctx, "tpl_missing")
		assert.ErrorIs(t, err, ports.ErrVersionNotFound)

		versions, err := repo.ListVersions(ctx, "tpl_missing")
		require.NoError(t, err)
		assert.Empty(t, versions)
	})

	t.Run("history is newest first with insertion tie-break", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()
		tpl, v1 := newTemplate(base)
		require.NoError(t, repo.CreateTemplate(ctx, tpl, v1))

		v2 := newVersion(tpl.ID, "two", base.Add(2*time.Minute))
		v3 := newVersion(tpl.ID, "three", base.Add(time.Minute))
		v4 := newVersion(tpl.ID, "four", base.Add(2*time.Minute))
		for _, v := range []models.TemplateVersion{v2, v3, v4} {
			require.NoError(t, repo.AppendVersion(ctx, v))
		}

		versions, err := repo.ListVersions(ctx, tpl.ID)
		require.NoError(t, err)

		var got []string
		for _, v := range versions {
			got = append(got, v.Content)
		}
		assert.Equal(t, []string{"four", "two", "three", v1.Content}, got)

		latest, err := repo.LatestVersion(ctx, tpl.ID)
		require.NoError(t, err)
		assert.Equal(t, v4.ID, latest.ID)
	})

	t.Run("nullable description", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()
		tpl, v1 := newTemplate(base)
		require.NoError(t, repo.CreateTemplate(ctx, tpl, v1))

		v2 := newVersion(tpl.ID, "no description", base.Add(time.Second))
		require.NoError(t, repo.AppendVersion(ctx, v2))

		got, err := repo.GetVersion(ctx, v2.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Description)
	})

	t.Run("templates newest first", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()
		older, olderV := newTemplate(base.Add(-time.Hour))
		newer, newerV := newTemplate(base.Add(time.Hour))
		require.NoError(t, repo.CreateTemplate(ctx, older, olderV))
		require.NoError(t, repo.CreateTemplate(ctx, newer, newerV))

		all, err := repo.ListTemplates(ctx)
		require.NoError(t, err)

		pos := map[string]int{}
		for i, tpl := range all {
			pos[tpl.ID] = i
		}
		require.Contains(t, pos, older.ID)
		require.Contains(t, pos, newer.ID)
		assert.Less(t, pos[newer.ID], pos[older.ID])
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, open(t).Ping(context.Background()))
	})
}
