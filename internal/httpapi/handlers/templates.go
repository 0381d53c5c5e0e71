package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mailtpl/internal/httpkit"
	"mailtpl/internal/models"
	apperrors "mailtpl/internal/pkg/errors"
	"mailtpl/internal/pkg/logger"
	"mailtpl/internal/templates"
)

// VersionRequest is the body of template and version creation. Template is
// the template text.
type VersionRequest struct {
	Title       string  `json:"title"`
	Template    *string `json:"template"`
	Description *string `json:"description,omitempty"`
}

type CreateTemplateResponse struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	CreatedAt time.Time              `json:"created_at"`
	Version   models.TemplateVersion `json:"version"`
}

type TemplateResponse struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	CreatedAt     time.Time              `json:"created_at"`
	LatestVersion models.TemplateVersion `json:"latest_version"`
}

func decodeVersionRequest(w http.ResponseWriter, r *http.Request) (VersionRequest, error) {
	var req VersionRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return req, err
	}
	if req.Template == nil {
		return req, apperrors.ValidationField("template", "template is required")
	}
	return req, nil
}

// withTemplateID tags the request context so log lines carry the template.
func withTemplateID(r *http.Request) (*http.Request, string) {
	id := chi.URLParam(r, "templateId")
	return r.WithContext(logger.ContextWithTemplateID(r.Context(), id)), id
}

func (h *Handler) PostTemplate(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeVersionRequest(w, r)
	if err != nil {
		return err
	}

	tpl, v, err := h.store.CreateTemplate(r.Context(), templates.CreateTemplateInput{
		Title:       req.Title,
		Content:     *req.Template,
		Description: req.Description,
	})
	if err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusCreated, CreateTemplateResponse{
		ID:        tpl.ID,
		Title:     tpl.Title,
		CreatedAt: tpl.CreatedAt,
		Version:   v,
	})
	return nil
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) error {
	all, err := h.store.ListTemplates(r.Context())
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, all)
	return nil
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) error {
	r, id := withTemplateID(r)

	tpl, latest, err := h.store.GetTemplate(r.Context(), id)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, TemplateResponse{
		ID:            tpl.ID,
		Title:         tpl.Title,
		CreatedAt:     tpl.CreatedAt,
		LatestVersion: latest,
	})
	return nil
}

func (h *Handler) PostVersion(w http.ResponseWriter, r *http.Request) error {
	r, id := withTemplateID(r)

	req, err := decodeVersionRequest(w, r)
	if err != nil {
		return err
	}

	v, err := h.store.CreateVersion(r.Context(), id, templates.CreateVersionInput{
		Title:       req.Title,
		Content:     *req.Template,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusCreated, v)
	return nil
}

func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) error {
	r, id := withTemplateID(r)

	versions, err := h.store.ListVersions(r.Context(), id)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, versions)
	return nil
}

func (h *Handler) Revert(w http.ResponseWriter, r *http.Request) error {
	r, id := withTemplateID(r)

	v, err := h.store.Revert(r.Context(), id, chi.URLParam(r, "versionId"))
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusCreated, v)
	return nil
}
