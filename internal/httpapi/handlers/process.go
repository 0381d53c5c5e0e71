package handlers

import (
	"net/http"

	"mailtpl/internal/httpkit"
	apperrors "mailtpl/internal/pkg/errors"
	"mailtpl/internal/substitution"
)

type ProcessRequest struct {
	Template  *string            `json:"template"`
	Variables substitution.Value `json:"variables"`
}

// ProcessResponse always carries an errors array, empty on full success.
type ProcessResponse struct {
	Result string   `json:"result"`
	Errors []string `json:"errors"`
}

// Process substitutes variables into an ad-hoc template. Unresolved
// placeholders are reported in Errors, not as a request failure.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) error {
	var req ProcessRequest
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.Template == nil {
		return apperrors.ValidationField("template", "template is required")
	}

	result, errs := substitution.Process(*req.Template, req.Variables)
	if len(errs) > 0 {
		h.log.FromContext(r.Context()).Debug("template processed with unresolved placeholders",
			"errors", len(errs),
		)
	}

	httpkit.WriteJSON(w, http.StatusOK, ProcessResponse{Result: result, Errors: errs})
	return nil
}
