package httpkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "mailtpl/internal/pkg/errors"
)

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"name":"x"}`, false},
		{"unknown fields ignored", `{"name":"x","extra":1}`, false},
		{"empty", ``, true},
		{"malformed", `{"name":`, true},
		{"trailing value", `{"name":"x"} {}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.payload))
			var got body
			err := DecodeJSON(httptest.NewRecorder(), req, &got)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !apperrors.IsCode(err, apperrors.CodeBadRequest) {
					t.Errorf("expected BAD_REQUEST, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Name != "x" {
				t.Errorf("expected name x, got %q", got.Name)
			}
		})
	}
}

func TestDecodeJSONTooLarge(t *testing.T) {
	payload := `{"name":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))

	var got map[string]any
	err := DecodeJSON(httptest.NewRecorder(), req, &got)
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestWriteError(t *testing.T) {
	t.Run("coded error keeps message and details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, apperrors.NotFound("template", "tpl_1"))

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		var env ErrorEnvelope
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Error.Code != "NOT_FOUND" || env.Error.Message != "template not found" {
			t.Errorf("unexpected envelope: %+v", env.Error)
		}
		if env.Error.Details["id"] != "tpl_1" {
			t.Errorf("expected id detail, got %v", env.Error.Details)
		}
	})

	t.Run("internal error is generic", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, apperrors.Wrap(apperrors.New(apperrors.CodeInternal, "db password wrong"), "op", "boom").WithField("dsn", "secret"))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		body := rec.Body.String()
		if strings.Contains(body, "secret") || strings.Contains(body, "password") {
			t.Errorf("internal details leaked: %s", body)
		}
		if rec.Header().Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", rec.Header().Get("Content-Type"))
		}
	})
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := CORS(CORSOptions{AllowedOrigins: []string{" http://localhost:5173 ", ""}})(next)

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/templates", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Errorf("allow origin = %q", got)
		}
		if got := rec.Header().Get("Access-Control-Max-Age"); got != "600" {
			t.Errorf("max age = %q", got)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/templates", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no allow origin, got %q", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/templates", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
			t.Errorf("allow methods = %q", got)
		}
	})
}
