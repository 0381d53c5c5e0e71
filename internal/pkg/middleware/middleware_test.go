package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mailtpl/internal/pkg/errors"
	"mailtpl/internal/pkg/logger"
)

func TestRequestID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Context().Value(logger.RequestIDKey)
		if reqID == nil || reqID == "" {
			t.Error("expected request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates new request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/templates", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		reqID := rec.Header().Get(RequestIDHeader)
		if reqID == "" {
			t.Error("expected X-Request-ID header to be set")
		}
		if len(reqID) != 32 { // hex encoded 16 bytes
			t.Errorf("expected request ID length 32, got %d", len(reqID))
		}
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/templates", nil)
		req.Header.Set(RequestIDHeader, "existing-id-123")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		reqID := rec.Header().Get(RequestIDHeader)
		if reqID != "existing-id-123" {
			t.Errorf("expected preserved request ID 'existing-id-123', got %s", reqID)
		}
	})

	t.Run("replaces oversized request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/templates", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get(RequestIDHeader); len(got) != 32 {
			t.Errorf("expected generated request ID, got %q", got)
		}
	})
}

func TestLogging(t *testing.T) {
	var logBuf bytes.Buffer
	log := logger.New(logger.Config{
		Level:  "info",
		Format: "json",
		Output: &logBuf,
	})

	handler := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest("GET", "/templates", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	logOutput := logBuf.String()

	if !strings.Contains(logOutput, "request completed") {
		t.Errorf("expected 'request completed' in log, got: %s", logOutput)
	}

	if !strings.Contains(logOutput, "GET") {
		t.Errorf("expected method in log, got: %s", logOutput)
	}

	if !strings.Contains(logOutput, "/templates") {
		t.Errorf("expected path in log, got: %s", logOutput)
	}

	if !strings.Contains(logOutput, "200") {
		t.Errorf("expected status in log, got: %s", logOutput)
	}

	if !strings.Contains(logOutput, "duration_ms") {
		t.Errorf("expected duration_ms in log, got: %s", logOutput)
	}
}

func TestLoggingLevels(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		expectedLevel string
	}{
		{"2xx logs info", 200, "INFO"},
		{"3xx logs info", 302, "INFO"},
		{"4xx logs warn", 404, "WARN"},
		{"5xx logs error", 500, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logBuf bytes.Buffer
			log := logger.New(logger.Config{
				Level:  "debug",
				Format: "json",
				Output: &logBuf,
			})

			handler := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))

			req := httptest.NewRequest("GET", "/templates", nil)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			logOutput := logBuf.String()
			if !strings.Contains(logOutput, tt.expectedLevel) {
				t.Errorf("expected log level %s, got: %s", tt.expectedLevel, logOutput)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	var logBuf bytes.Buffer
	log := logger.New(logger.Config{
		Level:  "info",
		Format: "json",
		Output: &logBuf,
	})

	handler := Recovery(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	}))

	req := httptest.NewRequest("GET", "/templates", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "INTERNAL_ERROR") {
		t.Errorf("expected INTERNAL_ERROR in body, got: %s", body)
	}

	logOutput := logBuf.String()
	if !strings.Contains(logOutput, "panic recovered") {
		t.Errorf("expected 'panic recovered' in log, got: %s", logOutput)
	}
	if !strings.Contains(logOutput, "test panic") {
		t.Errorf("expected panic message in log, got: %s", logOutput)
	}
}

func TestResponseWriter(t *testing.T) {
	t.Run("captures status code", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := wrapResponseWriter(rec)

		rw.WriteHeader(http.StatusCreated)

		if rw.status != http.StatusCreated {
			t.Errorf("expected status 201, got %d", rw.status)
		}
	})

	t.Run("captures size", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := wrapResponseWriter(rec)

		rw.Write([]byte("hello world"))

		if rw.size != 11 {
			t.Errorf("expected size 11, got %d", rw.size)
		}
	})

	t.Run("defaults to 200", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := wrapResponseWriter(rec)

		rw.Write([]byte("hello"))

		if rw.status != http.StatusOK {
			t.Errorf("expected default status 200, got %d", rw.status)
		}
	})

	t.Run("only writes header once", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := wrapResponseWriter(rec)

		rw.WriteHeader(http.StatusCreated)
		rw.WriteHeader(http.StatusOK) // Should be ignored

		if rw.status != http.StatusCreated {
			t.Errorf("expected status 201, got %d", rw.status)
		}
	})
}

func TestWrapHandler(t *testing.T) {
	var logBuf bytes.Buffer
	log := logger.New(logger.Config{
		Level:  "info",
		Format: "json",
		Output: &logBuf,
	})

	t.Run("successful handler", func(t *testing.T) {
		handler := WrapHandler(log, func(w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("success"))
			return nil
		})

		req := httptest.NewRequest("GET", "/templates", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("handler with error", func(t *testing.T) {
		logBuf.Reset()

		handler := WrapHandler(log, func(w http.ResponseWriter, r *http.Request) error {
			return errors.NotFound("template", "tpl_123")
		})

		req := httptest.NewRequest("GET", "/templates", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}

		body := rec.Body.String()
		if !strings.Contains(body, "NOT_FOUND") {
			t.Errorf("expected NOT_FOUND in body, got: %s", body)
		}
	})
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		logLevel string
	}{
		{"validation", errors.ValidationField("template", "template content is required"), 400, "VALIDATION_ERROR", "WARN"},
		{"not found", errors.NotFound("template", "tpl_1"), 404, "NOT_FOUND", "WARN"},
		{"internal", errors.Wrap(io.ErrUnexpectedEOF, "templates.list", "storage failure"), 500, "INTERNAL_ERROR", "ERROR"},
		{"deadline", errors.Wrap(context.DeadlineExceeded, "templates.list", "storage failure"), 504, "TIMEOUT", "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logBuf bytes.Buffer
			log := logger.New(logger.Config{Level: "info", Format: "json", Output: &logBuf})

			req := httptest.NewRequest("GET", "/templates", nil)
			rec := httptest.NewRecorder()
			HandleError(rec, req, log, tt.err)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}

			var env struct {
				Error struct {
					Code    string         `json:"code"`
					Message string         `json:"message"`
					Details map[string]any `json:"details"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("body is not JSON: %v (%s)", err, rec.Body.String())
			}
			if env.Error.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, env.Error.Code)
			}
			if !strings.Contains(logBuf.String(), tt.logLevel) {
				t.Errorf("expected %s log, got: %s", tt.logLevel, logBuf.String())
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	t.Run("handler that ignores the deadline gets a 504", func(t *testing.T) {
		handler := Timeout(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/templates", nil))

		if rec.Code != http.StatusGatewayTimeout {
			t.Errorf("expected status 504, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "TIMEOUT") {
			t.Errorf("expected TIMEOUT in body, got: %s", rec.Body.String())
		}
	})

	t.Run("handler response wins", func(t *testing.T) {
		handler := Timeout(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/templates", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rec.Code)
		}
	})

	t.Run("fast handler untouched", func(t *testing.T) {
		handler := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); !ok {
				t.Error("expected a deadline on the request context")
			}
			w.WriteHeader(http.StatusNoContent)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/templates", nil))

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rec.Code)
		}
	})
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	base := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	now := base
	rl.now = func() time.Time { return now }

	handler := RateLimit(logger.Discard(), rl, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/templates/process", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("10.0.0.1:1111"); rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}
	if rec := do("10.0.0.1:2222"); rec.Code != http.StatusOK {
		t.Fatalf("burst request: expected 200, got %d", rec.Code)
	}

	rec := do("10.0.0.1:3333")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over budget: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After 1, got %q", rec.Header().Get("Retry-After"))
	}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("body is not JSON: %v (%s)", err, rec.Body.String())
	}
	if env.Error.Code != string(errors.CodeRateLimited) || env.Error.Message != "too many requests" {
		t.Errorf("unexpected envelope: %+v", env.Error)
	}

	if rec := do("10.0.0.2:1111"); rec.Code != http.StatusOK {
		t.Fatalf("other client: expected 200, got %d", rec.Code)
	}

	now = now.Add(time.Second)
	if rec := do("10.0.0.1:4444"); rec.Code != http.StatusOK {
		t.Fatalf("after refill: expected 200, got %d", rec.Code)
	}
}

func TestRateLimitKeysOnClientHeader(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	handler := RateLimit(logger.Discard(), rl, "X-Forwarded-For")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Every request arrives from the same proxy address.
	do := func(forwarded string) int {
		req := httptest.NewRequest("POST", "/templates/process", nil)
		req.RemoteAddr = "172.18.0.5:40000"
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("203.0.113.7, 172.18.0.5"); code != http.StatusOK {
		t.Fatalf("first client: expected 200, got %d", code)
	}
	if code := do("198.51.100.2"); code != http.StatusOK {
		t.Fatalf("second client behind the same proxy: expected 200, got %d", code)
	}
	if code := do("203.0.113.7"); code != http.StatusTooManyRequests {
		t.Fatalf("first client again: expected 429, got %d", code)
	}
	// Without the header the proxy address is the key.
	if code := do(""); code != http.StatusOK {
		t.Fatalf("no header: expected 200, got %d", code)
	}
	if code := do(""); code != http.StatusTooManyRequests {
		t.Fatalf("no header again: expected 429, got %d", code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		remote string
		want   string
	}{
		{"peer address", "", "203.0.113.7", "10.0.0.1:1234", "10.0.0.1"},
		{"peer without port", "", "", "10.0.0.1", "10.0.0.1"},
		{"first forwarded entry", "X-Forwarded-For", " 203.0.113.7 , 10.0.0.9", "10.0.0.1:1234", "203.0.113.7"},
		{"single header value", "X-Real-IP", "198.51.100.2", "10.0.0.1:1234", "198.51.100.2"},
		{"empty header falls back", "X-Forwarded-For", "", "10.0.0.1:1234", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			if tt.value != "" {
				req.Header.Set("X-Forwarded-For", tt.value)
				req.Header.Set("X-Real-IP", tt.value)
			}
			if got := clientIP(req, tt.header); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(limiterIdleTTL + time.Second)
	rl.Allow("b")

	if _, ok := rl.clients["a"]; ok {
		t.Error("expected idle client to be dropped")
	}
	if len(rl.clients) != 1 {
		t.Errorf("expected 1 tracked client, got %d", len(rl.clients))
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !rl.Allow("a") {
			t.Fatalf("request %d rejected with limiting disabled", i)
		}
	}
}

func TestGenerateRequestID(t *testing.T) {
	id1 := generateRequestID()
	id2 := generateRequestID()

	if id1 == id2 {
		t.Error("expected unique request IDs")
	}

	if len(id1) != 32 {
		t.Errorf("expected length 32, got %d", len(id1))
	}
}
