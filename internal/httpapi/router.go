// Package httpapi assembles the chi router of the template API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"mailtpl/internal/httpapi/handlers"
	"mailtpl/internal/httpkit"
	"mailtpl/internal/pkg/logger"
	"mailtpl/internal/pkg/middleware"
	"mailtpl/internal/templates"
)

type Deps struct {
	Store       *templates.Store
	DB          handlers.Pinger
	StoreDriver string
	RDB         *redis.Client
	Log         *logger.Logger

	AllowedOrigins   []string
	RequestTimeout   time.Duration
	ProcessRateLimit float64
	ProcessRateBurst int

	// RateLimitClientHeader names a proxy-set header identifying the client;
	// empty keys the limiter on the peer address.
	RateLimitClientHeader string
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.AllowedOrigins,
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAgeSeconds:  600,
	}))
	r.Use(middleware.Timeout(timeout))

	h := handlers.New(handlers.Deps{
		Store:       d.Store,
		DB:          d.DB,
		StoreDriver: d.StoreDriver,
		RDB:         d.RDB,
		Log:         log,
	})
	limiter := middleware.NewRateLimiter(d.ProcessRateLimit, d.ProcessRateBurst)

	r.Get("/health", h.Health)

	// The editor talks to the API through an /api proxy prefix.
	routes := func(r chi.Router) {
		wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
			return middleware.WrapHandler(log, fn)
		}

		r.Post("/templates", wrap(h.PostTemplate))
		r.Get("/templates", wrap(h.ListTemplates))
		r.With(middleware.RateLimit(log, limiter, d.RateLimitClientHeader)).
			Post("/templates/process", wrap(h.Process))
		r.Get("/templates/{templateId}", wrap(h.GetTemplate))
		r.Post("/templates/{templateId}/versions", wrap(h.PostVersion))
		r.Get("/templates/{templateId}/versions", wrap(h.ListVersions))
		r.Post("/templates/{templateId}/revert/{versionId}", wrap(h.Revert))
	}
	routes(r)
	r.Route("/api", routes)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpkit.WriteErr(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpkit.WriteErr(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	return r
}
