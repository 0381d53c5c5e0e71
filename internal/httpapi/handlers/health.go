package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailtpl/internal/httpkit"
)

const healthCheckTimeout = 5 * time.Second

type poolStater interface {
	Stat() *pgxpool.Stat
}

// Health reports liveness; ?deep=true also pings the store and Redis.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := map[string]any{
		"status":  "ok",
		"service": "mailtpl-api",
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := map[string]map[string]any{
			"store": h.checkStore(ctx),
			"redis": h.checkRedis(ctx),
		}
		health["checks"] = checks

		for name, check := range checks {
			if check["status"] == "error" {
				health["status"] = "degraded"
				h.log.FromContext(ctx).Warn("health check degraded", "check", name, "error", check["error"])
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) checkStore(ctx context.Context) map[string]any {
	start := time.Now()
	result := map[string]any{
		"status": "ok",
		"driver": h.driver,
	}
	if h.db == nil {
		result["status"] = "error"
		result["error"] = "store not configured"
		return result
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := h.db.Ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	} else if ps, ok := h.db.(poolStater); ok {
		stats := ps.Stat()
		result["total_conns"] = stats.TotalConns()
		result["idle_conns"] = stats.IdleConns()
		result["acquired_conns"] = stats.AcquiredConns()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *Handler) checkRedis(ctx context.Context) map[string]any {
	if h.rdb == nil {
		return map[string]any{"status": "disabled"}
	}

	start := time.Now()
	result := map[string]any{
		"status": "ok",
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := h.rdb.Ping(checkCtx).Err(); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
