package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthCheck 回傳 nil 代表相依服務可用
type HealthCheck func(ctx context.Context) error

// NewRouter 維運用的 HTTP 端點
//
//	GET /healthz  存活檢查 (不檢查相依)
//	GET /readyz   逐一執行 checks
//	GET /metrics  Prometheus
func NewRouter(checks map[string]HealthCheck, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		result := make(map[string]string, len(checks))
		code := http.StatusOK
		for name, check := range checks {
			if err := check(req.Context()); err != nil {
				logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
				result[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			result[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(result)
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
