package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/store"
	"erp-sync-service/internal/sync"
)

type Handler struct {
	cfg         config.ServerConfig
	syncManager *sync.Manager
	engine      *sync.Engine
	store       store.Store
}

func NewHandler(cfg config.ServerConfig, manager *sync.Manager, s store.Store) *Handler {
	return &Handler{
		cfg:         cfg,
		syncManager: manager,
		engine:      manager.Engine(),
		store:       s,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware(h.cfg.CorsOrigins))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(h.cfg.AuthToken))

		r.Route("/sync", func(r chi.Router) {
			r.Post("/run", h.RunSync)
			r.Get("/status", h.GetSyncStatus)
			r.Post("/deliveries/pull", h.PullDeliveries)
			r.Post("/deliveries/retry", h.RetryPendingDeliveries)
			r.Post("/leads", h.SyncLeads)
			r.Get("/logs", h.ListSyncLogs)
		})

		r.Route("/deliveries/{id}", func(r chi.Router) {
			r.Post("/status", h.PushStatus)
			r.Post("/assign", h.AssignDriver)
			r.Post("/complete", h.CompleteDelivery)
			r.Post("/retry", h.RetryDelivery)
		})

		r.Route("/leads/{id}", func(r chi.Router) {
			r.Post("/push", h.PushLead)
			r.Post("/quotes/pull", h.PullQuotes)
		})
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("Failed to encode json response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
