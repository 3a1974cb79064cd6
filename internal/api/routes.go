package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/config"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/store"
	syncer "github.com/XReyRobert/chatgpt-conversations-sync/internal/sync"
)

type Handler struct {
	syncManager *syncer.Manager
	authToken   string
}

func NewHandler(cfg config.ServerConfig, manager *syncer.Manager) *Handler {
	return &Handler{
		syncManager: manager,
		authToken:   cfg.AuthToken,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)

	r.Get("/healthz", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Post("/sync/trigger", h.TriggerSync)
		r.Post("/sync/full", h.ForceFullInventory)
		r.Get("/sync/status", h.GetSyncStatus)
		r.Get("/sync/progress", h.GetSyncProgress)
		r.Get("/sync/history", h.GetSyncHistory)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if err := h.syncManager.TriggerSync("api"); err != nil {
		if errors.Is(err, syncer.ErrRunActive) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

func (h *Handler) ForceFullInventory(w http.ResponseWriter, r *http.Request) {
	if err := h.syncManager.ForceFullInventory(); err != nil {
		if errors.Is(err, syncer.ErrRunActive) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "started", "mode": "full"})
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"running": h.syncManager.Running(),
	}
	if last := h.syncManager.LastRun(); last != nil {
		resp["last_run"] = last
	}
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) GetSyncProgress(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(h.syncManager.Progress())
}

func (h *Handler) GetSyncHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	history, err := h.syncManager.History(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if history == nil {
		history = []*store.SyncHistory{}
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"history": history})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware enforces the configured bearer token. With no token
// configured the API is open, which suits a localhost-only deployment.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.authToken != "" {
			if r.Header.Get("Authorization") != "Bearer "+h.authToken {
				writeError(w, http.StatusUnauthorized, errors.New("invalid or missing token"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
