package distributor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

var startedAt = time.Now()

// Router builds the registration/health HTTP surface of §4.5, grounded on
// the reference registration service's route table (register/unregister/
// health/status).
func (d *Distributor) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"POST", "GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Post("/register", d.handleRegister)
	r.Post("/unregister", d.handleUnregister)
	r.Get("/health", d.handleHealth)
	r.Get("/status", d.handleStatus)
	r.Get("/prices", d.handlePrices)

	return r
}

func (d *Distributor) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Host == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "host is required"})
		return
	}

	if err := d.Register(req.Host, req.Port); err != nil {
		writeJSON(w, http.StatusInternalServerError, RegisterResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, RegisterResponse{Success: true, Message: "registered " + req.Host})
}

func (d *Distributor) handleUnregister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Host == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "host is required"})
		return
	}

	if !d.Unregister(req.Host, req.Port) {
		writeJSON(w, http.StatusNotFound, RegisterResponse{Success: false, Message: "client not found"})
		return
	}
	writeJSON(w, http.StatusOK, RegisterResponse{Success: true, Message: "unregistered " + req.Host})
}

func (d *Distributor) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "UP",
		"service": "market-data-distributor",
		"uptime":  int(time.Since(startedAt).Seconds()),
	})
}

func (d *Distributor) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "UP",
		"registered_clients": d.RegisteredCount(),
		"tracked_symbols":   len(d.cfg.Symbols),
		"uptime":            int(time.Since(startedAt).Seconds()),
	})
}

func (d *Distributor) handlePrices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Prices())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
