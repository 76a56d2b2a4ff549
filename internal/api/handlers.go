package api

import (
	"context"
	"net/http"
	"time"
)

// OptimizerConfigHandler handles GET/PUT /v1/optimizer/config. GET returns
// the effective solver config for the tenant (defaults overlaid with the
// stored patch); PUT stores a patch and is admin only.
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/optimizer/config" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	switch r.Method {
	case http.MethodGet:
		stored, err := s.Store.GetOptimizerConfig(r.Context(), p.Tenant)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Load config failed", err.Error(), r.URL.Path)
			return
		}
		eff, err := overlayConfig(s.Cfg.Solver, stored)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Stored config invalid", err.Error(), r.URL.Path)
			return
		}
		if stored == nil {
			stored = map[string]any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"defaults": s.Cfg.Solver, "tenant": stored, "effective": eff})
	case http.MethodPut:
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var body struct {
			Config map[string]any `json:"config"`
		}
		if err := readJSON(w, r, &body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, http.StatusBadRequest, "Missing config", "", r.URL.Path)
			return
		}
		eff, err := overlayConfig(s.Cfg.Solver, body.Config)
		if err == nil {
			err = eff.Validate()
		}
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid config", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveOptimizerConfig(r.Context(), p.Tenant, body.Config); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"effective": eff})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports ready once the store answers a ping.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
