package api

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"wavepick/internal/model"
	"wavepick/internal/opt"
	"wavepick/internal/store"
	"wavepick/internal/wave"
)

// InstancesHandler handles POST/GET /v1/instances. POST accepts either the
// JSON body or the plain-text challenge format (Content-Type: text/plain).
func (s *Server) InstancesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/instances" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	switch r.Method {
	case http.MethodPost:
		if !p.CanPlan() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		in, err := decodeInstance(w, r)
		if err == nil {
			_, err = in.Build()
		}
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, wave.ErrInvalidInstance) {
				status = http.StatusUnprocessableEntity
			}
			writeProblem(w, status, "Invalid instance", err.Error(), r.URL.Path)
			return
		}
		info, err := s.Store.CreateInstance(r.Context(), p.Tenant, in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create instance failed", err.Error(), r.URL.Path)
			return
		}
		w.Header().Set("Location", "/v1/instances/"+info.ID)
		writeJSON(w, http.StatusCreated, info)
	case http.MethodGet:
		items, next, err := s.Store.ListInstances(r.Context(), p.Tenant, r.URL.Query().Get("cursor"), queryLimit(r))
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List instances failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func decodeInstance(w http.ResponseWriter, r *http.Request) (model.InstanceIn, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "text/plain" {
		inst, err := wave.ReadInstance(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			return model.InstanceIn{}, err
		}
		return model.FromInstance(r.URL.Query().Get("name"), inst), nil
	}
	var in model.InstanceIn
	err := readJSON(w, r, &in)
	return in, err
}

// InstanceByIDHandler handles GET /v1/instances/{id}, /v1/instances/{id}/runs
// and /v1/instances/{id}/metrics.
func (s *Server) InstanceByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/instances/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	id := parts[0]
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	rec, err := s.Store.GetInstance(r.Context(), p.Tenant, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Instance not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get instance failed", err.Error(), r.URL.Path)
		return
	}
	if len(parts) == 1 {
		writeJSON(w, http.StatusOK, rec)
		return
	}
	switch parts[1] {
	case "runs":
		items, next, err := s.Store.ListRuns(r.Context(), p.Tenant, id, r.URL.Query().Get("cursor"), queryLimit(r))
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	case "metrics":
		// Metrics recorded by runs on this process, keyed by run id.
		writeJSON(w, http.StatusOK, map[string]any{"instanceId": id, "runs": opt.GetMetrics(p.Tenant, id)})
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}
