package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"wavepick/internal/metrics"
	"wavepick/internal/model"
	"wavepick/internal/opt"
	"wavepick/internal/store"
	"wavepick/internal/wave"
)

// SolveHandler handles POST /v1/solve. Synchronous requests return the
// finished run; async requests return 202 with the queued run and stream
// progress on /v1/runs/{id}/events.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	var req model.SolveRequest
	if err := readJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	req.TenantID = p.Tenant
	if err := validateSolveRequest(&req, s.Cfg.Server.MaxTimeBudgetMs); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	rec, err := s.Store.GetInstance(r.Context(), p.Tenant, req.InstanceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Instance not found", req.InstanceID, r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get instance failed", err.Error(), r.URL.Path)
		return
	}
	inst, err := rec.Body.Build()
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid instance", err.Error(), r.URL.Path)
		return
	}
	tenantCfg, err := s.Store.GetOptimizerConfig(r.Context(), p.Tenant)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load optimizer config failed", err.Error(), r.URL.Path)
		return
	}
	cfg, err := solverConfig(s.Cfg.Solver, tenantCfg, req.Options)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solver options", err.Error(), r.URL.Path)
		return
	}
	budgetMs := req.TimeBudgetMs
	if budgetMs == 0 {
		budgetMs = s.Cfg.Server.DefaultTimeBudgetMs
	}

	run, err := s.Store.CreateRun(r.Context(), model.Run{
		TenantID:     p.Tenant,
		InstanceID:   req.InstanceID,
		Status:       model.RunQueued,
		TimeBudgetMs: budgetMs,
		CallbackURL:  req.CallbackURL,
	})
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create run failed", err.Error(), r.URL.Path)
		return
	}
	job := solveJob{run: run, inst: inst, cfg: cfg, budget: time.Duration(budgetMs) * time.Millisecond, secret: req.CallbackSecret}

	if req.Async {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.execute(context.Background(), job)
		}()
		w.Header().Set("Location", "/v1/runs/"+run.ID)
		writeJSON(w, http.StatusAccepted, run)
		return
	}
	writeJSON(w, http.StatusOK, s.execute(context.WithoutCancel(r.Context()), job))
}

type solveJob struct {
	run    model.Run
	inst   *wave.Instance
	cfg    opt.Config
	budget time.Duration
	secret string
}

// execute runs the optimizer for one queued run and records the outcome in
// the store, the metrics registry, the event broker and the callback queue.
func (s *Server) execute(ctx context.Context, job solveJob) model.Run {
	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	run := job.run
	rlog := log.WithField("run", run.ID).WithField("tenant", run.TenantID)
	run.Status = model.RunRunning
	if err := s.Store.UpdateRun(ctx, run); err != nil {
		rlog.WithError(err).Warn("mark run running")
	}
	s.Broker.Publish(run.ID, SSEEvent{Type: model.EventRunStarted, Data: map[string]any{
		"runId": run.ID, "instanceId": run.InstanceID, "timeBudgetMs": run.TimeBudgetMs,
	}})

	res, err := opt.Solve(job.inst, job.cfg, time.Now().Add(job.budget),
		opt.WithAcceleration(s.Accel),
		opt.WithLogger(rlog.WithField("prefix", "opt").WithField("seed", job.cfg.Seed)),
		opt.WithObserver(func(p opt.Progress) {
			s.Broker.Publish(run.ID, SSEEvent{Type: model.EventRunProgress, Data: map[string]any{
				"runId":      run.ID,
				"iteration":  p.Iteration,
				"objective":  p.Best.Objective,
				"totalUnits": p.Best.TotalUnits,
				"orders":     len(p.Best.Orders),
				"aisles":     len(p.Best.Aisles),
				"elapsedMs":  p.Elapsed.Milliseconds(),
			}})
		}),
	)
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	switch {
	case err != nil:
		run.Status = model.RunFailed
		run.Error = err.Error()
	case res.Status == opt.StatusNoFeasible:
		run.Status = model.RunNoFeasible
		if res.Err != nil {
			run.Error = res.Err.Error()
		}
	default:
		run.Status = model.RunSucceeded
	}
	if err == nil {
		sol := res.Solution
		run.Orders = sol.Orders
		run.Aisles = sol.Aisles
		run.TotalUnits = sol.TotalUnits
		run.Objective = sol.Objective
		run.Feasible = sol.Feasible
		run.Iterations = res.Metrics.Iterations
		run.StopReason = res.Metrics.StopReason
	}

	if err := s.Store.UpdateRun(ctx, run); err != nil {
		rlog.WithError(err).Error("store run result")
	}
	if err == nil {
		opt.RecordMetrics(run.TenantID, run.InstanceID, run.ID, res.Metrics)
		if err := s.Store.SaveRunMetrics(ctx, run.TenantID, run.ID, res.Metrics); err != nil {
			rlog.WithError(err).Warn("store run metrics")
		}
		metrics.SolveDuration.WithLabelValues(res.Metrics.StopReason).Observe(res.Metrics.Elapsed.Seconds())
		metrics.SolveIterations.Observe(float64(res.Metrics.Iterations))
		if run.Feasible {
			metrics.BestObjective.WithLabelValues(run.TenantID).Set(run.Objective)
		}
	}
	metrics.SolveRuns.WithLabelValues(run.Status).Inc()

	s.Broker.Publish(run.ID, SSEEvent{Type: model.EventRunCompleted, Data: runEventData(run)})
	s.Pub.RunCompleted(ctx, run, job.secret)
	rlog.WithField("status", run.Status).WithField("objective", run.Objective).Info("run finished")
	return run
}

func runEventData(run model.Run) map[string]any {
	return map[string]any{
		"runId":      run.ID,
		"status":     run.Status,
		"objective":  run.Objective,
		"totalUnits": run.TotalUnits,
		"orders":     len(run.Orders),
		"aisles":     len(run.Aisles),
		"iterations": run.Iterations,
		"stopReason": run.StopReason,
	}
}

// RunsIndexHandler handles GET /v1/runs?instanceId=.
func (s *Server) RunsIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	q := r.URL.Query()
	items, next, err := s.Store.ListRuns(r.Context(), p.Tenant, q.Get("instanceId"), q.Get("cursor"), queryLimit(r))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles GET /v1/runs/{id} and its sub-resources:
// /metrics, /callbacks, /solution, /events/stream and /events/ws.
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
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
	run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Run not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get run failed", err.Error(), r.URL.Path)
		return
	}
	sub := ""
	if len(parts) > 1 {
		sub = strings.Join(parts[1:], "/")
	}
	switch sub {
	case "":
		writeJSON(w, http.StatusOK, run)
	case "metrics":
		mx, err := s.Store.GetRunMetrics(r.Context(), p.Tenant, id)
		if errors.Is(err, store.ErrNotFound) {
			var ok bool
			mx, ok = opt.GetMetrics(p.Tenant, run.InstanceID)[id]
			if !ok {
				writeProblem(w, http.StatusNotFound, "Metrics not available", "run has not finished", r.URL.Path)
				return
			}
		} else if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Get metrics failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, mx)
	case "callbacks":
		items, err := s.Store.ListCallbacks(r.Context(), p.Tenant, id)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List callbacks failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case "solution":
		if !run.Done() {
			writeProblem(w, http.StatusConflict, "Run not finished", run.Status, r.URL.Path)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_ = wave.WriteSolution(w, wave.Solution{Orders: run.Orders, Aisles: run.Aisles})
	case "events/stream":
		s.streamSSE(w, r, run)
	case "events/ws":
		s.streamWS(w, r, run)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}
