package api

import (
	"net/http"
	"time"

	"wavepick/internal/buildinfo"
)

// DebugJSON reports build info and the non-secret parts of the running
// configuration.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	if !s.getPrincipal(r).IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	sc := s.Cfg.Server
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":                sc.Port,
			"authMode":            s.Auth.Mode,
			"rateRps":             sc.RateRPS,
			"rateBurst":           sc.RateBurst,
			"maxWorkers":          s.Accel.MaxWorkers,
			"batchStrategies":     s.Accel.Strategies,
			"webhookMaxAttempts":  sc.WebhookMaxAttempts,
			"defaultTimeBudgetMs": sc.DefaultTimeBudgetMs,
			"maxTimeBudgetMs":     sc.MaxTimeBudgetMs,
			"hasDatabaseUrl":      sc.DatabaseURL != "",
			"hasRedisUrl":         sc.RedisURL != "",
		},
		"solver": s.Cfg.Solver,
	})
}
