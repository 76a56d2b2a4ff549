package metrics

import "testing"

func TestRegisterDefaultIsIdempotent(t *testing.T) {
	RegisterDefault()
	RegisterDefault()
	SolveRuns.WithLabelValues("succeeded").Inc()
	RunsInFlight.Set(0)

	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	seen := map[string]bool{}
	for _, mf := range families {
		seen[mf.GetName()] = true
	}
	for _, name := range []string{"wave_solve_runs_total", "wave_runs_in_flight", "go_goroutines"} {
		if !seen[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}
