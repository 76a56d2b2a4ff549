package opt

import "sync"

// In-process record of search metrics per tenant and instance, keyed by run.
// The HTTP layer reads it when the persistent store has nothing yet. Each
// tenant keeps its most recent maxRecordedRuns runs; older ones are evicted.

const maxRecordedRuns = 256

type metricsKey struct {
	Tenant     string
	InstanceID string
	RunID      string
}

var (
	mu      sync.Mutex
	store   = map[metricsKey]Metrics{}
	arrival = map[string][]metricsKey{} // tenant -> keys, oldest first
)

func RecordMetrics(tenant, instanceID, runID string, m Metrics) {
	k := metricsKey{Tenant: tenant, InstanceID: instanceID, RunID: runID}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := store[k]; !ok {
		q := append(arrival[tenant], k)
		for len(q) > maxRecordedRuns {
			delete(store, q[0])
			q = q[1:]
		}
		arrival[tenant] = q
	}
	store[k] = m
}

// GetMetrics returns the recorded metrics for an instance, keyed by run id.
func GetMetrics(tenant, instanceID string) map[string]Metrics {
	mu.Lock()
	defer mu.Unlock()
	out := map[string]Metrics{}
	for _, k := range arrival[tenant] {
		if k.InstanceID == instanceID {
			out[k.RunID] = store[k]
		}
	}
	return out
}
