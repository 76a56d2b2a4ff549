package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"wavepick/internal/model"
	"wavepick/internal/opt"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	instances map[string]model.InstanceRecord // id -> instance
	instByTen map[string][]string             // tenant -> instance ids
	runs      map[string]model.Run            // id -> run
	runsByTen map[string][]string             // tenant -> run ids
	runMx     map[string]opt.Metrics          // run id -> metrics
	optCfg    map[string]map[string]any       // tenant -> config
	callbacks map[string]*model.Callback      // id -> callback
	cbOrder   []string                        // enqueue order
}

func NewMemory() *Memory {
	return &Memory{
		instances: map[string]model.InstanceRecord{},
		instByTen: map[string][]string{},
		runs:      map[string]model.Run{},
		runsByTen: map[string][]string{},
		runMx:     map[string]opt.Metrics{},
		optCfg:    map[string]map[string]any{},
		callbacks: map[string]*model.Callback{},
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) CreateInstance(ctx context.Context, tenantID string, in model.InstanceIn) (model.InstanceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := model.InstanceInfo{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      in.Name,
		NOrders:   len(in.Orders),
		NItems:    in.NItems,
		NAisles:   len(in.Aisles),
		LB:        in.LB,
		UB:        in.UB,
		CreatedAt: time.Now().UTC(),
	}
	m.instances[info.ID] = model.InstanceRecord{InstanceInfo: info, Body: in}
	m.instByTen[tenantID] = append(m.instByTen[tenantID], info.ID)
	return info, nil
}

func (m *Memory) GetInstance(ctx context.Context, tenantID, id string) (model.InstanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.instances[id]
	if !ok || rec.TenantID != tenantID {
		return model.InstanceRecord{}, ErrNotFound
	}
	return rec, nil
}

// page walks ids after cursor and collects up to limit matches.
func page[T any](ids []string, cursor string, limit int, get func(id string) (T, bool)) ([]T, string) {
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	limit = clampLimit(limit)
	out := []T{}
	next := ""
	for i := start; i < len(ids) && len(out) < limit; i++ {
		if v, ok := get(ids[i]); ok {
			out = append(out, v)
			next = ids[i]
		}
	}
	if len(out) < limit {
		next = ""
	}
	return out, next
}

func (m *Memory) ListInstances(ctx context.Context, tenantID, cursor string, limit int) ([]model.InstanceInfo, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, next := page(m.instByTen[tenantID], cursor, limit, func(id string) (model.InstanceInfo, bool) {
		rec, ok := m.instances[id]
		return rec.InstanceInfo, ok
	})
	return out, next, nil
}

func (m *Memory) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	m.runs[run.ID] = run
	m.runsByTen[run.TenantID] = append(m.runsByTen[run.TenantID], run.ID)
	return run, nil
}

func (m *Memory) UpdateRun(ctx context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.runs[run.ID]
	if !ok || cur.TenantID != run.TenantID {
		return ErrNotFound
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.TenantID != tenantID {
		return model.Run{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, tenantID, instanceID, cursor string, limit int) ([]model.Run, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, next := page(m.runsByTen[tenantID], cursor, limit, func(id string) (model.Run, bool) {
		r, ok := m.runs[id]
		if !ok || (instanceID != "" && r.InstanceID != instanceID) {
			return model.Run{}, false
		}
		return r, true
	})
	return out, next, nil
}

func (m *Memory) SaveRunMetrics(ctx context.Context, tenantID, runID string, mx opt.Metrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[runID]; !ok || r.TenantID != tenantID {
		return ErrNotFound
	}
	m.runMx[runID] = mx
	return nil
}

func (m *Memory) GetRunMetrics(ctx context.Context, tenantID, runID string) (opt.Metrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	mx, found := m.runMx[runID]
	if !ok || !found || r.TenantID != tenantID {
		return opt.Metrics{}, ErrNotFound
	}
	return mx, nil
}

func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.optCfg[tenantID]; ok {
		return cfg, nil
	}
	return nil, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optCfg[tenantID] = cfg
	return nil
}

// Callbacks

func (m *Memory) EnqueueCallback(ctx context.Context, cb model.Callback) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb.ID = uuid.New().String()
	cb.Status = model.CallbackPending
	cb.Attempts = 0
	cb.NextAt = time.Now()
	m.callbacks[cb.ID] = &cb
	m.cbOrder = append(m.cbOrder, cb.ID)
	return cb.ID, nil
}

func (m *Memory) FetchDueCallbacks(ctx context.Context, limit int) ([]model.Callback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []model.Callback{}
	for _, id := range m.cbOrder {
		cb := m.callbacks[id]
		if cb.Status == model.CallbackPending && !cb.NextAt.After(now) {
			out = append(out, *cb)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt time.Time, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb := m.callbacks[id]
	if cb == nil {
		return ErrNotFound
	}
	cb.Attempts++
	cb.LastCode = responseCode
	cb.LastError = lastError
	if success {
		cb.Status = model.CallbackDelivered
		return nil
	}
	cb.NextAt = nextAttemptAt
	return nil
}

func (m *Memory) FailCallback(ctx context.Context, id string, lastError string, responseCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb := m.callbacks[id]
	if cb == nil {
		return ErrNotFound
	}
	cb.Attempts++
	cb.Status = model.CallbackFailed
	cb.LastError = lastError
	cb.LastCode = responseCode
	return nil
}

func (m *Memory) ListCallbacks(ctx context.Context, tenantID, runID string) ([]model.Callback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Callback{}
	for _, id := range m.cbOrder {
		cb := m.callbacks[id]
		if cb.TenantID == tenantID && (runID == "" || cb.RunID == runID) {
			out = append(out, *cb)
		}
	}
	return out, nil
}
