package store

import (
	"context"
	"errors"
	"time"

	"wavepick/internal/model"
	"wavepick/internal/opt"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Instances
	CreateInstance(ctx context.Context, tenantID string, in model.InstanceIn) (model.InstanceInfo, error)
	GetInstance(ctx context.Context, tenantID, id string) (model.InstanceRecord, error)
	ListInstances(ctx context.Context, tenantID, cursor string, limit int) ([]model.InstanceInfo, string, error)

	// Runs
	CreateRun(ctx context.Context, run model.Run) (model.Run, error)
	UpdateRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, tenantID, id string) (model.Run, error)
	ListRuns(ctx context.Context, tenantID, instanceID, cursor string, limit int) ([]model.Run, string, error)

	// Run metrics
	SaveRunMetrics(ctx context.Context, tenantID, runID string, m opt.Metrics) error
	GetRunMetrics(ctx context.Context, tenantID, runID string) (opt.Metrics, error)

	// Optimizer config per tenant
	GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error)
	SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error

	// Run-completed callbacks
	EnqueueCallback(ctx context.Context, cb model.Callback) (string, error)
	FetchDueCallbacks(ctx context.Context, limit int) ([]model.Callback, error)
	MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt time.Time, lastError string, responseCode int) error
	FailCallback(ctx context.Context, id string, lastError string, responseCode int) error
	ListCallbacks(ctx context.Context, tenantID, runID string) ([]model.Callback, error)

	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

const (
	defaultLimit = 100
	maxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxLimit {
		return defaultLimit
	}
	return limit
}
