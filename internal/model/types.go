package model

import (
	"time"

	"wavepick/internal/wave"
)

// Wire types for the wave planning API.

type InstanceIn struct {
	Name   string           `json:"name,omitempty"`
	NItems int              `json:"nItems"`
	Orders [][]wave.ItemQty `json:"orders"`
	Aisles [][]wave.ItemQty `json:"aisles"`
	LB     int              `json:"lb"`
	UB     int              `json:"ub"`
}

// InstanceInfo is the stored summary of an uploaded instance.
type InstanceInfo struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name,omitempty"`
	NOrders   int       `json:"nOrders"`
	NItems    int       `json:"nItems"`
	NAisles   int       `json:"nAisles"`
	LB        int       `json:"lb"`
	UB        int       `json:"ub"`
	CreatedAt time.Time `json:"createdAt"`
}

type InstanceRecord struct {
	InstanceInfo
	Body InstanceIn `json:"body"`
}

// Build turns the wire body into a validated instance.
func (in InstanceIn) Build() (*wave.Instance, error) {
	return wave.NewInstance(in.NItems, in.Orders, in.Aisles, in.LB, in.UB)
}

// FromInstance converts a parsed instance back to its wire body.
func FromInstance(name string, inst *wave.Instance) InstanceIn {
	return InstanceIn{
		Name:   name,
		NItems: inst.NItems,
		Orders: inst.Orders,
		Aisles: inst.Aisles,
		LB:     inst.LB,
		UB:     inst.UB,
	}
}

// SolveOptions override the tenant's optimizer config for one run. Nil
// fields keep the stored or default value.
type SolveOptions struct {
	MaxIterations                   *int     `json:"maxIterations,omitempty"`
	MaxIterationsWithoutImprovement *int     `json:"maxIterationsWithoutImprovement,omitempty"`
	PerturbationStrength            *float64 `json:"perturbationStrength,omitempty"`
	TabuTenure                      *int     `json:"tabuTenure,omitempty"`
	Alpha                           *float64 `json:"alpha,omitempty"`
	RCLSize                         *int     `json:"rclSize,omitempty"`
	UseBatchEvaluation              *bool    `json:"useBatchEvaluation,omitempty"`
	BatchSize                       *int     `json:"batchSize,omitempty"`
	Seed                            *int64   `json:"seed,omitempty"`
}

type SolveRequest struct {
	TenantID       string       `json:"-"`
	InstanceID     string       `json:"instanceId"`
	TimeBudgetMs   int          `json:"timeBudgetMs,omitempty"`
	Options        SolveOptions `json:"options,omitempty"`
	Async          bool         `json:"async,omitempty"`
	CallbackURL    string       `json:"callbackUrl,omitempty"`
	CallbackSecret string       `json:"callbackSecret,omitempty"`
}

// Run statuses.
const (
	RunQueued     = "queued"
	RunRunning    = "running"
	RunSucceeded  = "succeeded"
	RunNoFeasible = "no_feasible"
	RunFailed     = "failed"
)

type Run struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenantId"`
	InstanceID   string     `json:"instanceId"`
	Status       string     `json:"status"`
	TimeBudgetMs int        `json:"timeBudgetMs,omitempty"`
	Orders       []int      `json:"orders,omitempty"`
	Aisles       []int      `json:"aisles,omitempty"`
	TotalUnits   int        `json:"totalUnits"`
	Objective    float64    `json:"objective"`
	Feasible     bool       `json:"feasible"`
	Iterations   int        `json:"iterations"`
	StopReason   string     `json:"stopReason,omitempty"`
	Error        string     `json:"error,omitempty"`
	CallbackURL  string     `json:"callbackUrl,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// Done reports whether the run reached a terminal status.
func (r Run) Done() bool {
	switch r.Status {
	case RunSucceeded, RunNoFeasible, RunFailed:
		return true
	}
	return false
}

// Run event types published to subscribers.
const (
	EventRunStarted   = "run.started"
	EventRunProgress  = "run.progress"
	EventRunCompleted = "run.completed"
)

// Callback is a queued run-completed notification.
type Callback struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	RunID     string    `json:"runId"`
	EventType string    `json:"eventType"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Payload   []byte    `json:"-"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	LastCode  int       `json:"lastCode,omitempty"`
	NextAt    time.Time `json:"nextAttemptAt"`
}

// Callback statuses.
const (
	CallbackPending   = "pending"
	CallbackDelivered = "delivered"
	CallbackFailed    = "failed"
)
