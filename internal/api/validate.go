package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"wavepick/internal/model"
	"wavepick/internal/opt"
)

func validateSolveRequest(req *model.SolveRequest, maxBudgetMs int) error {
	if req.InstanceID == "" {
		return fmt.Errorf("instanceId is required")
	}
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	if maxBudgetMs > 0 && req.TimeBudgetMs > maxBudgetMs {
		return fmt.Errorf("timeBudgetMs must be <= %d", maxBudgetMs)
	}
	if req.CallbackSecret != "" && req.CallbackURL == "" {
		return fmt.Errorf("callbackSecret requires callbackUrl")
	}
	return nil
}

// overlayConfig applies a stored tenant patch (camelCase keys) onto base.
// Unknown keys are rejected.
func overlayConfig(base opt.Config, patch map[string]any) (opt.Config, error) {
	if len(patch) == 0 {
		return base, nil
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return base, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	out := base
	if err := dec.Decode(&out); err != nil {
		return base, fmt.Errorf("%w: %v", opt.ErrInvalidConfig, err)
	}
	return out, nil
}

// solverConfig merges defaults, the tenant's stored config and per-request
// overrides, in that order.
func solverConfig(base opt.Config, tenant map[string]any, o model.SolveOptions) (opt.Config, error) {
	cfg, err := overlayConfig(base, tenant)
	if err != nil {
		return cfg, err
	}
	setInt(&cfg.MaxIterations, o.MaxIterations)
	setInt(&cfg.MaxIterationsWithoutImprovement, o.MaxIterationsWithoutImprovement)
	setInt(&cfg.TabuTenure, o.TabuTenure)
	setInt(&cfg.RCLSize, o.RCLSize)
	setInt(&cfg.BatchSize, o.BatchSize)
	if o.PerturbationStrength != nil {
		cfg.PerturbationStrength = *o.PerturbationStrength
	}
	if o.Alpha != nil {
		cfg.Alpha = *o.Alpha
	}
	if o.UseBatchEvaluation != nil {
		cfg.UseBatchEvaluation = *o.UseBatchEvaluation
	}
	if o.Seed != nil {
		cfg.Seed = *o.Seed
	}
	return cfg, cfg.Validate()
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
