package opt

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid solver config")

// Config carries the search parameters. Zero-valued caps are rejected by
// Validate; start from DefaultConfig and override.
type Config struct {
	MaxIterations                   int     `yaml:"maxIterations" json:"maxIterations"`
	MaxIterationsWithoutImprovement int     `yaml:"maxIterationsWithoutImprovement" json:"maxIterationsWithoutImprovement"`
	PerturbationStrength            float64 `yaml:"perturbationStrength" json:"perturbationStrength"`
	TabuTenure                      int     `yaml:"tabuTenure" json:"tabuTenure"`
	SimilarityThreshold             float64 `yaml:"similarityThreshold" json:"similarityThreshold"`
	Alpha                           float64 `yaml:"alpha" json:"alpha"`
	// RCLSize overrides the alpha-derived candidate list size when > 0.
	RCLSize            int  `yaml:"rclSize" json:"rclSize"`
	UseBatchEvaluation bool `yaml:"useBatchEvaluation" json:"useBatchEvaluation"`
	BatchSize          int  `yaml:"batchSize" json:"batchSize"`

	MaxSwaps              int `yaml:"maxSwaps" json:"maxSwaps"`
	MaxInserts            int `yaml:"maxInserts" json:"maxInserts"`
	MaxRemoves            int `yaml:"maxRemoves" json:"maxRemoves"`
	KSwapK                int `yaml:"kSwapK" json:"kSwapK"`
	MaxKSwapAttempts      int `yaml:"maxKSwapAttempts" json:"maxKSwapAttempts"`
	MaxAisleSubstitutions int `yaml:"maxAisleSubstitutions" json:"maxAisleSubstitutions"`
	MaxVNDPasses          int `yaml:"maxVNDPasses" json:"maxVNDPasses"`

	Seed int64 `yaml:"seed" json:"seed"`
}

func DefaultConfig() Config {
	return Config{
		MaxIterations:                   1000,
		MaxIterationsWithoutImprovement: 100,
		PerturbationStrength:            0.3,
		TabuTenure:                      20,
		SimilarityThreshold:             0.9,
		Alpha:                           0.3,
		RCLSize:                         0,
		UseBatchEvaluation:              false,
		BatchSize:                       8,

		MaxSwaps:              500,
		MaxInserts:            200,
		MaxRemoves:            200,
		KSwapK:                2,
		MaxKSwapAttempts:      100,
		MaxAisleSubstitutions: 200,
		MaxVNDPasses:          200,

		Seed: 1,
	}
}

func (c Config) Validate() error {
	if c.MaxIterations < 0 {
		return fmt.Errorf("%w: maxIterations must be >= 0 (got %d)", ErrInvalidConfig, c.MaxIterations)
	}
	if c.MaxIterationsWithoutImprovement <= 0 {
		return fmt.Errorf("%w: maxIterationsWithoutImprovement must be > 0 (got %d)", ErrInvalidConfig, c.MaxIterationsWithoutImprovement)
	}
	if c.PerturbationStrength < 0 || c.PerturbationStrength > 1 {
		return fmt.Errorf("%w: perturbationStrength must be in [0,1] (got %g)", ErrInvalidConfig, c.PerturbationStrength)
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("%w: alpha must be in [0,1] (got %g)", ErrInvalidConfig, c.Alpha)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarityThreshold must be in (0,1] (got %g)", ErrInvalidConfig, c.SimilarityThreshold)
	}
	if c.TabuTenure < 0 || c.RCLSize < 0 {
		return fmt.Errorf("%w: tabuTenure and rclSize must be >= 0", ErrInvalidConfig)
	}
	if c.UseBatchEvaluation && c.BatchSize <= 0 {
		return fmt.Errorf("%w: batchSize must be > 0 when batch evaluation is on (got %d)", ErrInvalidConfig, c.BatchSize)
	}
	if c.KSwapK <= 0 {
		return fmt.Errorf("%w: kSwapK must be > 0 (got %d)", ErrInvalidConfig, c.KSwapK)
	}
	caps := map[string]int{
		"maxSwaps":              c.MaxSwaps,
		"maxInserts":            c.MaxInserts,
		"maxRemoves":            c.MaxRemoves,
		"maxKSwapAttempts":      c.MaxKSwapAttempts,
		"maxAisleSubstitutions": c.MaxAisleSubstitutions,
		"maxVNDPasses":          c.MaxVNDPasses,
	}
	for name, v := range caps {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be > 0 (got %d)", ErrInvalidConfig, name, v)
		}
	}
	return nil
}
