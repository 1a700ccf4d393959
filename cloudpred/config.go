package cloudpred

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppabba101/CloudPred/pkg/errors"
)

// Config holds every hyperparameter of a training run.
type Config struct {
	// Centers is the number of mixture components fit to the pooled cells.
	Centers    int  `yaml:"centers"`
	Regression bool `yaml:"regression"`
	Degree     int  `yaml:"degree"`
	// States overrides the number of outcome classes; 0 infers it from the
	// labels (2 in regression mode).
	States int `yaml:"states"`

	// Schedule lists the learning rates of the successive stages.
	Schedule []float64 `yaml:"schedule"`
	Epochs   int       `yaml:"epochs"`
	Momentum float64   `yaml:"momentum"`
	Seed     int64     `yaml:"seed"`

	RefineIterations   int     `yaml:"refine_iterations"`
	RefineLearningRate float64 `yaml:"refine_learning_rate"`
	Stochastic         bool    `yaml:"stochastic"`
	// RefineMixture lets the refiner move the mixture means and inverse
	// variances as well as the polynomial layer.
	RefineMixture bool `yaml:"refine_mixture"`

	LogEvery int `yaml:"log_every"`
}

// DefaultConfig returns the configuration used when no option overrides it.
func DefaultConfig() Config {
	return Config{
		Centers:            2,
		Degree:             2,
		Schedule:           []float64{100, 10, 1, 0.1, 0.01, 0.001},
		Epochs:             1000,
		Momentum:           0.9,
		RefineIterations:   1000,
		RefineLearningRate: 1e-4,
		Stochastic:         true,
		LogEvery:           100,
	}
}

// Validate checks the ranges of every field.
func (c Config) Validate() error {
	switch {
	case c.Centers < 1:
		return errors.NewValidationError("centers", "must be >= 1", c.Centers)
	case c.Degree < 1:
		return errors.NewValidationError("degree", "must be >= 1", c.Degree)
	case c.States != 0 && c.States < 2:
		return errors.NewValidationError("states", "must be 0 (infer) or >= 2", c.States)
	case c.Epochs < 0:
		return errors.NewValidationError("epochs", "must be non-negative", c.Epochs)
	case c.Momentum < 0 || c.Momentum >= 1:
		return errors.NewValidationError("momentum", "must be in [0, 1)", c.Momentum)
	case c.RefineIterations < 0:
		return errors.NewValidationError("refine_iterations", "must be non-negative", c.RefineIterations)
	case c.RefineLearningRate < 0 || !errors.IsFinite(c.RefineLearningRate):
		return errors.NewValidationError("refine_learning_rate", "must be finite and non-negative", c.RefineLearningRate)
	case c.LogEvery < 0:
		return errors.NewValidationError("log_every", "must be non-negative", c.LogEvery)
	}
	for _, lr := range c.Schedule {
		if lr <= 0 || !errors.IsFinite(lr) {
			return errors.NewValidationError("schedule", "learning rates must be finite and positive", lr)
		}
	}
	return nil
}

// LoadConfig decodes a YAML document on top of DefaultConfig. Keys that are
// absent keep their default; unknown keys are rejected.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML config from path.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	return LoadConfig(f)
}
