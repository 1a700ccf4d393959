package cloudpred

import (
	"github.com/ppabba101/CloudPred/pkg/log"
	"github.com/ppabba101/CloudPred/trainer"
)

// settings collects everything Train, Eval and RunSchedule can be configured
// with.
type settings struct {
	cfg     Config
	logger  log.Logger
	metrics *Metrics
	refiner trainer.Refiner
}

// Option configures Train, Eval and RunSchedule.
type Option func(*settings)

func newSettings(opts []Option) *settings {
	s := &settings{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.GetLogger()
	}
	return s
}

// defaultRefiner returns the configured refiner or an Iterative one seeded
// from the config.
func (s *settings) defaultRefiner(logger log.Logger) trainer.Refiner {
	if s.refiner != nil {
		return s.refiner
	}
	return trainer.NewIterative(
		trainer.WithLogger(logger),
		trainer.WithSeed(uint64(s.cfg.Seed)),
		trainer.WithLogEvery(s.cfg.LogEvery),
		trainer.WithMixtureRefinement(s.cfg.RefineMixture),
	)
}

// WithConfig replaces the whole configuration. Options applied after it
// still override single fields.
func WithConfig(cfg Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithCenters sets the number of mixture components.
func WithCenters(n int) Option {
	return func(s *settings) { s.cfg.Centers = n }
}

// WithRegression switches between classification and regression.
func WithRegression(regression bool) Option {
	return func(s *settings) { s.cfg.Regression = regression }
}

// WithDegree sets the polynomial degree.
func WithDegree(degree int) Option {
	return func(s *settings) { s.cfg.Degree = degree }
}

// WithStates overrides the inferred number of outcome classes.
func WithStates(states int) Option {
	return func(s *settings) { s.cfg.States = states }
}

// WithSchedule sets the stage learning rates.
func WithSchedule(rates ...float64) Option {
	return func(s *settings) { s.cfg.Schedule = append([]float64(nil), rates...) }
}

// WithEpochs sets the number of epochs per stage.
func WithEpochs(epochs int) Option {
	return func(s *settings) { s.cfg.Epochs = epochs }
}

// WithSeed seeds the density fit and the stochastic refinement order.
func WithSeed(seed int64) Option {
	return func(s *settings) { s.cfg.Seed = seed }
}

// WithRefineIterations sets the iteration count passed to the refiner.
func WithRefineIterations(n int) Option {
	return func(s *settings) { s.cfg.RefineIterations = n }
}

// WithRefineMixture lets the default refiner update the mixture components.
func WithRefineMixture(enabled bool) Option {
	return func(s *settings) { s.cfg.RefineMixture = enabled }
}

// WithLogger sets the logger. Defaults to log.GetLogger().
func WithLogger(logger log.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithMetrics records training progress in m.
func WithMetrics(m *Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithRefiner replaces the default trainer.Iterative refiner.
func WithRefiner(r trainer.Refiner) Option {
	return func(s *settings) { s.refiner = r }
}
