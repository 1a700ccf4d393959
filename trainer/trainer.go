// Package trainer refines a trained density classifier and scores it on
// data splits.
//
// Refiner is the seam the training orchestrator and the evaluator share:
// training calls it with many iterations and a small learning rate, while
// evaluation calls it with an empty training split and a zero learning rate
// so the same code path scores held-out data without updating anything.
package trainer

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ppabba101/CloudPred/dataset"
	"github.com/ppabba101/CloudPred/density"
	"github.com/ppabba101/CloudPred/pkg/errors"
)

// Config controls one refinement pass.
type Config struct {
	// Regularize is the L2 penalty on polynomial coefficients; nil disables it.
	Regularize   *float64
	Iterations   int
	LearningRate float64
	// Stochastic updates one patient at a time in shuffled order instead of
	// one full-batch step per iteration.
	Stochastic bool
	Regression bool
}

// Validate checks the numeric fields of cfg.
func (c Config) Validate() error {
	if c.Iterations < 0 {
		return errors.NewValidationError("iterations", "must be non-negative", c.Iterations)
	}
	if c.LearningRate < 0 || !errors.IsFinite(c.LearningRate) {
		return errors.NewValidationError("learning_rate", "must be finite and non-negative", c.LearningRate)
	}
	if c.Regularize != nil && (*c.Regularize < 0 || !errors.IsFinite(*c.Regularize)) {
		return errors.NewValidationError("regularize", "must be finite and non-negative", *c.Regularize)
	}
	return nil
}

// SplitResult holds the scores of one classifier on one split. Fields that do
// not apply to the mode (AUC for regression, R2 for classification) are NaN.
type SplitResult struct {
	Patients int
	Loss     float64

	Accuracy float64
	// Error is 1 - Accuracy.
	Error float64
	AUC   float64
	// LogLoss is the binary log loss of the class 1 probability; set only
	// with two states.
	LogLoss float64

	MSE  float64
	RMSE float64
	MAE  float64
	R2   float64
	// Predictions is patients×states class probabilities for classification
	// and a patients×1 column of predicted targets for regression.
	Predictions *mat.Dense
}

// Result summarizes a refinement pass. Split results are nil for empty splits.
type Result struct {
	Train *SplitResult
	Eval  *SplitResult
	Extra *SplitResult
	// BestIteration is the iteration whose parameters were kept; 0 means the
	// input parameters were never improved upon.
	BestIteration int
	BestLoss      float64
}

// Refiner refines clf on train, selects the best iteration on eval and
// reports results on train, eval and extra. Implementations never modify
// clf; the returned classifier is always a distinct copy.
type Refiner interface {
	Refine(train, eval, extra dataset.Split, clf *density.Classifier, cfg Config) (*density.Classifier, *Result, error)
}
