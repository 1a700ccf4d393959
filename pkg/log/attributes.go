// Standard attribute keys for CloudPred log records.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples")
// so log lines can be filtered by category.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the model type, e.g. "DensityClassifier", "GaussianMixture".
	ModelNameKey = "model.name"

	// EstimatorIDKey carries the run id of one training invocation (a uuid).
	EstimatorIDKey = "estimator.id"

	// OperationKey specifies the operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
const (
	// SamplesKey is the number of rows being processed (patients or cells).
	SamplesKey = "data.samples"

	// FeaturesKey is the number of feature columns.
	FeaturesKey = "data.features"

	// PatientsKey is the number of patients in a split.
	PatientsKey = "data.patients"

	// CentersKey is the number of mixture components.
	CentersKey = "data.centers"

	// StatesKey is the number of outcome classes scored by the polynomial layer.
	StatesKey = "data.states"
)

// Performance and Training Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records classification accuracy.
	AccuracyKey = "metrics.accuracy"

	// LossKey records a training loss value.
	LossKey = "metrics.loss"

	// ValidLossKey records a validation loss value.
	ValidLossKey = "metrics.valid_loss"

	// LowerBoundKey records the EM log-likelihood lower bound.
	LowerBoundKey = "metrics.lower_bound"

	// IterationKey records the current iteration number.
	IterationKey = "training.iteration"

	// EpochKey records the current epoch within a learning-rate stage.
	EpochKey = "training.epoch"

	// StageKey records the index of the learning-rate stage.
	StageKey = "training.stage"
)

// Error and Warning Context
const (
	// ErrorKey carries the error message.
	ErrorKey = "error"

	// ErrorTypeKey categorizes the error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information from cockroachdb/errors.
	StacktraceKey = "error.stacktrace"
)

// Hyperparameters and Configuration
const (
	// LearningRateKey records the learning rate of the current stage.
	LearningRateKey = "hyperparams.learning_rate"

	// MomentumKey records the optimizer momentum.
	MomentumKey = "hyperparams.momentum"

	// RegularizationKey records L2 regularization strength.
	RegularizationKey = "hyperparams.regularization"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit      = "fit"
	OperationSchedule = "schedule"
	OperationRefine   = "refine"
	OperationEval     = "eval"

	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseTesting    = "testing"
)
