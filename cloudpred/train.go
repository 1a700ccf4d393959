package cloudpred

import (
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/ppabba101/CloudPred/core/model"
	"github.com/ppabba101/CloudPred/dataset"
	"github.com/ppabba101/CloudPred/density"
	"github.com/ppabba101/CloudPred/optim"
	"github.com/ppabba101/CloudPred/pkg/errors"
	"github.com/ppabba101/CloudPred/pkg/log"
	"github.com/ppabba101/CloudPred/sklearn/mixture"
	"github.com/ppabba101/CloudPred/trainer"
)

const modelName = "DensityClassifier"

// Model is the result of Train.
type Model struct {
	Classifier *density.Classifier
	// Result is the refiner's report on the training and validation splits.
	Result  *trainer.Result
	History *History
	// RunID identifies the training run in logs.
	RunID  string
	Config Config
}

// Train fits a density classifier on train, using valid for checkpoint
// selection:
//
//  1. a diagonal Gaussian mixture with Config.Centers components is fit to
//     the pooled training cells;
//  2. a zero-initialized polynomial layer is trained on the patient
//     signatures by RunSchedule;
//  3. the classifier is handed to the refiner.
//
// An empty valid split makes model selection fall back to the training loss.
func Train(train, valid dataset.Split, opts ...Option) (m *Model, err error) {
	defer errors.Recover(&err, "cloudpred.Train")

	s := newSettings(opts)
	cfg := s.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(train) == 0 {
		return nil, errors.NewModelError("cloudpred.Train", "empty training split", errors.ErrEmptyData)
	}
	if err := train.Validate(cfg.Regression); err != nil {
		return nil, errors.Wrap(err, "invalid training split")
	}
	if err := valid.Validate(cfg.Regression); err != nil {
		return nil, errors.Wrap(err, "invalid validation split")
	}
	if len(valid) > 0 && valid.Features() != train.Features() {
		return nil, errors.NewDimensionError("cloudpred.Train", train.Features(), valid.Features(), 1)
	}

	runID := uuid.NewString()
	logger := s.logger.With(log.ModelNameKey, modelName, log.EstimatorIDKey, runID)
	start := time.Now()
	logger.Info("training started",
		log.OperationKey, log.OperationFit,
		log.PatientsKey, len(train),
		log.FeaturesKey, train.Features(),
		log.CentersKey, cfg.Centers,
		log.RandomSeedKey, cfg.Seed,
	)

	mix, err := fitMixture(train, cfg, logger)
	if err != nil {
		return nil, err
	}

	states := cfg.States
	switch {
	case states > 0:
	case cfg.Regression:
		states = 2
	default:
		states = dataset.NumClasses(train, valid)
	}
	clf, err := density.NewClassifier(mix, states, cfg.Degree)
	if err != nil {
		return nil, err
	}

	trainBatch, err := NewBatch(clf, train)
	if err != nil {
		return nil, errors.Wrap(err, "train signatures")
	}
	validBatch, err := NewBatch(clf, valid)
	if err != nil {
		return nil, errors.Wrap(err, "valid signatures")
	}

	scheduleOpts := []Option{WithConfig(cfg), WithLogger(logger), WithMetrics(s.metrics)}
	history, err := RunSchedule(clf.Layer, trainBatch, validBatch, scheduleOpts...)
	if err != nil {
		return nil, err
	}

	refined, res, err := s.defaultRefiner(logger).Refine(train, valid, nil, clf, trainer.Config{
		Iterations:   cfg.RefineIterations,
		LearningRate: cfg.RefineLearningRate,
		Stochastic:   cfg.Stochastic,
		Regression:   cfg.Regression,
	})
	if err != nil {
		return nil, errors.Wrap(err, "refine")
	}

	logger.Info("training finished",
		log.PhaseKey, log.PhaseValidation,
		log.StatesKey, states,
		log.ValidLossKey, res.BestLoss,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return &Model{
		Classifier: refined,
		Result:     res,
		History:    history,
		RunID:      runID,
		Config:     cfg,
	}, nil
}

// fitMixture fits the unsupervised density model to the pooled cells.
func fitMixture(train dataset.Split, cfg Config, logger log.Logger) (*density.Mixture, error) {
	pooled, err := train.Pool()
	if err != nil {
		return nil, err
	}
	gm := mixture.NewGaussianMixture(
		mixture.WithNComponents(cfg.Centers),
		mixture.WithRandomState(cfg.Seed),
	)
	if err := gm.Fit(pooled, nil); err != nil {
		return nil, errors.Wrap(err, "mixture fit")
	}
	cells, _ := pooled.Dims()
	logger.Debug("mixture fitted",
		log.SamplesKey, cells,
		log.IterationKey, gm.NIter(),
		log.LowerBoundKey, gm.LowerBound(),
	)
	return density.MixtureFromMoments(gm.Means(), gm.Covariances(), gm.Weights())
}

// Eval scores m on test through the refiner with no training data, a single
// iteration and a zero learning rate. m is never modified.
func Eval(m *Model, test dataset.Split, opts ...Option) (res *trainer.Result, err error) {
	defer errors.Recover(&err, "cloudpred.Eval")

	if m == nil || m.Classifier == nil {
		return nil, errors.NewNotFittedError(modelName, "Eval")
	}
	if len(test) == 0 {
		return nil, errors.NewModelError("cloudpred.Eval", "empty test split", errors.ErrEmptyData)
	}
	s := newSettings(append([]Option{WithConfig(m.Config)}, opts...))
	if err := test.Validate(s.cfg.Regression); err != nil {
		return nil, errors.Wrap(err, "invalid test split")
	}

	logger := s.logger.With(log.ModelNameKey, modelName, log.EstimatorIDKey, m.RunID, log.OperationKey, log.OperationEval)
	_, res, err = s.defaultRefiner(logger).Refine(nil, test, nil, m.Classifier, trainer.Config{
		Iterations:   1,
		LearningRate: 0,
		Regression:   s.cfg.Regression,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.observeEval(res.Eval.Loss)
	fields := []any{
		log.PhaseKey, log.PhaseTesting,
		log.PatientsKey, len(test),
		log.LossKey, res.Eval.Loss,
	}
	if !s.cfg.Regression {
		fields = append(fields, log.AccuracyKey, res.Eval.Accuracy)
	}
	logger.Info("evaluation finished", fields...)
	return res, nil
}

// Predict returns class probabilities (patients×states) or, in regression
// mode, a patients×1 column of predicted outcomes. A panic from a corrupted
// model surfaces as an *errors.PanicError.
func (m *Model) Predict(split dataset.Split) (out *mat.Dense, err error) {
	if m == nil || m.Classifier == nil {
		return nil, errors.NewNotFittedError(modelName, "Predict")
	}
	err = errors.SafeExecute("cloudpred.Predict", func() error {
		scores, err := m.Classifier.Scores(split)
		if err != nil {
			return err
		}
		if !m.Config.Regression {
			out = optim.Softmax(scores)
			return nil
		}
		n, _ := scores.Dims()
		out = mat.NewDense(n, 1, mat.Col(nil, optim.RegressionColumn, scores))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Save writes m to path with gob.
func (m *Model) Save(path string) error {
	return model.SaveModel(m, path)
}

// LoadModel reads a model written by Save.
func LoadModel(path string) (*Model, error) {
	var m Model
	if err := model.LoadModel(&m, path); err != nil {
		return nil, err
	}
	if m.Classifier == nil {
		return nil, errors.NewValueError("cloudpred.LoadModel", "file holds no classifier")
	}
	return &m, nil
}
