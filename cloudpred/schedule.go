package cloudpred

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/ppabba101/CloudPred/dataset"
	"github.com/ppabba101/CloudPred/density"
	"github.com/ppabba101/CloudPred/optim"
	"github.com/ppabba101/CloudPred/pkg/errors"
	"github.com/ppabba101/CloudPred/pkg/log"
	"github.com/ppabba101/CloudPred/trainer"
)

// Batch pairs a split with its signatures under a fixed mixture.
type Batch struct {
	Split      dataset.Split
	Signatures *mat.Dense
}

// NewBatch computes the signatures of split under clf's mixture.
func NewBatch(clf *density.Classifier, split dataset.Split) (Batch, error) {
	if len(split) == 0 {
		return Batch{}, nil
	}
	sig, err := clf.Signatures(split)
	if err != nil {
		return Batch{}, err
	}
	return Batch{Split: split, Signatures: sig}, nil
}

func (b Batch) empty() bool { return len(b.Split) == 0 }

// RunSchedule trains layer on fixed signatures with one SGD stage per learning
// rate of the schedule. Every stage starts a fresh optimizer from the current
// parameters and ends by restoring its best checkpoint, so no stage leaves the
// layer with a higher validation loss than it started with. An empty valid
// batch falls back to train.
func RunSchedule(layer *density.PolynomialLayer, train, valid Batch, opts ...Option) (*History, error) {
	s := newSettings(opts)
	if layer == nil {
		return nil, errors.NewValueError("RunSchedule", "layer is required")
	}
	if train.empty() {
		return nil, errors.NewModelError("RunSchedule", "empty training batch", errors.ErrEmptyData)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	if valid.empty() {
		valid = train
	}

	logger := s.logger.With(log.OperationKey, log.OperationSchedule, log.PhaseKey, log.PhaseTraining)
	history := &History{Stages: make([]StageHistory, 0, len(s.cfg.Schedule))}
	for stage, lr := range s.cfg.Schedule {
		st, err := runStage(layer, train, valid, s.cfg, stage, lr, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %d", stage)
		}
		history.Stages = append(history.Stages, st)
		s.metrics.observeStage(stage, lr, s.cfg.Epochs, st.BestLoss)
	}
	return history, nil
}

func runStage(layer *density.PolynomialLayer, train, valid Batch, cfg Config, stage int, lr float64, logger log.Logger) (StageHistory, error) {
	start := time.Now()
	opt := optim.NewSGD(lr, cfg.Momentum)

	startLoss, err := batchLoss(layer, valid, cfg.Regression)
	if err != nil {
		return StageHistory{}, err
	}
	// 開始時点の損失を基準にするので、ステージ後に悪化することはない
	best := startLoss
	if !errors.IsFinite(best) {
		best = math.Inf(1)
	}
	snapshot := layer.Snapshot()

	st := StageHistory{
		LearningRate: lr,
		StartLoss:    startLoss,
		TrainLoss:    make([]float64, 0, cfg.Epochs),
		ValidLoss:    make([]float64, 0, cfg.Epochs),
	}
	warned := false
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		scores, err := layer.Forward(train.Signatures)
		if err != nil {
			return StageHistory{}, err
		}
		loss, dScores, err := trainer.Loss(scores, train.Split, cfg.Regression)
		if err != nil {
			return StageHistory{}, err
		}
		grad, err := layer.Backward(train.Signatures, dScores)
		if err != nil {
			return StageHistory{}, err
		}
		params := layer.Params()
		if err := opt.Step(params, grad); err != nil {
			return StageHistory{}, err
		}
		if err := layer.SetParams(params); err != nil {
			return StageHistory{}, err
		}

		validLoss, err := batchLoss(layer, valid, cfg.Regression)
		if err != nil {
			return StageHistory{}, err
		}
		st.TrainLoss = append(st.TrainLoss, loss)
		st.ValidLoss = append(st.ValidLoss, validLoss)

		switch {
		case !errors.IsFinite(validLoss):
			if !warned {
				logger.Warn("non-finite validation loss",
					log.StageKey, stage,
					log.EpochKey, epoch,
					log.LearningRateKey, lr,
				)
				warned = true
			}
		case validLoss < best:
			best = validLoss
			snapshot = layer.Snapshot()
			st.BestEpoch = epoch
		}

		if cfg.LogEvery > 0 && epoch%cfg.LogEvery == 0 {
			logger.Debug("schedule epoch",
				log.StageKey, stage,
				log.EpochKey, epoch,
				log.LearningRateKey, lr,
				log.LossKey, loss,
				log.ValidLossKey, validLoss,
			)
		}
	}

	if err := layer.Restore(snapshot); err != nil {
		return StageHistory{}, err
	}
	st.BestLoss = best

	logger.Info("stage finished",
		log.StageKey, stage,
		log.LearningRateKey, lr,
		log.MomentumKey, cfg.Momentum,
		log.ValidLossKey, best,
		"training.best_epoch", st.BestEpoch,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return st, nil
}

func batchLoss(layer *density.PolynomialLayer, b Batch, regression bool) (float64, error) {
	scores, err := layer.Forward(b.Signatures)
	if err != nil {
		return 0, err
	}
	loss, _, err := trainer.Loss(scores, b.Split, regression)
	return loss, err
}
