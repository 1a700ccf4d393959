package trainer

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/ppabba101/CloudPred/dataset"
	"github.com/ppabba101/CloudPred/density"
	"github.com/ppabba101/CloudPred/optim"
	"github.com/ppabba101/CloudPred/pkg/errors"
	"github.com/ppabba101/CloudPred/pkg/log"
)

// Iterative is the default Refiner: gradient descent on the polynomial layer,
// optionally followed by a finite-difference step on the mixture means and
// inverse variances, keeping the iteration with the lowest eval loss.
type Iterative struct {
	logger        log.Logger
	seed          uint64
	refineMixture bool
	logEvery      int
}

// Option configures an Iterative refiner.
type Option func(*Iterative)

// WithLogger sets the logger used for progress records.
func WithLogger(logger log.Logger) Option {
	return func(it *Iterative) { it.logger = logger }
}

// WithSeed sets the seed of the stochastic patient order.
func WithSeed(seed uint64) Option {
	return func(it *Iterative) { it.seed = seed }
}

// WithMixtureRefinement enables updating the mixture means and inverse
// variances by finite-difference gradients of the training loss. Mixing
// weights are left untouched.
func WithMixtureRefinement(enabled bool) Option {
	return func(it *Iterative) { it.refineMixture = enabled }
}

// WithLogEvery sets how often (in iterations) a debug record is written.
func WithLogEvery(n int) Option {
	return func(it *Iterative) { it.logEvery = n }
}

// NewIterative returns a refiner with the given options.
func NewIterative(opts ...Option) *Iterative {
	it := &Iterative{logEvery: 100}
	for _, opt := range opts {
		opt(it)
	}
	if it.logger == nil {
		it.logger = log.GetLogger()
	}
	return it
}

// RefinesMixture reports whether Refine also updates the mixture components.
func (it *Iterative) RefinesMixture() bool { return it.refineMixture }

// splitData caches the signatures of one split under the current mixture.
type splitData struct {
	split dataset.Split
	sig   *mat.Dense
}

func newSplitData(clf *density.Classifier, split dataset.Split) (*splitData, error) {
	if len(split) == 0 {
		return nil, nil
	}
	sig, err := clf.Signatures(split)
	if err != nil {
		return nil, err
	}
	return &splitData{split: split, sig: sig}, nil
}

// Refine implements Refiner.
func (it *Iterative) Refine(train, eval, extra dataset.Split, clf *density.Classifier, cfg Config) (*density.Classifier, *Result, error) {
	if clf == nil {
		return nil, nil, errors.NewValueError("Iterative.Refine", "classifier is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if len(train) == 0 && len(eval) == 0 {
		return nil, nil, errors.NewModelError("Iterative.Refine", "train and eval are both empty", errors.ErrEmptyData)
	}
	start := time.Now()
	logger := it.logger.With(log.OperationKey, log.OperationRefine)

	work := clf.Clone()
	tr, err := newSplitData(work, train)
	if err != nil {
		return nil, nil, errors.Wrap(err, "train signatures")
	}
	ev, err := newSplitData(work, eval)
	if err != nil {
		return nil, nil, errors.Wrap(err, "eval signatures")
	}
	// モデル選択は eval で行い、eval が空なら train で代用する
	sel := ev
	if sel == nil {
		sel = tr
	}

	bestLoss, err := splitLoss(work, sel, cfg.Regression)
	if err != nil {
		return nil, nil, err
	}
	if !errors.IsFinite(bestLoss) {
		bestLoss = math.Inf(1)
	}
	best := work.Clone()
	bestIter := 0

	update := cfg.LearningRate > 0 && tr != nil
	rng := rand.New(rand.NewPCG(it.seed, it.seed+1))

	for iter := 1; iter <= cfg.Iterations; iter++ {
		if update {
			if err := it.step(work, tr, cfg, rng); err != nil {
				return nil, nil, err
			}
			if it.refineMixture {
				if err := it.mixtureStep(work, tr, cfg); err != nil {
					return nil, nil, err
				}
				if ev != nil {
					if ev.sig, err = work.Signatures(ev.split); err != nil {
						return nil, nil, err
					}
				}
			}
		}

		loss, err := splitLoss(work, sel, cfg.Regression)
		if err != nil {
			return nil, nil, err
		}
		if errors.IsFinite(loss) && loss < bestLoss {
			bestLoss = loss
			best = work.Clone()
			bestIter = iter
		}
		if it.logEvery > 0 && iter%it.logEvery == 0 {
			logger.Debug("refine iteration",
				log.IterationKey, iter,
				log.ValidLossKey, loss,
				log.LearningRateKey, cfg.LearningRate,
			)
		}
		if !update {
			// 更新しない場合は以降の反復も同じ結果になる
			break
		}
	}

	res := &Result{BestIteration: bestIter, BestLoss: bestLoss}
	if res.Train, err = Score(best, train, cfg.Regression); err != nil {
		return nil, nil, err
	}
	if res.Eval, err = Score(best, eval, cfg.Regression); err != nil {
		return nil, nil, err
	}
	if res.Extra, err = Score(best, extra, cfg.Regression); err != nil {
		return nil, nil, err
	}

	logger.Info("refine finished",
		log.IterationKey, cfg.Iterations,
		log.LossKey, bestLoss,
		"training.best_iteration", bestIter,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return best, res, nil
}

// step applies one iteration of gradient descent to the layer.
func (it *Iterative) step(clf *density.Classifier, tr *splitData, cfg Config, rng *rand.Rand) error {
	layer := clf.Layer
	if !cfg.Stochastic {
		return descend(layer, tr.sig, tr.split, cfg)
	}
	for _, idx := range rng.Perm(len(tr.split)) {
		row := tr.sig.Slice(idx, idx+1, 0, layer.Centers)
		if err := descend(layer, row, tr.split[idx:idx+1], cfg); err != nil {
			return err
		}
	}
	return nil
}

func descend(layer *density.PolynomialLayer, sig mat.Matrix, split dataset.Split, cfg Config) error {
	scores, err := layer.Forward(sig)
	if err != nil {
		return err
	}
	_, dScores, err := Loss(scores, split, cfg.Regression)
	if err != nil {
		return err
	}
	grad, err := layer.Backward(sig, dScores)
	if err != nil {
		return err
	}

	params := layer.Params()
	if cfg.Regularize != nil && *cfg.Regularize > 0 {
		for i, isCoef := range layer.CoefMask() {
			if isCoef {
				grad[i] += *cfg.Regularize * params[i]
			}
		}
	}
	for i := range params {
		params[i] -= cfg.LearningRate * grad[i]
	}
	return layer.SetParams(params)
}

// mixtureStep moves means and inverse variances along the central
// finite-difference gradient of the training loss, then refreshes the
// cached training signatures.
func (it *Iterative) mixtureStep(clf *density.Classifier, tr *splitData, cfg Config) error {
	m := clf.Mixture
	theta := mixtureParams(m)

	var evalErr error
	objective := func(x []float64) float64 {
		trial := m.Clone()
		setMixtureParams(trial, x)
		sig, err := trial.Signatures(tr.split)
		if err != nil {
			evalErr = err
			return math.NaN()
		}
		scores, err := clf.Layer.Forward(sig)
		if err != nil {
			evalErr = err
			return math.NaN()
		}
		loss, _, err := Loss(scores, tr.split, cfg.Regression)
		if err != nil {
			evalErr = err
			return math.NaN()
		}
		return loss
	}

	grad := fd.Gradient(nil, objective, theta, &fd.Settings{Formula: fd.Central})
	if evalErr != nil {
		return evalErr
	}
	for i := range theta {
		if errors.IsFinite(grad[i]) {
			theta[i] -= cfg.LearningRate * grad[i]
		}
	}
	setMixtureParams(m, theta)

	sig, err := m.Signatures(tr.split)
	if err != nil {
		return err
	}
	tr.sig = sig
	return nil
}

// mixtureParams flattens component means then inverse variances.
func mixtureParams(m *density.Mixture) []float64 {
	var out []float64
	for _, g := range m.Components {
		out = append(out, g.Mean...)
		out = append(out, g.InvVar...)
	}
	return out
}

func setMixtureParams(m *density.Mixture, theta []float64) {
	off := 0
	for _, g := range m.Components {
		off += copy(g.Mean, theta[off:])
		off += copy(g.InvVar, theta[off:])
	}
}

// splitLoss returns the unregularized loss of clf on cached signatures.
func splitLoss(clf *density.Classifier, sd *splitData, regression bool) (float64, error) {
	scores, err := clf.Layer.Forward(sd.sig)
	if err != nil {
		return 0, err
	}
	loss, _, err := Loss(scores, sd.split, regression)
	return loss, err
}

// Loss returns the mean loss of scores against the outcomes of split and its
// gradient with respect to scores: cross-entropy for classification, squared
// error on the regression column otherwise.
func Loss(scores *mat.Dense, split dataset.Split, regression bool) (float64, *mat.Dense, error) {
	if regression {
		return optim.MSE(scores, split.Targets())
	}
	return optim.CrossEntropy(scores, split.Labels())
}

var _ Refiner = (*Iterative)(nil)
