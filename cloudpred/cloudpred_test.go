package cloudpred

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ppabba101/CloudPred/dataset"
	"github.com/ppabba101/CloudPred/density"
	"github.com/ppabba101/CloudPred/pkg/errors"
	"github.com/ppabba101/CloudPred/pkg/log"
	"github.com/ppabba101/CloudPred/trainer"
)

func twoPatients() dataset.Split {
	return dataset.Split{
		{ID: "low", Cells: mat.NewDense(3, 2, []float64{0, 0, 0.1, 0, 0, 0.1}), Y: 0},
		{ID: "high", Cells: mat.NewDense(3, 2, []float64{10, 10, 10.1, 10, 10, 10.1}), Y: 1},
	}
}

func quiet() Option {
	logger, _ := log.NewTestLogger(log.LevelError)
	return WithLogger(logger)
}

func fastOpts(extra ...Option) []Option {
	return append([]Option{quiet(), WithEpochs(50), WithRefineIterations(10)}, extra...)
}

func TestTrainSeparatesTwoPatients(t *testing.T) {
	split := twoPatients()
	m, err := Train(split, split, fastOpts()...)
	require.NoError(t, err)

	require.Equal(t, 2, m.Classifier.Mixture.Centers())
	assert.Equal(t, 2, m.Classifier.States())
	assert.NotEmpty(t, m.RunID)

	sig, err := m.Classifier.Signatures(split)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		row := sig.RawRowView(i)
		assert.InDelta(t, 1.0, floats.Max(row), 1e-6, "signature %d is one-hot", i)
	}
	assert.NotEqual(t, floats.MaxIdx(sig.RawRowView(0)), floats.MaxIdx(sig.RawRowView(1)))

	scores, err := m.Classifier.Scores(split)
	require.NoError(t, err)
	assert.Less(t, scores.At(0, 1), scores.At(0, 0), "low patient scores class 0")
	assert.Greater(t, scores.At(1, 1), scores.At(1, 0), "high patient scores class 1")

	require.NotNil(t, m.Result.Eval)
	assert.Equal(t, 1.0, m.Result.Eval.Accuracy)
	assert.Len(t, m.History.Stages, len(DefaultConfig().Schedule))
}

func TestTrainRegression(t *testing.T) {
	split := twoPatients()
	split[0].Y = -1.5
	split[1].Y = 2.5

	m, err := Train(split, split, fastOpts(WithRegression(true))...)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Classifier.States())

	pred, err := m.Predict(split)
	require.NoError(t, err)
	r, c := pred.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 1, c)
	assert.InDelta(t, -1.5, pred.At(0, 0), 0.1)
	assert.InDelta(t, 2.5, pred.At(1, 0), 0.1)
	assert.True(t, math.IsNaN(m.Result.Eval.AUC))
}

func TestTrainInfersStates(t *testing.T) {
	train := twoPatients()
	valid := dataset.Split{{ID: "third", Cells: mat.NewDense(1, 2, []float64{5, 5}), Y: 3}}
	m, err := Train(train, valid, fastOpts(WithEpochs(2), WithRefineIterations(1))...)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Classifier.States())

	m, err = Train(train, nil, fastOpts(WithEpochs(2), WithStates(5))...)
	require.NoError(t, err)
	assert.Equal(t, 5, m.Classifier.States())
}

func TestTrainErrors(t *testing.T) {
	split := twoPatients()
	wide := dataset.Split{{ID: "w", Cells: mat.NewDense(1, 3, nil), Y: 0}}

	tests := []struct {
		name  string
		train dataset.Split
		valid dataset.Split
		opts  []Option
	}{
		{"empty train", nil, split, nil},
		{"feature mismatch", split, wide, nil},
		{"fractional label", dataset.Split{{ID: "x", Cells: mat.NewDense(1, 2, nil), Y: 0.5}}, nil, nil},
		{"bad centers", split, split, []Option{WithCenters(0)}},
		{"too many centers", split, split, []Option{WithCenters(10)}},
		{"bad schedule", split, split, []Option{WithSchedule(1, -1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Train(tt.train, tt.valid, append(fastOpts(), tt.opts...)...)
			assert.Error(t, err)
		})
	}
}

func TestEvalDoesNotModifyModel(t *testing.T) {
	split := twoPatients()
	m, err := Train(split, split, fastOpts()...)
	require.NoError(t, err)

	params := m.Classifier.Layer.Params()
	means := append([]float64(nil), m.Classifier.Mixture.Components[0].Mean...)

	res, err := Eval(m, split, quiet())
	require.NoError(t, err)
	assert.Equal(t, params, m.Classifier.Layer.Params())
	assert.Equal(t, means, m.Classifier.Mixture.Components[0].Mean)

	assert.Nil(t, res.Train)
	require.NotNil(t, res.Eval)
	assert.Equal(t, 2, res.Eval.Patients)
	assert.Equal(t, 1.0, res.Eval.Accuracy)
	assert.InDelta(t, m.Result.Eval.Loss, res.Eval.Loss, 1e-9)

	_, err = Eval(m, nil, quiet())
	assert.Error(t, err)
	_, err = Eval(nil, split, quiet())
	assert.Error(t, err)
}

// scheduleFixture returns a layer with arbitrary parameters and batches built
// from hand-written signatures.
func scheduleFixture(t *testing.T) (*density.PolynomialLayer, Batch) {
	t.Helper()
	layer, err := density.NewPolynomialLayer(2, 2, 2)
	require.NoError(t, err)
	require.NoError(t, layer.SetParams([]float64{0.5, -2, 1, 3, 0.2}))

	split := dataset.Split{{Y: 0}, {Y: 1}, {Y: 0}, {Y: 1}}
	sig := mat.NewDense(4, 2, []float64{
		0.9, 0.1,
		0.2, 0.8,
		0.6, 0.4,
		0.5, 0.5,
	})
	return layer, Batch{Split: split, Signatures: sig}
}

func TestRunScheduleNeverEndsWorse(t *testing.T) {
	for _, rates := range [][]float64{{1e6, 1e4}, {100, 10, 1, 0.1}, {1e-3}} {
		layer, b := scheduleFixture(t)
		before, err := batchLoss(layer, b, false)
		require.NoError(t, err)

		h, err := RunSchedule(layer, b, b, quiet(), WithSchedule(rates...), WithEpochs(20))
		require.NoError(t, err)
		after, err := batchLoss(layer, b, false)
		require.NoError(t, err)

		assert.LessOrEqual(t, after, before, "rates %v", rates)
		require.Len(t, h.Stages, len(rates))
		for _, st := range h.Stages {
			assert.LessOrEqual(t, st.BestLoss, st.StartLoss)
			assert.Len(t, st.TrainLoss, 20)
			assert.Len(t, st.ValidLoss, 20)
		}
		assert.InDelta(t, after, h.FinalLoss(), 1e-12)
	}
}

func TestRunScheduleZeroEpochsKeepsParams(t *testing.T) {
	layer, b := scheduleFixture(t)
	params := layer.Params()
	h, err := RunSchedule(layer, b, Batch{}, quiet(), WithEpochs(0))
	require.NoError(t, err)
	assert.Equal(t, params, layer.Params())
	for _, st := range h.Stages {
		assert.Equal(t, 0, st.BestEpoch)
	}
}

func TestRunScheduleWarnsOnNonFiniteLoss(t *testing.T) {
	layer, b := scheduleFixture(t)
	require.NoError(t, layer.SetParams([]float64{math.NaN(), 0, 0, 0, 0}))

	logger, _ := log.NewTestLogger(log.LevelDebug)
	h, err := RunSchedule(layer, b, b, WithLogger(logger), WithSchedule(1, 0.1), WithEpochs(3))
	require.NoError(t, err)

	// one warning per stage, not per epoch
	assert.Equal(t, 2, logger.CountMessage("non-finite validation loss"))
	for _, st := range h.Stages {
		assert.True(t, math.IsInf(st.BestLoss, 1))
		assert.Equal(t, 0, st.BestEpoch)
	}
}

func withLogEvery(n int) Config {
	cfg := DefaultConfig()
	cfg.LogEvery = n
	return cfg
}

func TestRunScheduleLogsProgress(t *testing.T) {
	layer, b := scheduleFixture(t)
	logger, _ := log.NewTestLogger(log.LevelDebug)
	cfg := withLogEvery(5)
	cfg.Schedule = []float64{1, 0.1}
	cfg.Epochs = 10

	_, err := RunSchedule(layer, b, b, WithConfig(cfg), WithLogger(logger))
	require.NoError(t, err)
	assert.Equal(t, 4, logger.CountMessage("schedule epoch"))
	assert.Equal(t, 2, logger.CountMessage("stage finished"))
	assert.True(t, logger.ContainsField(log.OperationKey, log.OperationSchedule))
	assert.True(t, logger.ContainsField(log.LearningRateKey, 0.1))
	assert.True(t, logger.ContainsField(log.MomentumKey, 0.9))
	assert.True(t, logger.ContainsField(log.PhaseKey, log.PhaseTraining))
}

func TestRunScheduleErrors(t *testing.T) {
	layer, b := scheduleFixture(t)
	_, err := RunSchedule(nil, b, b, quiet())
	assert.Error(t, err)
	_, err = RunSchedule(layer, Batch{}, b, quiet())
	assert.Error(t, err)
	_, err = RunSchedule(layer, b, b, quiet(), WithEpochs(-1))
	assert.Error(t, err)
}

func TestMetricsRecordStages(t *testing.T) {
	layer, b := scheduleFixture(t)
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	h, err := RunSchedule(layer, b, b, quiet(), WithMetrics(m), WithSchedule(1, 0.1), WithEpochs(7))
	require.NoError(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(m.Epochs))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Epochs.WithLabelValues("0", "1")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Epochs.WithLabelValues("1", "0.1")))
	assert.InDelta(t, h.Stages[1].BestLoss, testutil.ToFloat64(m.BestValidLoss.WithLabelValues("0.1")), 1e-12)

	assert.Error(t, m.Register(reg), "duplicate registration")
}

func TestMetricsRecordEval(t *testing.T) {
	split := twoPatients()
	model, err := Train(split, split, fastOpts()...)
	require.NoError(t, err)

	m := NewMetrics()
	res, err := Eval(model, split, quiet(), WithMetrics(m))
	require.NoError(t, err)
	assert.InDelta(t, res.Eval.Loss, testutil.ToFloat64(m.EvalLoss), 1e-12)
}

func TestTrainLogsRunID(t *testing.T) {
	split := twoPatients()
	logger, _ := log.NewTestLogger(log.LevelInfo)
	m, err := Train(split, split, WithLogger(logger), WithEpochs(5), WithRefineIterations(2))
	require.NoError(t, err)

	assert.True(t, logger.ContainsField(log.EstimatorIDKey, m.RunID))
	assert.True(t, logger.ContainsMessage("training finished"))
	assert.True(t, logger.ContainsMessage("refine finished"))
	assert.Equal(t, len(DefaultConfig().Schedule), logger.CountMessage("stage finished"))
	assert.True(t, logger.ContainsField(log.PhaseKey, log.PhaseValidation))
}

func TestEvalLogsAccuracy(t *testing.T) {
	split := twoPatients()
	m, err := Train(split, split, fastOpts()...)
	require.NoError(t, err)

	logger, _ := log.NewTestLogger(log.LevelInfo)
	_, err = Eval(m, split, WithLogger(logger))
	require.NoError(t, err)
	assert.True(t, logger.ContainsMessage("evaluation finished"))
	assert.True(t, logger.ContainsField(log.PhaseKey, log.PhaseTesting))
	assert.True(t, logger.ContainsField(log.AccuracyKey, 1.0))
}

func TestPredictReportsCorruptedModel(t *testing.T) {
	split := twoPatients()
	m, err := Train(split, split, fastOpts()...)
	require.NoError(t, err)

	// a layer that claims fewer states than it has polynomials
	m.Classifier.Layer.States = 1
	_, err = m.Predict(split)
	var panicErr *errors.PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "cloudpred.Predict", panicErr.Operation)

	_, err = (&Model{}).Predict(split)
	assert.Error(t, err)
}

func TestRefineMixtureReachesRefiner(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelError)

	it, ok := newSettings(nil).defaultRefiner(logger).(*trainer.Iterative)
	require.True(t, ok)
	assert.False(t, it.RefinesMixture())

	it, ok = newSettings([]Option{WithRefineMixture(true)}).defaultRefiner(logger).(*trainer.Iterative)
	require.True(t, ok)
	assert.True(t, it.RefinesMixture())

	cfg := DefaultConfig()
	cfg.RefineMixture = true
	it, ok = newSettings([]Option{WithConfig(cfg)}).defaultRefiner(logger).(*trainer.Iterative)
	require.True(t, ok)
	assert.True(t, it.RefinesMixture())
}

func TestTrainWithMixtureRefinement(t *testing.T) {
	split := twoPatients()
	plain, err := Train(split, split, fastOpts()...)
	require.NoError(t, err)
	refined, err := Train(split, split, fastOpts(WithRefineMixture(true))...)
	require.NoError(t, err)

	assert.True(t, refined.Config.RefineMixture)
	assert.Equal(t, plain.Classifier.Mixture.Weights, refined.Classifier.Mixture.Weights,
		"mixing weights stay at the fitted values")
	assert.Equal(t, 1.0, refined.Result.Eval.Accuracy)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	split := twoPatients()
	m, err := Train(split, split, fastOpts()...)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, m.Save(path))
	loaded, err := LoadModel(path)
	require.NoError(t, err)

	assert.Equal(t, m.RunID, loaded.RunID)
	assert.Equal(t, m.Config, loaded.Config)
	assert.Equal(t, m.Classifier.Layer.Params(), loaded.Classifier.Layer.Params())

	want, err := m.Predict(split)
	require.NoError(t, err)
	got, err := loaded.Predict(split)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))

	_, err = LoadModel(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
}

func TestHistorySavePlot(t *testing.T) {
	layer, b := scheduleFixture(t)
	h, err := RunSchedule(layer, b, b, quiet(), WithSchedule(1, 0.1), WithEpochs(10))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "loss.png")
	require.NoError(t, h.SavePlot(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	assert.Error(t, (&History{}).SavePlot(path))
	assert.True(t, math.IsNaN((&History{}).FinalLoss()))
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader("centers: 3\nschedule: [1, 0.1]\nstochastic: false\nseed: 7\nrefine_mixture: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.RefineMixture)
	assert.Equal(t, 3, cfg.Centers)
	assert.Equal(t, []float64{1, 0.1}, cfg.Schedule)
	assert.False(t, cfg.Stochastic)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 1000, cfg.Epochs, "absent keys keep defaults")
	assert.Equal(t, 0.9, cfg.Momentum)

	cfg, err = LoadConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "centres: 3\n"},
		{"momentum out of range", "momentum: 1.5\n"},
		{"negative epochs", "epochs: -1\n"},
		{"states of one", "states: 1\n"},
		{"not yaml", "centers: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloudpred.yaml")
	require.NoError(t, os.WriteFile(path, []byte("degree: 3\nregression: true\n"), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Degree)
	assert.True(t, cfg.Regression)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
