package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// outcomes of four patients and a model's predictions for them
func regressionFixture() (truth, pred *mat.VecDense) {
	truth = mat.NewVecDense(4, []float64{-1.5, 2.5, 0.5, 1})
	pred = mat.NewVecDense(4, []float64{-1, 2, 0.5, 2})
	return truth, pred
}

func TestRegressionScores(t *testing.T) {
	truth, pred := regressionFixture()

	mse, err := MSE(truth, pred)
	require.NoError(t, err)
	assert.InDelta(t, (0.25+0.25+0+1)/4, mse, 1e-12)

	rmse, err := RMSE(truth, pred)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(mse), rmse, 1e-12)

	mae, err := MAE(truth, pred)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mae, 1e-12)

	// mean 0.625, total sum of squares 8.1875, residual sum 1.5
	r2, err := R2Score(truth, pred)
	require.NoError(t, err)
	assert.InDelta(t, 1-1.5/8.1875, r2, 1e-12)
}

func TestRegressionScoresPerfectPrediction(t *testing.T) {
	truth, _ := regressionFixture()

	for name, fn := range map[string]func(a, b *mat.VecDense) (float64, error){
		"MSE": MSE, "RMSE": RMSE, "MAE": MAE,
	} {
		v, err := fn(truth, truth)
		require.NoError(t, err, name)
		assert.Equal(t, 0.0, v, name)
	}

	r2, err := R2Score(truth, truth)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r2)
}

func TestR2ScoreWorseThanMeanIsNegative(t *testing.T) {
	truth := mat.NewVecDense(3, []float64{0, 1, 2})
	pred := mat.NewVecDense(3, []float64{2, 1, 0})
	r2, err := R2Score(truth, pred)
	require.NoError(t, err)
	assert.InDelta(t, -3.0, r2, 1e-12)
}

func TestRegressionScoreErrors(t *testing.T) {
	truth, _ := regressionFixture()
	short := mat.NewVecDense(2, []float64{0, 1})
	constant := mat.NewVecDense(3, []float64{0.7, 0.7, 0.7})

	scores := map[string]func(a, b *mat.VecDense) (float64, error){
		"MSE": MSE, "RMSE": RMSE, "MAE": MAE, "R2Score": R2Score,
	}
	tests := []struct {
		name  string
		yTrue *mat.VecDense
		yPred *mat.VecDense
	}{
		{"nil truth", nil, truth},
		{"nil prediction", truth, nil},
		{"length mismatch", truth, short},
		{"empty", &mat.VecDense{}, &mat.VecDense{}},
	}
	for _, tt := range tests {
		for name, fn := range scores {
			t.Run(tt.name+"/"+name, func(t *testing.T) {
				_, err := fn(tt.yTrue, tt.yPred)
				assert.Error(t, err)
			})
		}
	}

	_, err := R2Score(constant, constant)
	assert.Error(t, err, "R2 is undefined without variance in the outcomes")
}
