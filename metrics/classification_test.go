package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ppabba101/CloudPred/pkg/errors"
)

func vec(v ...float64) *mat.VecDense { return mat.NewVecDense(len(v), v) }

func TestAUC(t *testing.T) {
	tests := []struct {
		name   string
		labels *mat.VecDense
		proba  *mat.VecDense
		want   float64
	}{
		{"separated patients", vec(0, 0, 1, 1), vec(0.1, 0.2, 0.7, 0.9), 1},
		{"inverted ranking", vec(0, 0, 1, 1), vec(0.9, 0.7, 0.2, 0.1), 0},
		// 5 of the 6 positive/negative pairs are ordered correctly
		{"partly ordered", vec(1, 0, 1, 0, 1), vec(0.8, 0.3, 0.4, 0.6, 0.9), 5.0 / 6},
		// one tied pair out of four counts half
		{"tied scores", vec(0, 0, 1, 1), vec(0.1, 0.6, 0.6, 0.9), 0.875},
		{"all tied", vec(0, 1, 0, 1), vec(0.5, 0.5, 0.5, 0.5), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AUC(tt.labels, tt.proba)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestAUCSingleClassWarns(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	got, err := AUC(vec(1, 1, 1), vec(0.2, 0.5, 0.9))
	require.NoError(t, err)
	assert.Equal(t, 0.5, got)
	require.Len(t, warnings, 1)

	var undefined *errors.UndefinedMetricWarning
	assert.True(t, errors.As(warnings[0], &undefined))
}

func TestAUCErrors(t *testing.T) {
	_, err := AUC(vec(0, 2), vec(0.1, 0.9))
	assert.Error(t, err, "labels must be binary")
	_, err = AUC(vec(0, 1, 1), vec(0.1, 0.9))
	assert.Error(t, err)
	_, err = AUC(nil, vec(0.1))
	assert.Error(t, err)
}

func TestBinaryLogLoss(t *testing.T) {
	got, err := BinaryLogLoss(vec(1, 0), vec(0.8, 0.4))
	require.NoError(t, err)
	assert.InDelta(t, -(math.Log(0.8)+math.Log(0.6))/2, got, 1e-12)

	// a zero probability for a positive patient stays finite
	got, err = BinaryLogLoss(vec(1, 0), vec(0, 0))
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(1e-15)/2, got, 1e-9)

	got, err = BinaryLogLoss(vec(0, 1), vec(0.5, 0.5))
	require.NoError(t, err)
	assert.InDelta(t, math.Ln2, got, 1e-12)

	_, err = BinaryLogLoss(vec(0.5), vec(0.5))
	assert.Error(t, err)
	_, err = BinaryLogLoss(vec(0, 1), vec(0.5))
	assert.Error(t, err)
}

func TestAccuracyAndClassificationError(t *testing.T) {
	labels := vec(0, 1, 2, 1)
	predicted := vec(0, 1, 1, 1)

	acc, err := Accuracy(labels, predicted)
	require.NoError(t, err)
	assert.Equal(t, 0.75, acc)

	miss, err := ClassificationError(labels, predicted)
	require.NoError(t, err)
	assert.Equal(t, 0.25, miss)

	_, err = Accuracy(labels, vec(0))
	assert.Error(t, err)
	_, err = ClassificationError(&mat.VecDense{}, &mat.VecDense{})
	assert.Error(t, err)
}
