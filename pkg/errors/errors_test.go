package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Polynomial.FitLinear",
			kind:    "pseudoinverse failed",
			err:     fmt.Errorf("svd did not converge"),
			wantMsg: "cloudpred: Polynomial.FitLinear: pseudoinverse failed: svd did not converge",
		},
		{
			name:    "without original error",
			op:      "Eval",
			kind:    "not fitted",
			wantMsg: "cloudpred: Eval: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)
			assert.Equal(t, tt.wantMsg, err.Error())

			// スタックトレースにテストファイル名が含まれる
			formatted := fmt.Sprintf("%+v", err)
			assert.True(t, strings.Contains(formatted, "errors_test.go"))

			var modelErr *ModelError
			assert.True(t, As(err, &modelErr))
		})
	}
}

func TestModelErrorUnwrap(t *testing.T) {
	err := NewModelError("LinearRegression.Fit", "singular matrix", ErrSingularMatrix)
	assert.True(t, Is(err, ErrSingularMatrix))
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Gaussian.LogProb", 3, 2, 1)
	assert.Equal(t, "cloudpred: Gaussian.LogProb: dimension mismatch on axis 1 (features). Expected 3, got 2", err.Error())

	var dimErr *DimensionError
	require.True(t, As(err, &dimErr))
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("GaussianMixture", "PredictProba")
	want := "cloudpred: GaussianMixture: this model is not fitted yet. Call Fit() before using PredictProba()"
	assert.Equal(t, want, err.Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("centers", "must be positive", 0)
	assert.Equal(t, "cloudpred: validation failed for parameter 'centers': must be positive (got: 0)", err.Error())
}

func TestWarnRouting(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(nil)

	Warn(NewConvergenceWarning("GaussianMixture", 100, ""))
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Error(), "GaussianMixture failed to converge after 100 iterations")

	var routed []error
	SetZerologWarnFunc(func(w error) { routed = append(routed, w) })
	defer SetZerologWarnFunc(nil)

	Warn(NewUndefinedMetricWarning("auc", "only one class present", 0.5))
	assert.Len(t, got, 1, "zerolog func takes precedence over the plain handler")
	assert.Len(t, routed, 1)
}

func TestCheckScalar(t *testing.T) {
	assert.NoError(t, CheckScalar("loss", 0.3, 1))

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := CheckScalar("loss", v, 7)
		require.Error(t, err)
		var numErr *NumericalInstabilityError
		require.True(t, As(err, &numErr))
		assert.Equal(t, 7, numErr.Iteration)
	}
}

func TestSafeExecute(t *testing.T) {
	err := SafeExecute("mat.Mul", func() error {
		panic("mat: dimension mismatch")
	})
	var panicErr *PanicError
	require.True(t, As(err, &panicErr))
	assert.Equal(t, "mat.Mul", panicErr.Operation)
	assert.NotEmpty(t, panicErr.StackTrace)

	sentinel := New("plain failure")
	assert.Equal(t, sentinel, SafeExecute("noop", func() error { return sentinel }))
}

func TestRecoverKeepsExistingError(t *testing.T) {
	base := New("first")
	fn := func() (err error) {
		defer Recover(&err, "Train")
		err = base
		panic("second")
	}
	err := fn()
	require.Error(t, err)
	assert.True(t, Is(err, base))
	assert.Contains(t, err.Error(), "panic in Train: second")
}
