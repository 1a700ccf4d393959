// Package optim provides the losses and the momentum optimizer used to train
// the polynomial layer. Losses return the mean loss together with its
// gradient with respect to the score matrix.
package optim

import (
	"math"

	"github.com/ppabba101/CloudPred/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RegressionColumn is the score column read as the scalar prediction in
// regression mode.
const RegressionColumn = 1

// Softmax returns row-wise class probabilities for an N×K score matrix.
func Softmax(scores mat.Matrix) *mat.Dense {
	rows, cols := scores.Dims()
	out := mat.NewDense(rows, cols, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, scores)
		lse := floats.LogSumExp(row)
		for k := range row {
			row[k] = math.Exp(row[k] - lse)
		}
		out.SetRow(i, row)
	}
	return out
}

// CrossEntropy returns the mean negative log-likelihood of labels under
// softmax(scores) and its gradient (softmax - onehot) / N.
func CrossEntropy(scores mat.Matrix, labels []int) (float64, *mat.Dense, error) {
	rows, cols := scores.Dims()
	if rows == 0 {
		return 0, nil, errors.NewModelError("CrossEntropy", "empty batch", errors.ErrEmptyData)
	}
	if len(labels) != rows {
		return 0, nil, errors.NewDimensionError("CrossEntropy", rows, len(labels), 0)
	}

	grad := mat.NewDense(rows, cols, nil)
	row := make([]float64, cols)
	var loss float64
	n := float64(rows)
	for i := 0; i < rows; i++ {
		y := labels[i]
		if y < 0 || y >= cols {
			return 0, nil, errors.NewValidationError("labels", "out of range for score columns", y)
		}
		mat.Row(row, i, scores)
		lse := floats.LogSumExp(row)
		loss += lse - row[y]
		for k := range row {
			g := math.Exp(row[k] - lse)
			if k == y {
				g--
			}
			grad.Set(i, k, g/n)
		}
	}
	return loss / n, grad, nil
}

// MSE returns the mean squared error between score column RegressionColumn
// and targets, and its gradient 2(pred - y) / N in that column.
func MSE(scores mat.Matrix, targets []float64) (float64, *mat.Dense, error) {
	rows, cols := scores.Dims()
	if rows == 0 {
		return 0, nil, errors.NewModelError("MSE", "empty batch", errors.ErrEmptyData)
	}
	if len(targets) != rows {
		return 0, nil, errors.NewDimensionError("MSE", rows, len(targets), 0)
	}
	if cols <= RegressionColumn {
		return 0, nil, errors.NewDimensionError("MSE", RegressionColumn+1, cols, 1)
	}

	grad := mat.NewDense(rows, cols, nil)
	var loss float64
	n := float64(rows)
	for i := 0; i < rows; i++ {
		e := scores.At(i, RegressionColumn) - targets[i]
		loss += e * e
		grad.Set(i, RegressionColumn, 2*e/n)
	}
	return loss / n, grad, nil
}
