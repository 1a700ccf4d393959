package trainer

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ppabba101/CloudPred/dataset"
	"github.com/ppabba101/CloudPred/density"
	"github.com/ppabba101/CloudPred/metrics"
	"github.com/ppabba101/CloudPred/optim"
)

// Score evaluates clf on split without modifying it. An empty split yields a
// nil result.
func Score(clf *density.Classifier, split dataset.Split, regression bool) (*SplitResult, error) {
	if len(split) == 0 {
		return nil, nil
	}
	scores, err := clf.Scores(split)
	if err != nil {
		return nil, err
	}
	loss, _, err := Loss(scores, split, regression)
	if err != nil {
		return nil, err
	}

	n := len(split)
	res := &SplitResult{
		Patients: n,
		Loss:     loss,
		Accuracy: math.NaN(),
		Error:    math.NaN(),
		AUC:      math.NaN(),
		LogLoss:  math.NaN(),
		MSE:      math.NaN(),
		RMSE:     math.NaN(),
		MAE:      math.NaN(),
		R2:       math.NaN(),
	}

	if regression {
		pred := mat.NewVecDense(n, mat.Col(nil, optim.RegressionColumn, scores))
		truth := mat.NewVecDense(n, split.Targets())
		res.Predictions = mat.NewDense(n, 1, pred.RawVector().Data)
		if res.MSE, err = metrics.MSE(truth, pred); err != nil {
			return nil, err
		}
		if res.RMSE, err = metrics.RMSE(truth, pred); err != nil {
			return nil, err
		}
		if res.MAE, err = metrics.MAE(truth, pred); err != nil {
			return nil, err
		}
		if r2, err := metrics.R2Score(truth, pred); err == nil {
			res.R2 = r2
		}
		return res, nil
	}

	proba := optim.Softmax(scores)
	res.Predictions = proba

	labels := split.Labels()
	truth := make([]float64, n)
	argmax := make([]float64, n)
	for i := range labels {
		truth[i] = float64(labels[i])
		argmax[i] = float64(floats.MaxIdx(proba.RawRowView(i)))
	}
	truthVec, argmaxVec := mat.NewVecDense(n, truth), mat.NewVecDense(n, argmax)
	if res.Accuracy, err = metrics.Accuracy(truthVec, argmaxVec); err != nil {
		return nil, err
	}
	if res.Error, err = metrics.ClassificationError(truthVec, argmaxVec); err != nil {
		return nil, err
	}
	res.AUC = macroAUC(proba, labels)
	if _, states := proba.Dims(); states == 2 {
		positive := mat.NewVecDense(n, mat.Col(nil, 1, proba))
		if res.LogLoss, err = metrics.BinaryLogLoss(truthVec, positive); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// macroAUC averages one-vs-rest AUC over the classes that are neither absent
// nor universal in labels. With two states only class 1 is scored, which is
// the usual binary AUC. NaN when no class qualifies.
func macroAUC(proba *mat.Dense, labels []int) float64 {
	n, states := proba.Dims()
	counts := make([]int, states)
	for _, l := range labels {
		counts[l]++
	}

	first := 0
	if states == 2 {
		first = 1
	}
	var sum float64
	var scored int
	for k := first; k < states; k++ {
		if counts[k] == 0 || counts[k] == n {
			continue
		}
		truth := make([]float64, n)
		for i, l := range labels {
			if l == k {
				truth[i] = 1
			}
		}
		auc, err := metrics.AUC(mat.NewVecDense(n, truth), mat.NewVecDense(n, mat.Col(nil, k, proba)))
		if err != nil {
			continue
		}
		sum += auc
		scored++
	}
	if scored == 0 {
		return math.NaN()
	}
	return sum / float64(scored)
}
