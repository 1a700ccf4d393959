package metrics

import (
	"sort"

	"github.com/ppabba101/CloudPred/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func checkBinary(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		v := y.AtVec(i)
		if v != 0 && v != 1 {
			return errors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	return nil
}

// AUC はROC曲線下面積をMann-Whitney統計量として計算する
// スコアが同順位の正例・負例ペアは 1/2 として数える。
// 片方のクラスしか存在しない場合は未定義のため 0.5 を返し警告を出す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := validatePair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("AUC", yTrue); err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return yScore.AtVec(idx[a]) < yScore.AtVec(idx[b])
	})

	// 平均順位（同順位は平均）を付与し、正例の順位和を取る
	var rankSum float64
	var nPos, nNeg int
	for i := 0; i < n; {
		j := i
		for j < n && yScore.AtVec(idx[j]) == yScore.AtVec(idx[i]) {
			j++
		}
		avgRank := float64(i+j+1) / 2 // 1始まり
		for k := i; k < j; k++ {
			if yTrue.AtVec(idx[k]) == 1 {
				rankSum += avgRank
				nPos++
			} else {
				nNeg++
			}
		}
		i = j
	}

	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present in yTrue", 0.5))
		return 0.5, nil
	}

	u := rankSum - float64(nPos)*float64(nPos+1)/2
	return u / (float64(nPos) * float64(nNeg)), nil
}

// BinaryLogLoss は2値交差エントロピーを計算する
// yProb は正例の確率。log(0) は errors.StabilizeLog で下限を設けて回避する
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := validatePair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		p := yProb.AtVec(i)
		if yTrue.AtVec(i) == 1 {
			sum -= errors.StabilizeLog(p)
		} else {
			sum -= errors.StabilizeLog(1 - p)
		}
	}
	return sum / float64(n), nil
}

// Accuracy は予測ラベルが一致した割合を返す
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := validatePair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は 1 - Accuracy
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}
