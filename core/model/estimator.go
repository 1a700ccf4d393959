package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
// 教師なしモデルでは y に nil を渡す
type Fitter interface {
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// ProbaPredictor は各成分・各クラスの確率を返すモデルのインターフェース
type ProbaPredictor interface {
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// Scorer はデータに対するスコア（平均対数尤度、決定係数など）を返すモデルのインターフェース
type Scorer interface {
	Score(X, y mat.Matrix) (float64, error)
}

// Estimator は Fit と Predict を備えたモデル
type Estimator interface {
	Fitter
	Predictor
}
