// Package mixture はscikit-learn互換の混合ガウスモデルを提供する。
//
// 共分散は対角（covariance_type="diag"）のみをサポートし、
// パラメータはKMeansのラベルから初期化したEMアルゴリズムで推定する。
package mixture

import (
	"fmt"
	"math"

	"github.com/ppabba101/CloudPred/core/model"
	"github.com/ppabba101/CloudPred/core/parallel"
	"github.com/ppabba101/CloudPred/pkg/errors"
	"github.com/ppabba101/CloudPred/sklearn/cluster"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// 並列処理の閾値（この値以下のサンプル数ではEステップを逐次処理）
const eStepParallelThreshold = 1000

var log2Pi = math.Log(2 * math.Pi)

// GaussianMixture は対角共分散の混合ガウスモデル
type GaussianMixture struct {
	model.BaseEstimator

	// ハイパーパラメータ
	nComponents int
	maxIter     int
	tol         float64
	regCovar    float64
	nInit       int
	randomState int64

	// 学習パラメータ
	means_       *mat.Dense // nComponents x nFeatures
	covariances_ *mat.Dense // nComponents x nFeatures（対角成分）
	weights_     []float64
	converged_   bool
	nIter_       int
	lowerBound_  float64
	nFeatures_   int
}

// Option はGaussianMixtureの設定オプション
type Option func(*GaussianMixture)

// NewGaussianMixture は新しい混合ガウスモデルを作成する
func NewGaussianMixture(opts ...Option) *GaussianMixture {
	gm := &GaussianMixture{
		nComponents: 1,
		maxIter:     100,
		tol:         1e-3,
		regCovar:    1e-6,
		nInit:       1,
		randomState: -1,
	}
	for _, opt := range opts {
		opt(gm)
	}
	return gm
}

// WithNComponents は混合成分数を設定
func WithNComponents(n int) Option {
	return func(gm *GaussianMixture) { gm.nComponents = n }
}

// WithMaxIter はEMの最大反復回数を設定
func WithMaxIter(n int) Option {
	return func(gm *GaussianMixture) { gm.maxIter = n }
}

// WithTol は下界の変化量に対する収束閾値を設定
func WithTol(tol float64) Option {
	return func(gm *GaussianMixture) { gm.tol = tol }
}

// WithRegCovar は共分散の対角に加える正則化項を設定
func WithRegCovar(reg float64) Option {
	return func(gm *GaussianMixture) { gm.regCovar = reg }
}

// WithNInit は初期化の試行回数を設定
func WithNInit(n int) Option {
	return func(gm *GaussianMixture) { gm.nInit = n }
}

// WithRandomState はKMeans初期化の乱数シードを設定
func WithRandomState(seed int64) Option {
	return func(gm *GaussianMixture) { gm.randomState = seed }
}

func (gm *GaussianMixture) validate(rows, cols int) error {
	switch {
	case rows == 0 || cols == 0:
		return errors.NewModelError("GaussianMixture.Fit", "empty data", errors.ErrEmptyData)
	case gm.nComponents < 1:
		return errors.NewValidationError("n_components", "must be >= 1", gm.nComponents)
	case gm.maxIter < 1:
		return errors.NewValidationError("max_iter", "must be >= 1", gm.maxIter)
	case gm.tol < 0:
		return errors.NewValidationError("tol", "must be non-negative", gm.tol)
	case gm.regCovar < 0:
		return errors.NewValidationError("reg_covar", "must be non-negative", gm.regCovar)
	case gm.nInit < 1:
		return errors.NewValidationError("n_init", "must be >= 1", gm.nInit)
	case rows < gm.nComponents:
		return errors.NewValueError("GaussianMixture.Fit",
			fmt.Sprintf("expected n_samples >= n_components but got n_components=%d, n_samples=%d", gm.nComponents, rows))
	}
	return nil
}

// Fit はEMアルゴリズムでモデルパラメータを推定する。y は無視される。
// n_init 回の試行のうち下界が最大のものを採用する。
func (gm *GaussianMixture) Fit(X, _ mat.Matrix) error {
	rows, cols := X.Dims()
	if err := gm.validate(rows, cols); err != nil {
		return err
	}
	gm.nFeatures_ = cols

	bestLB := math.Inf(-1)
	var best *emState
	for run := 0; run < gm.nInit; run++ {
		seed := gm.randomState
		if seed >= 0 {
			seed += int64(run)
		}
		st, err := gm.fitSingleRun(X, seed)
		if err != nil {
			return err
		}
		if best == nil || st.lowerBound > bestLB {
			bestLB = st.lowerBound
			best = st
		}
	}

	gm.means_ = best.means
	gm.covariances_ = best.covariances
	gm.weights_ = best.weights
	gm.converged_ = best.converged
	gm.nIter_ = best.nIter
	gm.lowerBound_ = best.lowerBound

	if !gm.converged_ {
		errors.Warn(errors.NewConvergenceWarning("GaussianMixture", gm.nIter_,
			"try different init parameters, or increase max_iter, tol or check for degenerate data"))
	}

	gm.SetFitted()
	return nil
}

type emState struct {
	means       *mat.Dense
	covariances *mat.Dense
	weights     []float64
	converged   bool
	nIter       int
	lowerBound  float64
}

func (gm *GaussianMixture) fitSingleRun(X mat.Matrix, seed int64) (*emState, error) {
	rows, _ := X.Dims()

	// KMeansのラベルをone-hotの責任度としてMステップを1回実行
	km := cluster.NewKMeans(
		cluster.WithKMeansNClusters(gm.nComponents),
		cluster.WithKMeansNInit(1),
		cluster.WithKMeansRandomState(seed),
	)
	if err := km.Fit(X, nil); err != nil {
		return nil, errors.Wrap(err, "GaussianMixture: kmeans initialization failed")
	}
	resp := mat.NewDense(rows, gm.nComponents, nil)
	for i, l := range km.Labels() {
		resp.Set(i, l, 1)
	}

	st := &emState{lowerBound: math.Inf(-1)}
	st.weights, st.means, st.covariances = gm.mStep(X, resp)
	if err := st.checkParams(0); err != nil {
		return nil, err
	}

	for iter := 1; iter <= gm.maxIter; iter++ {
		prev := st.lowerBound

		logProbNorm, logResp := eStep(X, st.means, st.covariances, st.weights)
		expInPlace(logResp)
		st.weights, st.means, st.covariances = gm.mStep(X, logResp)
		if err := st.checkParams(iter); err != nil {
			return nil, err
		}

		st.lowerBound = logProbNorm
		st.nIter = iter
		if err := errors.CheckScalar("GaussianMixture.lowerBound", logProbNorm, iter); err != nil {
			return nil, err
		}
		if math.Abs(st.lowerBound-prev) < gm.tol {
			st.converged = true
			break
		}
	}
	return st, nil
}

// checkParams はMステップ後の平均と共分散がすべて有限であることを確認する
func (st *emState) checkParams(iter int) error {
	if err := errors.CheckNumericalStability("GaussianMixture.means", st.means.RawMatrix().Data, iter); err != nil {
		return err
	}
	return errors.CheckNumericalStability("GaussianMixture.covariances", st.covariances.RawMatrix().Data, iter)
}

// mStep は責任度から重み・平均・対角共分散を推定する
func (gm *GaussianMixture) mStep(X mat.Matrix, resp *mat.Dense) ([]float64, *mat.Dense, *mat.Dense) {
	rows, cols := X.Dims()
	k := gm.nComponents

	// nk = Σ_n resp[n,k] + 10*eps（ゼロ除算防止）
	const eps = 10 * 2.220446049250313e-16
	nk := make([]float64, k)
	for c := 0; c < k; c++ {
		nk[c] = floats.Sum(mat.Col(nil, c, resp)) + eps
	}

	means := mat.NewDense(k, cols, nil)
	means.Mul(resp.T(), X)

	var sq mat.Dense
	sq.MulElem(X, X)
	avgX2 := mat.NewDense(k, cols, nil)
	avgX2.Mul(resp.T(), &sq)

	covariances := mat.NewDense(k, cols, nil)
	for c := 0; c < k; c++ {
		for j := 0; j < cols; j++ {
			mu := means.At(c, j) / nk[c]
			means.Set(c, j, mu)
			v := avgX2.At(c, j)/nk[c] - mu*mu + gm.regCovar
			covariances.Set(c, j, math.Max(v, gm.regCovar))
		}
	}

	weights := make([]float64, k)
	for c := range weights {
		weights[c] = nk[c] / float64(rows)
	}
	return weights, means, covariances
}

// eStep は平均対数尤度と対数責任度（n×k）を返す
func eStep(X mat.Matrix, means, covariances *mat.Dense, weights []float64) (float64, *mat.Dense) {
	weighted := weightedLogProb(X, means, covariances, weights)
	rows, k := weighted.Dims()

	norms := make([]float64, rows)
	parallel.ParallelizeWithThreshold(rows, eStepParallelThreshold, func(start, end int) {
		row := make([]float64, k)
		for i := start; i < end; i++ {
			mat.Row(row, i, weighted)
			norms[i] = floats.LogSumExp(row)
			for c := 0; c < k; c++ {
				weighted.Set(i, c, row[c]-norms[i])
			}
		}
	})
	return floats.Sum(norms) / float64(rows), weighted
}

// weightedLogProb は log p(x|k) + log π_k を n×k 行列で返す
func weightedLogProb(X mat.Matrix, means, covariances *mat.Dense, weights []float64) *mat.Dense {
	rows, cols := X.Dims()
	k, _ := means.Dims()

	// 精度のコレスキー因子 1/sqrt(var) の対数和
	logDet := make([]float64, k)
	for c := 0; c < k; c++ {
		for j := 0; j < cols; j++ {
			logDet[c] -= 0.5 * math.Log(covariances.At(c, j))
		}
	}

	out := mat.NewDense(rows, k, nil)
	parallel.ParallelizeWithThreshold(rows, eStepParallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for c := 0; c < k; c++ {
				var maha float64
				for j := 0; j < cols; j++ {
					d := X.At(i, j) - means.At(c, j)
					maha += d * d / covariances.At(c, j)
				}
				out.Set(i, c, -0.5*(float64(cols)*log2Pi+maha)+logDet[c]+math.Log(weights[c]))
			}
		}
	})
	return out
}

func expInPlace(m *mat.Dense) {
	m.Apply(func(_, _ int, v float64) float64 { return math.Exp(v) }, m)
}

func (gm *GaussianMixture) checkPredict(op string, X mat.Matrix) error {
	if !gm.IsFitted() {
		return errors.NewNotFittedError("GaussianMixture", op)
	}
	if _, cols := X.Dims(); cols != gm.nFeatures_ {
		return errors.NewDimensionError("GaussianMixture."+op, gm.nFeatures_, cols, 1)
	}
	return nil
}

// PredictProba は各サンプルの成分ごとの事後確率（n×k）を返す
func (gm *GaussianMixture) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := gm.checkPredict("PredictProba", X); err != nil {
		return nil, err
	}
	_, logResp := eStep(X, gm.means_, gm.covariances_, gm.weights_)
	expInPlace(logResp)
	return logResp, nil
}

// Predict は事後確率が最大の成分ラベルを n×1 行列で返す
func (gm *GaussianMixture) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := gm.checkPredict("Predict", X); err != nil {
		return nil, err
	}
	weighted := weightedLogProb(X, gm.means_, gm.covariances_, gm.weights_)
	rows, _ := weighted.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, float64(floats.MaxIdx(weighted.RawRowView(i))))
	}
	return out, nil
}

// Score はサンプルあたりの平均対数尤度を返す。y は無視される。
func (gm *GaussianMixture) Score(X, _ mat.Matrix) (float64, error) {
	if err := gm.checkPredict("Score", X); err != nil {
		return 0, err
	}
	ll, _ := eStep(X, gm.means_, gm.covariances_, gm.weights_)
	return ll, nil
}

// Means は成分ごとの平均（k×d）のコピーを返す
func (gm *GaussianMixture) Means() *mat.Dense {
	if gm.means_ == nil {
		return nil
	}
	return mat.DenseCopyOf(gm.means_)
}

// Covariances は成分ごとの対角共分散（k×d）のコピーを返す
func (gm *GaussianMixture) Covariances() *mat.Dense {
	if gm.covariances_ == nil {
		return nil
	}
	return mat.DenseCopyOf(gm.covariances_)
}

// Weights は混合重みのコピーを返す
func (gm *GaussianMixture) Weights() []float64 { return append([]float64(nil), gm.weights_...) }

// Converged は最良の試行が収束したかどうかを返す
func (gm *GaussianMixture) Converged() bool { return gm.converged_ }

// NIter は最良の試行のEM反復回数を返す
func (gm *GaussianMixture) NIter() int { return gm.nIter_ }

// LowerBound は最良の試行の対数尤度下界を返す
func (gm *GaussianMixture) LowerBound() float64 { return gm.lowerBound_ }

var (
	_ model.Estimator      = (*GaussianMixture)(nil)
	_ model.ProbaPredictor = (*GaussianMixture)(nil)
	_ model.Scorer         = (*GaussianMixture)(nil)
)
