// Package cluster はクラスタリングアルゴリズムを提供する。
// 混合ガウスモデルの初期化に使う KMeans を含む。
package cluster

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ppabba101/CloudPred/core/model"
	"github.com/ppabba101/CloudPred/core/parallel"
	"github.com/ppabba101/CloudPred/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// 並列処理の閾値（この値以下のサンプル数では逐次処理）
const assignParallelThreshold = 2000

// KMeans はLloydアルゴリズムによるK-meansクラスタリング
// scikit-learnのKMeansと互換性を持つ（k-means++初期化、n_init回の再試行）
type KMeans struct {
	model.BaseEstimator

	// ハイパーパラメータ
	nClusters   int     // クラスタ数
	init        string  // 初期化方法: "k-means++", "random"
	maxIter     int     // 最大イテレーション数
	nInit       int     // 異なる初期化での実行回数
	tol         float64 // 中心移動量に対する相対許容誤差
	randomState int64   // 乱数シード（負なら時刻から生成）

	// 学習パラメータ
	clusterCenters_ [][]float64 // クラスタ中心（nClusters x nFeatures）
	labels_         []int       // 各サンプルのクラスタラベル
	inertia_        float64     // クラスタ内平方和誤差
	nIter_          int         // 実行されたイテレーション数

	mu         sync.RWMutex
	rng        *rand.Rand
	nFeatures_ int
}

// KMeansOption はKMeansの設定オプション
type KMeansOption func(*KMeans)

// NewKMeans は新しいKMeansを作成
func NewKMeans(options ...KMeansOption) *KMeans {
	km := &KMeans{
		nClusters:   8,
		init:        "k-means++",
		maxIter:     300,
		nInit:       1,
		tol:         1e-4,
		randomState: -1,
	}
	for _, opt := range options {
		opt(km)
	}

	if km.randomState >= 0 {
		km.rng = rand.New(rand.NewSource(km.randomState))
	} else {
		km.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return km
}

// WithKMeansNClusters はクラスタ数を設定
func WithKMeansNClusters(n int) KMeansOption {
	return func(km *KMeans) {
		km.nClusters = n
	}
}

// WithKMeansInit は初期化方法を設定
func WithKMeansInit(init string) KMeansOption {
	return func(km *KMeans) {
		km.init = init
	}
}

// WithKMeansMaxIter は最大イテレーション数を設定
func WithKMeansMaxIter(maxIter int) KMeansOption {
	return func(km *KMeans) {
		km.maxIter = maxIter
	}
}

// WithKMeansNInit は初期化の試行回数を設定
func WithKMeansNInit(nInit int) KMeansOption {
	return func(km *KMeans) {
		km.nInit = nInit
	}
}

// WithKMeansTol は収束判定の許容誤差を設定
func WithKMeansTol(tol float64) KMeansOption {
	return func(km *KMeans) {
		km.tol = tol
	}
}

// WithKMeansRandomState は乱数シードを設定
func WithKMeansRandomState(seed int64) KMeansOption {
	return func(km *KMeans) {
		km.randomState = seed
	}
}

// Fit はモデルを訓練する。y は無視される。
func (km *KMeans) Fit(X, _ mat.Matrix) error {
	km.mu.Lock()
	defer km.mu.Unlock()

	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("KMeans.Fit", "empty data", errors.ErrEmptyData)
	}
	if km.nClusters < 1 {
		return errors.NewValidationError("n_clusters", "must be positive", km.nClusters)
	}
	if rows < km.nClusters {
		return errors.NewValueError("KMeans.Fit",
			fmt.Sprintf("n_samples=%d should be >= n_clusters=%d", rows, km.nClusters))
	}
	km.nFeatures_ = cols

	data := toRows(X)
	tol := km.tol * meanVariance(data, cols)

	// 複数回実行して慣性が最小の結果を選択
	bestInertia := math.Inf(1)
	for run := 0; run < max(km.nInit, 1); run++ {
		centers, labels, inertia, nIter := km.fitSingleRun(data, tol)
		if inertia < bestInertia {
			bestInertia = inertia
			km.clusterCenters_ = centers
			km.labels_ = labels
			km.nIter_ = nIter
		}
	}
	km.inertia_ = bestInertia

	km.SetFitted()
	return nil
}

// fitSingleRun は単一回のLloyd反復を実行
func (km *KMeans) fitSingleRun(data [][]float64, tol float64) ([][]float64, []int, float64, int) {
	cols := len(data[0])
	centers := km.initializeCenters(data)
	labels := make([]int, len(data))

	nIter := 0
	for iter := 1; iter <= km.maxIter; iter++ {
		nIter = iter
		assignLabels(data, centers, labels)

		// 中心の再計算
		newCenters := make([][]float64, km.nClusters)
		counts := make([]int, km.nClusters)
		for c := range newCenters {
			newCenters[c] = make([]float64, cols)
		}
		for i, row := range data {
			floats.Add(newCenters[labels[i]], row)
			counts[labels[i]]++
		}
		for c := range newCenters {
			if counts[c] == 0 {
				// 空クラスタは現在の中心から最も遠いサンプルへ移す
				copy(newCenters[c], data[farthestSample(data, centers, labels)])
				continue
			}
			floats.Scale(1/float64(counts[c]), newCenters[c])
		}

		// 中心移動量の二乗和で収束判定
		shift := 0.0
		for c := range centers {
			d := floats.Distance(centers[c], newCenters[c], 2)
			shift += d * d
		}
		centers = newCenters
		if shift <= tol {
			break
		}
	}

	// 最終中心でラベルを揃える
	assignLabels(data, centers, labels)
	return centers, labels, inertia(data, centers, labels), nIter
}

// Predict は各サンプルの最近傍クラスタを n×1 行列で返す
func (km *KMeans) Predict(X mat.Matrix) (mat.Matrix, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()

	if !km.IsFitted() {
		return nil, errors.NewNotFittedError("KMeans", "Predict")
	}
	rows, cols := X.Dims()
	if cols != km.nFeatures_ {
		return nil, errors.NewDimensionError("KMeans.Predict", km.nFeatures_, cols, 1)
	}

	labels := make([]int, rows)
	assignLabels(toRows(X), km.clusterCenters_, labels)

	predictions := mat.NewDense(rows, 1, nil)
	for i, l := range labels {
		predictions.Set(i, 0, float64(l))
	}
	return predictions, nil
}

// FitPredict は学習と予測を同時に行う
func (km *KMeans) FitPredict(X, y mat.Matrix) (mat.Matrix, error) {
	if err := km.Fit(X, y); err != nil {
		return nil, err
	}
	return km.Predict(X)
}

// ClusterCenters は学習されたクラスタ中心を返す
func (km *KMeans) ClusterCenters() [][]float64 {
	km.mu.RLock()
	defer km.mu.RUnlock()

	centers := make([][]float64, len(km.clusterCenters_))
	for i := range km.clusterCenters_ {
		centers[i] = append([]float64(nil), km.clusterCenters_[i]...)
	}
	return centers
}

// Labels は学習データのクラスタラベルを返す
func (km *KMeans) Labels() []int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	if km.labels_ == nil {
		return nil
	}
	return append([]int(nil), km.labels_...)
}

// Inertia は慣性（クラスタ内平方和誤差）を返す
func (km *KMeans) Inertia() float64 {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.inertia_
}

// NIter は最良の試行で実行されたイテレーション数を返す
func (km *KMeans) NIter() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.nIter_
}

// 内部ヘルパー

// initializeCenters はクラスタ中心を初期化
func (km *KMeans) initializeCenters(data [][]float64) [][]float64 {
	if km.init == "random" {
		centers := make([][]float64, km.nClusters)
		for c, idx := range km.rng.Perm(len(data))[:km.nClusters] {
			centers[c] = append([]float64(nil), data[idx]...)
		}
		return centers
	}
	// デフォルトはk-means++
	return km.initKMeansPlusPlus(data)
}

// initKMeansPlusPlus はk-means++初期化を実行
func (km *KMeans) initKMeansPlusPlus(data [][]float64) [][]float64 {
	rows := len(data)
	centers := make([][]float64, 0, km.nClusters)

	// 最初の中心はランダムに選択
	centers = append(centers, append([]float64(nil), data[km.rng.Intn(rows)]...))

	// 各サンプルから最近傍中心までの距離の二乗
	minSq := make([]float64, rows)
	for i, row := range data {
		d := floats.Distance(row, centers[0], 2)
		minSq[i] = d * d
	}

	for c := 1; c < km.nClusters; c++ {
		total := floats.Sum(minSq)
		selected := 0
		if total > 0 {
			// 距離の二乗に比例した確率でサンプルを選択
			target := km.rng.Float64() * total
			cumSum := 0.0
			for i, d := range minSq {
				cumSum += d
				if d > 0 && cumSum >= target {
					selected = i
					break
				}
			}
		} else {
			selected = km.rng.Intn(rows)
		}

		center := append([]float64(nil), data[selected]...)
		centers = append(centers, center)
		for i, row := range data {
			d := floats.Distance(row, center, 2)
			minSq[i] = math.Min(minSq[i], d*d)
		}
	}
	return centers
}

// assignLabels は各サンプルを最近傍クラスタに割り当てる
func assignLabels(data, centers [][]float64, labels []int) {
	parallel.ParallelizeWithThreshold(len(data), assignParallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			labels[i] = findNearestCluster(data[i], centers)
		}
	})
}

// findNearestCluster は最近傍クラスタを検索
func findNearestCluster(sample []float64, centers [][]float64) int {
	minDist := math.Inf(1)
	nearest := 0
	for c, center := range centers {
		if dist := floats.Distance(sample, center, 2); dist < minDist {
			minDist = dist
			nearest = c
		}
	}
	return nearest
}

func farthestSample(data, centers [][]float64, labels []int) int {
	far, farDist := 0, -1.0
	for i, row := range data {
		if d := floats.Distance(row, centers[labels[i]], 2); d > farDist {
			far, farDist = i, d
		}
	}
	return far
}

// inertia は慣性（クラスタ内平方和誤差）を計算
func inertia(data, centers [][]float64, labels []int) float64 {
	total := 0.0
	for i, row := range data {
		d := floats.Distance(row, centers[labels[i]], 2)
		total += d * d
	}
	return total
}

// meanVariance は特徴量ごとの分散の平均（tol のスケール）
func meanVariance(data [][]float64, cols int) float64 {
	col := make([]float64, len(data))
	sum := 0.0
	for j := 0; j < cols; j++ {
		for i, row := range data {
			col[i] = row[j]
		}
		_, v := stat.PopMeanVariance(col, nil)
		sum += v
	}
	return sum / float64(cols)
}

func toRows(X mat.Matrix) [][]float64 {
	rows, _ := X.Dims()
	data := make([][]float64, rows)
	for i := range data {
		data[i] = mat.Row(nil, i, X)
	}
	return data
}

var _ model.Predictor = (*KMeans)(nil)
