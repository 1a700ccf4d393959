package density

import (
	"math"

	"github.com/ppabba101/CloudPred/core/parallel"
	"github.com/ppabba101/CloudPred/dataset"
	"github.com/ppabba101/CloudPred/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// responsibilityParallelThreshold は逐次処理するセル数の上限
const responsibilityParallelThreshold = 4096

// Mixture combines Gaussian components with non-negative mixing weights.
// Weights need not sum to one; responsibilities are normalized per cell.
type Mixture struct {
	Components []*Gaussian
	Weights    []float64
}

// NewMixture validates that all components share one dimensionality and that
// weights are non-negative with at least one positive entry.
func NewMixture(components []*Gaussian, weights []float64) (*Mixture, error) {
	if len(components) == 0 {
		return nil, errors.NewValueError("NewMixture", "at least one component is required")
	}
	if len(weights) != len(components) {
		return nil, errors.NewDimensionError("NewMixture", len(components), len(weights), 1)
	}
	d := components[0].Dim()
	for _, g := range components[1:] {
		if g.Dim() != d {
			return nil, errors.NewDimensionError("NewMixture", d, g.Dim(), 1)
		}
	}

	positive := false
	for _, w := range weights {
		if w < 0 || !errors.IsFinite(w) {
			return nil, errors.NewValidationError("weights", "must be finite and non-negative", w)
		}
		positive = positive || w > 0
	}
	if !positive {
		return nil, errors.NewValidationError("weights", "at least one weight must be positive", weights)
	}

	return &Mixture{
		Components: components,
		Weights:    append([]float64(nil), weights...),
	}, nil
}

// MixtureFromMoments builds a mixture from fitted per-component means and
// diagonal covariances (both centers×D), using 1/covariance as inverse variance.
func MixtureFromMoments(means, covariances mat.Matrix, weights []float64) (*Mixture, error) {
	k, d := means.Dims()
	if kc, dc := covariances.Dims(); kc != k || dc != d {
		return nil, errors.NewDimensionError("MixtureFromMoments", k, kc, 0)
	}

	components := make([]*Gaussian, k)
	for c := 0; c < k; c++ {
		mean := mat.Row(nil, c, means)
		invVar := mat.Row(nil, c, covariances)
		for j, v := range invVar {
			invVar[j] = 1 / v
		}
		components[c] = &Gaussian{Mean: mean, InvVar: invVar}
	}
	return NewMixture(components, weights)
}

// Centers returns the number of components.
func (m *Mixture) Centers() int { return len(m.Components) }

// Dim returns the feature dimensionality shared by all components.
func (m *Mixture) Dim() int { return m.Components[0].Dim() }

// Responsibilities returns the N×centers matrix of per-cell posterior
// cluster probabilities. Each row sums to one.
func (m *Mixture) Responsibilities(X mat.Matrix) (*mat.Dense, error) {
	n, _ := X.Dims()
	if n == 0 {
		return nil, errors.NewModelError("Mixture.Responsibilities", "empty batch", errors.ErrEmptyData)
	}
	k := m.Centers()

	// logp: centers × N
	logp := make([][]float64, k)
	for c, g := range m.Components {
		lp, err := g.LogProb(X)
		if err != nil {
			return nil, err
		}
		logp[c] = lp
	}

	logW := make([]float64, k)
	for c, w := range m.Weights {
		logW[c] = math.Log(w) // w == 0 gives -Inf and a zero responsibility
	}

	resp := mat.NewDense(n, k, nil)
	parallel.ParallelizeWithThreshold(n, responsibilityParallelThreshold, func(start, end int) {
		row := make([]float64, k)
		for i := start; i < end; i++ {
			// 最大値を引いてからexpを取る（オーバーフロー防止）
			for c := 0; c < k; c++ {
				row[c] = logp[c][i] + logW[c]
			}
			shift := floats.Max(row)
			for c := 0; c < k; c++ {
				row[c] = math.Exp(row[c] - shift)
			}
			floats.Scale(1/floats.Sum(row), row)
			resp.SetRow(i, row)
		}
	})
	return resp, nil
}

// Signature averages the responsibilities over the cells of one patient.
// The result has length Centers, lies in [0, 1] and does not depend on the
// number or order of cells.
func (m *Mixture) Signature(X mat.Matrix) ([]float64, error) {
	resp, err := m.Responsibilities(X)
	if err != nil {
		return nil, err
	}
	n, k := resp.Dims()
	sig := make([]float64, k)
	for c := 0; c < k; c++ {
		sig[c] = floats.Sum(mat.Col(nil, c, resp)) / float64(n)
	}
	return sig, nil
}

// Signatures stacks one signature per patient into a patients×centers matrix.
func (m *Mixture) Signatures(split dataset.Split) (*mat.Dense, error) {
	if len(split) == 0 {
		return nil, errors.NewModelError("Mixture.Signatures", "empty split", errors.ErrEmptyData)
	}
	out := mat.NewDense(len(split), m.Centers(), nil)
	for i, p := range split {
		sig, err := m.Signature(p.Cells)
		if err != nil {
			return nil, errors.Wrapf(err, "patient %d (%s)", i, p.ID)
		}
		out.SetRow(i, sig)
	}
	return out, nil
}

// Clone returns a deep copy.
func (m *Mixture) Clone() *Mixture {
	components := make([]*Gaussian, len(m.Components))
	for i, g := range m.Components {
		components[i] = g.Clone()
	}
	return &Mixture{
		Components: components,
		Weights:    append([]float64(nil), m.Weights...),
	}
}
