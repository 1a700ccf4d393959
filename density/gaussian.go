// Package density implements the differentiable pieces of the classifier:
// diagonal Gaussian components, the mixture that turns a bag of cells into a
// cluster-abundance signature, and the polynomial layer that scores
// signatures per outcome class.
//
// All types are plain value holders with exported parameter buffers so they
// can be cloned, snapshotted and gob-encoded.
package density

import (
	"math"

	"github.com/ppabba101/CloudPred/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// InvVarFloor is the lower bound applied to |inverse variance| before use.
const InvVarFloor = 1e-5

var log2Pi = math.Log(2 * math.Pi)

// Gaussian is one diagonal-covariance component parameterized by its mean
// and inverse variance. InvVar may hold any sign; only max(|v|, InvVarFloor)
// is ever used, so v and -v behave identically.
type Gaussian struct {
	Mean   []float64
	InvVar []float64
}

// NewGaussian copies mean and invVar into a new component.
func NewGaussian(mean, invVar []float64) (*Gaussian, error) {
	if len(mean) == 0 {
		return nil, errors.NewValueError("NewGaussian", "mean must not be empty")
	}
	if len(invVar) != len(mean) {
		return nil, errors.NewDimensionError("NewGaussian", len(mean), len(invVar), 1)
	}
	return &Gaussian{
		Mean:   append([]float64(nil), mean...),
		InvVar: append([]float64(nil), invVar...),
	}, nil
}

// Dim returns the feature dimensionality D.
func (g *Gaussian) Dim() int { return len(g.Mean) }

// EffectiveInvVar returns max(|v|, InvVarFloor) elementwise. v and -v give
// the same density, so a stored inverse variance may carry either sign.
func (g *Gaussian) EffectiveInvVar() []float64 {
	out := make([]float64, len(g.InvVar))
	for j, v := range g.InvVar {
		out[j] = effectiveInvVar(v)
	}
	return out
}

func effectiveInvVar(v float64) float64 {
	return math.Max(math.Abs(v), InvVarFloor)
}

// LogProb returns log N(x | mean, diag(1/v')) for every row x of X:
//
//	-0.5 * (D*log(2π) - Σ log v' + Σ (μ-x)² v')
func (g *Gaussian) LogProb(X mat.Matrix) ([]float64, error) {
	rows, cols := X.Dims()
	if cols != g.Dim() {
		return nil, errors.NewDimensionError("Gaussian.LogProb", g.Dim(), cols, 1)
	}

	iv := g.EffectiveInvVar()
	var logDet float64
	for _, v := range iv {
		logDet += math.Log(v)
	}
	base := float64(cols)*log2Pi - logDet

	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		var maha float64
		for j := 0; j < cols; j++ {
			d := g.Mean[j] - X.At(i, j)
			maha += d * d * iv[j]
		}
		out[i] = -0.5 * (base + maha)
	}
	return out, nil
}

// Clone returns a deep copy.
func (g *Gaussian) Clone() *Gaussian {
	return &Gaussian{
		Mean:   append([]float64(nil), g.Mean...),
		InvVar: append([]float64(nil), g.InvVar...),
	}
}
