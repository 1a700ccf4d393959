package density

import (
	"math"

	"github.com/ppabba101/CloudPred/linear"
	"github.com/ppabba101/CloudPred/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DefaultDegree is the polynomial degree used when none is configured.
const DefaultDegree = 2

// Polynomial scores a signature x as Σ_i Σ_j a[i,j] x[j]^(i+1) + c.
// There are no cross terms between signature dimensions.
type Polynomial struct {
	Degree  int
	Centers int
	// Coef is a[i,j] stored row-major, Degree × Centers.
	Coef []float64
	Bias float64
}

// NewPolynomial returns a zero-initialized polynomial.
func NewPolynomial(degree, centers int) (*Polynomial, error) {
	if degree < 1 {
		return nil, errors.NewValidationError("degree", "must be >= 1", degree)
	}
	if centers < 1 {
		return nil, errors.NewValidationError("centers", "must be >= 1", centers)
	}
	return &Polynomial{
		Degree:  degree,
		Centers: centers,
		Coef:    make([]float64, degree*centers),
	}, nil
}

// At returns a[i,j], the coefficient of x[j]^(i+1).
func (p *Polynomial) At(i, j int) float64 { return p.Coef[i*p.Centers+j] }

// NumParams returns the number of trainable values, coefficients plus bias.
func (p *Polynomial) NumParams() int { return len(p.Coef) + 1 }

// Forward evaluates the polynomial on every row of X.
func (p *Polynomial) Forward(X mat.Matrix) ([]float64, error) {
	rows, cols := X.Dims()
	if cols != p.Centers {
		return nil, errors.NewDimensionError("Polynomial.Forward", p.Centers, cols, 1)
	}
	out := make([]float64, rows)
	for n := 0; n < rows; n++ {
		s := p.Bias
		for j := 0; j < cols; j++ {
			x := X.At(n, j)
			pow := 1.0
			for i := 0; i < p.Degree; i++ {
				pow *= x
				s += p.Coef[i*p.Centers+j] * pow
			}
		}
		out[n] = s
	}
	return out, nil
}

// design returns [x^1 .. x^Degree] per row, row-major by power then feature,
// matching the layout of Coef.
func (p *Polynomial) design(X mat.Matrix) *mat.Dense {
	rows, cols := X.Dims()
	out := mat.NewDense(rows, p.Degree*cols, nil)
	for n := 0; n < rows; n++ {
		for j := 0; j < cols; j++ {
			x := X.At(n, j)
			for i := 0; i < p.Degree; i++ {
				out.Set(n, i*cols+j, math.Pow(x, float64(i+1)))
			}
		}
	}
	return out
}

// FitLeastSquares loads the minimum-norm least-squares solution of
// [x^1..x^Degree, 1] · θ = y into Coef and Bias.
func (p *Polynomial) FitLeastSquares(X mat.Matrix, y []float64) error {
	rows, cols := X.Dims()
	if cols != p.Centers {
		return errors.NewDimensionError("Polynomial.FitLeastSquares", p.Centers, cols, 1)
	}
	if len(y) != rows {
		return errors.NewDimensionError("Polynomial.FitLeastSquares", rows, len(y), 0)
	}

	lr := linear.NewLinearRegression()
	if err := lr.Fit(p.design(X), mat.NewDense(rows, 1, y)); err != nil {
		return err
	}
	copy(p.Coef, lr.GetWeights())
	p.Bias = lr.GetIntercept()
	return nil
}

// FitLinear is the closed-form initializer for binary labels: labels {0,1}
// are mapped to {-1,1} and fitted by least squares.
func (p *Polynomial) FitLinear(X mat.Matrix, labels []int) error {
	y := make([]float64, len(labels))
	for i, l := range labels {
		switch l {
		case 0:
			y[i] = -1
		case 1:
			y[i] = 1
		default:
			return errors.NewValidationError("labels", "must be 0 or 1", l)
		}
	}
	return p.FitLeastSquares(X, y)
}

// Clone returns a deep copy.
func (p *Polynomial) Clone() *Polynomial {
	c := *p
	c.Coef = append([]float64(nil), p.Coef...)
	return &c
}
