package density

import (
	"github.com/ppabba101/CloudPred/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PolynomialLayer holds one Polynomial per non-reference class. Its output
// has States columns; column 0 belongs to the reference class and is always
// zero.
type PolynomialLayer struct {
	States  int
	Centers int
	Degree  int
	Polys   []*Polynomial
}

// LayerState is a flat deep copy of every layer parameter.
type LayerState struct {
	Params []float64
}

// NewPolynomialLayer returns a zero-initialized layer with states-1
// polynomials.
func NewPolynomialLayer(states, centers, degree int) (*PolynomialLayer, error) {
	if states < 2 {
		return nil, errors.NewValidationError("states", "must be >= 2", states)
	}
	polys := make([]*Polynomial, states-1)
	for k := range polys {
		p, err := NewPolynomial(degree, centers)
		if err != nil {
			return nil, err
		}
		polys[k] = p
	}
	return &PolynomialLayer{States: states, Centers: centers, Degree: degree, Polys: polys}, nil
}

// Forward returns the N×States score matrix for signatures X.
func (l *PolynomialLayer) Forward(X mat.Matrix) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if cols != l.Centers {
		return nil, errors.NewDimensionError("PolynomialLayer.Forward", l.Centers, cols, 1)
	}
	if rows == 0 {
		return nil, errors.NewModelError("PolynomialLayer.Forward", "empty batch", errors.ErrEmptyData)
	}
	out := mat.NewDense(rows, l.States, nil)
	for k, p := range l.Polys {
		scores, err := p.Forward(X)
		if err != nil {
			return nil, err
		}
		out.SetCol(k+1, scores)
	}
	return out, nil
}

// NumParams returns the length of the flat parameter vector.
func (l *PolynomialLayer) NumParams() int {
	n := 0
	for _, p := range l.Polys {
		n += p.NumParams()
	}
	return n
}

// Params returns a flat copy of all parameters: for each polynomial in
// class order, Coef followed by Bias.
func (l *PolynomialLayer) Params() []float64 {
	out := make([]float64, 0, l.NumParams())
	for _, p := range l.Polys {
		out = append(out, p.Coef...)
		out = append(out, p.Bias)
	}
	return out
}

// SetParams writes a flat vector laid out as in Params back into the layer.
func (l *PolynomialLayer) SetParams(params []float64) error {
	if len(params) != l.NumParams() {
		return errors.NewDimensionError("PolynomialLayer.SetParams", l.NumParams(), len(params), 0)
	}
	off := 0
	for _, p := range l.Polys {
		off += copy(p.Coef, params[off:off+len(p.Coef)])
		p.Bias = params[off]
		off++
	}
	return nil
}

// Backward returns dL/dθ in Params order given dL/dscores (N×States) for
// signatures X. The reference column of dScores is ignored.
//
//	dL/da_k[i,j] = Σ_n g[n,k] x[n,j]^(i+1)
//	dL/dc_k      = Σ_n g[n,k]
func (l *PolynomialLayer) Backward(X, dScores mat.Matrix) ([]float64, error) {
	rows, cols := X.Dims()
	if cols != l.Centers {
		return nil, errors.NewDimensionError("PolynomialLayer.Backward", l.Centers, cols, 1)
	}
	if gr, gc := dScores.Dims(); gr != rows || gc != l.States {
		return nil, errors.NewDimensionError("PolynomialLayer.Backward", l.States, gc, 1)
	}

	grad := make([]float64, l.NumParams())
	off := 0
	for k, p := range l.Polys {
		for n := 0; n < rows; n++ {
			g := dScores.At(n, k+1)
			if g == 0 {
				continue
			}
			for j := 0; j < cols; j++ {
				x := X.At(n, j)
				pow := 1.0
				for i := 0; i < p.Degree; i++ {
					pow *= x
					grad[off+i*cols+j] += g * pow
				}
			}
			grad[off+len(p.Coef)] += g
		}
		off += p.NumParams()
	}
	return grad, nil
}

// CoefMask marks which entries of the flat parameter vector are polynomial
// coefficients (true) rather than biases (false).
func (l *PolynomialLayer) CoefMask() []bool {
	mask := make([]bool, 0, l.NumParams())
	for _, p := range l.Polys {
		for range p.Coef {
			mask = append(mask, true)
		}
		mask = append(mask, false)
	}
	return mask
}

// Snapshot returns a deep copy of the current parameters.
func (l *PolynomialLayer) Snapshot() LayerState {
	return LayerState{Params: l.Params()}
}

// Restore copies a snapshot back into the layer in place.
func (l *PolynomialLayer) Restore(s LayerState) error {
	return l.SetParams(s.Params)
}

// Clone returns a deep copy.
func (l *PolynomialLayer) Clone() *PolynomialLayer {
	c := *l
	c.Polys = make([]*Polynomial, len(l.Polys))
	for k, p := range l.Polys {
		c.Polys[k] = p.Clone()
	}
	return &c
}
