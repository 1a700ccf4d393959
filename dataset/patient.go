// Package dataset defines the patient records consumed by the classifier.
//
// A Patient is a bag of single-cell feature vectors (rows of Cells) with one
// outcome: a class index for classification or a real target for regression.
// Cell matrices are read-only once loaded; nothing in CloudPred mutates them.
package dataset

import (
	"fmt"
	"math"

	"github.com/ppabba101/CloudPred/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MaxClasses bounds the number of outcome classes. Larger labels would size
// the polynomial layer from a typo in the label column.
const MaxClasses = 1024

// Patient is one labelled bag of cells.
type Patient struct {
	ID    string
	Cells mat.Matrix // rows = cells, columns = features
	Y     float64
	Extra map[string]any
}

// Split is an ordered collection of patients (train, valid or test).
type Split []Patient

// Features returns the feature dimensionality of the split, or 0 when empty.
func (s Split) Features() int {
	if len(s) == 0 || s[0].Cells == nil {
		return 0
	}
	_, c := s[0].Cells.Dims()
	return c
}

// NumCells returns the total number of cells over all patients.
func (s Split) NumCells() int {
	n := 0
	for _, p := range s {
		if p.Cells != nil {
			r, _ := p.Cells.Dims()
			n += r
		}
	}
	return n
}

// Validate checks that every patient has cells and that all patients share
// the same feature dimensionality. In classification mode labels must be
// non-negative integers below MaxClasses.
func (s Split) Validate(regression bool) error {
	d := s.Features()
	for i, p := range s {
		if p.Cells == nil {
			return errors.NewValueError("Split.Validate", fmt.Sprintf("patient %d (%s) has no cell matrix", i, p.ID))
		}
		r, c := p.Cells.Dims()
		if r == 0 {
			return errors.NewValueError("Split.Validate", fmt.Sprintf("patient %d (%s) has no cells", i, p.ID))
		}
		if c != d {
			return errors.NewDimensionError("Split.Validate", d, c, 1)
		}
		if !errors.IsFinite(p.Y) {
			return errors.NewValidationError("y", "must be finite", p.Y)
		}
		if !regression && (p.Y < 0 || p.Y != math.Trunc(p.Y)) {
			return errors.NewValidationError("y", "class labels must be non-negative integers", p.Y)
		}
		if !regression && p.Y >= MaxClasses {
			return errors.NewValidationError("y", fmt.Sprintf("class labels must be below %d", MaxClasses), p.Y)
		}
	}
	return nil
}

// Pool stacks the cells of every patient into one matrix, in patient order.
func (s Split) Pool() (*mat.Dense, error) {
	n, d := s.NumCells(), s.Features()
	if n == 0 || d == 0 {
		return nil, errors.NewModelError("Split.Pool", "no cells to pool", errors.ErrEmptyData)
	}

	pooled := mat.NewDense(n, d, nil)
	row := 0
	for _, p := range s {
		r, c := p.Cells.Dims()
		if c != d {
			return nil, errors.NewDimensionError("Split.Pool", d, c, 1)
		}
		pooled.Slice(row, row+r, 0, d).(*mat.Dense).Copy(p.Cells)
		row += r
	}
	return pooled, nil
}

// Labels returns the outcomes as class indices.
func (s Split) Labels() []int {
	out := make([]int, len(s))
	for i, p := range s {
		out[i] = int(p.Y)
	}
	return out
}

// Targets returns the outcomes as real values.
func (s Split) Targets() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Y
	}
	return out
}

// NumClasses returns max label + 1 over the given splits, and at least 2 so
// there is always one non-reference class. The result never exceeds
// MaxClasses.
func NumClasses(splits ...Split) int {
	n := 2
	for _, s := range splits {
		for _, p := range s {
			if k := int(math.Min(p.Y, MaxClasses-1)) + 1; k > n {
				n = k
			}
		}
	}
	return n
}
