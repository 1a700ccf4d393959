package density

import (
	"github.com/ppabba101/CloudPred/dataset"
	"github.com/ppabba101/CloudPred/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Classifier composes a Mixture with a PolynomialLayer: cells → signature →
// per-class scores.
type Classifier struct {
	Mixture *Mixture
	Layer   *PolynomialLayer
}

// NewClassifier builds a classifier with a zero-initialized layer of the
// given number of states.
func NewClassifier(m *Mixture, states, degree int) (*Classifier, error) {
	if m == nil {
		return nil, errors.NewValueError("NewClassifier", "mixture is required")
	}
	layer, err := NewPolynomialLayer(states, m.Centers(), degree)
	if err != nil {
		return nil, err
	}
	return &Classifier{Mixture: m, Layer: layer}, nil
}

// States returns the number of outcome classes scored.
func (c *Classifier) States() int { return c.Layer.States }

// Signatures returns the patients×centers signature matrix for split.
func (c *Classifier) Signatures(split dataset.Split) (*mat.Dense, error) {
	return c.Mixture.Signatures(split)
}

// Scores returns the patients×States score matrix for split.
func (c *Classifier) Scores(split dataset.Split) (*mat.Dense, error) {
	sig, err := c.Signatures(split)
	if err != nil {
		return nil, err
	}
	return c.Layer.Forward(sig)
}

// Clone returns a deep copy sharing no parameter buffers with c.
func (c *Classifier) Clone() *Classifier {
	return &Classifier{Mixture: c.Mixture.Clone(), Layer: c.Layer.Clone()}
}
