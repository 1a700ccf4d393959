package optim

import "github.com/ppabba101/CloudPred/pkg/errors"

// SGD is gradient descent with classical momentum:
//
//	v = momentum*v + g
//	w = w - lr*v
//
// The velocity starts at zero and is sized on the first Step.
type SGD struct {
	LearningRate float64
	Momentum     float64
	velocity     []float64
}

// NewSGD returns an optimizer with zero velocity.
func NewSGD(lr, momentum float64) *SGD {
	return &SGD{LearningRate: lr, Momentum: momentum}
}

// Step updates weights in place.
func (o *SGD) Step(weights, grads []float64) error {
	if len(weights) != len(grads) {
		return errors.NewDimensionError("SGD.Step", len(weights), len(grads), 0)
	}
	if o.velocity == nil {
		o.velocity = make([]float64, len(weights))
	}
	if len(o.velocity) != len(weights) {
		return errors.NewDimensionError("SGD.Step", len(o.velocity), len(weights), 0)
	}
	for i := range weights {
		o.velocity[i] = o.Momentum*o.velocity[i] + grads[i]
		weights[i] -= o.LearningRate * o.velocity[i]
	}
	return nil
}

// Reset clears the velocity.
func (o *SGD) Reset() { o.velocity = nil }
