package model

import "github.com/pkg/errors"

// SGD is plain stochastic gradient descent over a fixed parameter set.
type SGD struct {
	params []*Param
	lr     float32
}

// NewSGD binds an optimizer to the parameters of m.
func NewSGD(m Parametrized, lr float64) *SGD {
	if lr <= 0 {
		lr = 0.01
	}
	return &SGD{params: m.Params(), lr: float32(lr)}
}

// ZeroGrad implements Optimizer.
func (o *SGD) ZeroGrad() {
	for _, p := range o.params {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

// Step implements Optimizer.
func (o *SGD) Step() error {
	for _, p := range o.params {
		if len(p.Grad) != len(p.Value) {
			return errors.Errorf("sgd: param %s has %d values and %d grads", p.Name, len(p.Value), len(p.Grad))
		}
		for i, g := range p.Grad {
			p.Value[i] -= o.lr * g
		}
	}
	return nil
}
