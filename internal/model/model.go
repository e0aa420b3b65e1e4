package model

import "gorgonia.org/tensor"

// Model is a segmentation network mapping a (B,Cin,D,H,W) input to
// (B,classes,D,H,W) class scores.
type Model interface {
	Forward(input *tensor.Dense) (*tensor.Dense, error)
	// Backward accumulates parameter gradients given dLoss/dOutput for the
	// most recent training-mode Forward.
	Backward(gradOutput *tensor.Dense) error
	// SetTraining switches between training and inference behaviour.
	SetTraining(training bool)
}

// Param is a trainable buffer with its gradient.
type Param struct {
	Name  string
	Value []float32
	Grad  []float32
}

// Parametrized exposes trainable parameters to an optimizer.
type Parametrized interface {
	Params() []*Param
}

// Optimizer updates parameters from accumulated gradients.
type Optimizer interface {
	ZeroGrad()
	Step() error
}
