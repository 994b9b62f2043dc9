package model

import (
	"context"
	"fmt"
	"math"

	"github.com/kiryteo/lumin/internal/tensor"
)

// Linear is an affine model y = xW + b with an optional sigmoid head.
// Weights is features×outputs, row-major.
type Linear struct {
	Features int       `json:"features"`
	Outputs  int       `json:"outputs"`
	Weights  []float64 `json:"weights"`
	Bias     []float64 `json:"bias"`
	Sigmoid  bool      `json:"sigmoid,omitempty"`
}

// NewLinear validates the parameter shapes.
func NewLinear(features, outputs int, weights, bias []float64, sigmoid bool) (*Linear, error) {
	l := &Linear{Features: features, Outputs: outputs, Weights: weights, Bias: bias, Sigmoid: sigmoid}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Linear) validate() error {
	if l.Features <= 0 || l.Outputs <= 0 {
		return fmt.Errorf("linear model needs positive shape, got %dx%d", l.Features, l.Outputs)
	}
	if len(l.Weights) != l.Features*l.Outputs {
		return fmt.Errorf("linear model: %d weights for %dx%d", len(l.Weights), l.Features, l.Outputs)
	}
	if len(l.Bias) != l.Outputs {
		return fmt.Errorf("linear model: %d biases for %d outputs", len(l.Bias), l.Outputs)
	}
	return nil
}

func (l *Linear) OutputDim() int { return l.Outputs }

func (l *Linear) Predict(ctx context.Context, inputs tensor.Matrix) (tensor.Matrix, error) {
	if inputs.Cols != l.Features {
		return tensor.Matrix{}, fmt.Errorf("linear model expects %d features, got %d", l.Features, inputs.Cols)
	}
	if err := ctx.Err(); err != nil {
		return tensor.Matrix{}, err
	}
	out := tensor.New(inputs.Rows, l.Outputs)
	for i := 0; i < inputs.Rows; i++ {
		x := inputs.Row(i)
		y := out.Row(i)
		copy(y, l.Bias)
		for f, xv := range x {
			w := l.Weights[f*l.Outputs : (f+1)*l.Outputs]
			for o := range y {
				y[o] += xv * w[o]
			}
		}
		if l.Sigmoid {
			for o := range y {
				y[o] = 1 / (1 + math.Exp(-y[o]))
			}
		}
	}
	return out, nil
}
