package model

import (
	"context"
	"fmt"

	"github.com/kiryteo/lumin/internal/tensor"
)

// #region predictor
// Predictor is a trained model: it maps an events×features matrix to an
// events×OutputDim matrix. OutputDim never changes for a given model.
type Predictor interface {
	Predict(ctx context.Context, inputs tensor.Matrix) (tensor.Matrix, error)
	OutputDim() int
}

// Loader resolves a model reference to a predictor.
type Loader interface {
	Load(ctx context.Context, ref string) (Predictor, error)
}

// #endregion predictor

// #region refs
// TrainRef names the final weights of training run modelID.
func TrainRef(modelID int) string {
	return fmt.Sprintf("train_%d", modelID)
}

// CycleRef names snapshot cycle c of training run modelID.
func CycleRef(modelID, cycle int) string {
	return fmt.Sprintf("%d_cycle_%d", modelID, cycle)
}

// #endregion refs
