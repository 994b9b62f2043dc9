// Package reweight adjusts stored event weights from model predictions while
// keeping each fold's total weight unchanged.
package reweight

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kiryteo/lumin/internal/ctxlog"
	"github.com/kiryteo/lumin/internal/folds"
	"github.com/kiryteo/lumin/internal/tensor"
)

var ErrNoWeights = errors.New("fold has no weights column")

// #region types
// Func maps predictions and targets of one fold to a per-event coefficient.
// A coefficient c moves the event weight w to w + scale*c*w before the fold
// is rescaled to its original total.
type Func func(preds, targets tensor.Matrix) ([]float64, error)

// Predictor is the prediction half of model.Predictor. *ensemble.Ensemble
// satisfies it.
type Predictor interface {
	Predict(ctx context.Context, inputs tensor.Matrix) (tensor.Matrix, error)
}

// Source supplies unaugmented folds. *augment.Yielder satisfies it.
type Source interface {
	Store() folds.Store
	FoldCount(ctx context.Context) (int, error)
	Fold(ctx context.Context, id int) (folds.Record, error)
}

// #endregion types

// #region fold
// Fold returns the reweighted weights column of fold foldID without writing
// it. The result has the stored column's shape and the same sum.
func Fold(ctx context.Context, src Source, foldID int, p Predictor, fn Func, scale float64) (tensor.Matrix, error) {
	rec, err := src.Fold(ctx, foldID)
	if err != nil {
		return tensor.Matrix{}, err
	}
	if len(rec.Weights.Data) == 0 {
		return tensor.Matrix{}, fmt.Errorf("fold %d: %w", foldID, ErrNoWeights)
	}

	preds, err := p.Predict(ctx, rec.Inputs)
	if err != nil {
		return tensor.Matrix{}, fmt.Errorf("fold %d: predict: %w", foldID, err)
	}
	coefs, err := fn(preds, rec.Targets)
	if err != nil {
		return tensor.Matrix{}, fmt.Errorf("fold %d: coefficients: %w", foldID, err)
	}
	if len(coefs) != len(rec.Weights.Data) {
		return tensor.Matrix{}, fmt.Errorf("fold %d: %d coefficients for %d weights", foldID, len(coefs), len(rec.Weights.Data))
	}

	out := rec.Weights.Clone()
	var before, after float64
	for i, w := range out.Data {
		before += w
		out.Data[i] = w + scale*coefs[i]*w
		after += out.Data[i]
	}
	if after == 0 || math.IsNaN(after) || math.IsInf(after, 0) {
		return tensor.Matrix{}, fmt.Errorf("fold %d: reweighted sum is %v", foldID, after)
	}
	k := before / after
	for i := range out.Data {
		out.Data[i] *= k
	}
	return out, nil
}

// Apply reweights fold foldID and writes the result back to the store.
func Apply(ctx context.Context, src Source, foldID int, p Predictor, fn Func, scale float64) error {
	w, err := Fold(ctx, src, foldID, p, fn, scale)
	if err != nil {
		return err
	}
	if err := src.Store().WriteColumn(ctx, foldID, folds.ColumnWeights, w); err != nil {
		return fmt.Errorf("fold %d: write weights: %w", foldID, err)
	}
	ctxlog.FromContext(ctx).Debug("Fold reweighted", "fold", foldID, "events", len(w.Data), "scale", scale)
	return nil
}

// AllFolds applies the reweighting to every fold in order.
func AllFolds(ctx context.Context, src Source, p Predictor, fn Func, scale float64) error {
	n, err := src.FoldCount(ctx)
	if err != nil {
		return fmt.Errorf("fold count: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := Apply(ctx, src, i, p, fn, scale); err != nil {
			return err
		}
	}
	ctxlog.FromContext(ctx).Info("Reweighted folds", "folds", n, "scale", scale)
	return nil
}

// #endregion fold
