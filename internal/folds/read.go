package folds

import (
	"context"
	"fmt"

	"github.com/kiryteo/lumin/internal/tensor"
)

// #region load-record
// LoadRecord reads the inputs, targets and weights of one fold. Inputs are
// required and have non-finite values replaced by zero; targets and weights
// are returned as stored.
func LoadRecord(ctx context.Context, s Store, foldID int) (Record, error) {
	rec, err := LoadRawRecord(ctx, s, foldID)
	if err != nil {
		return Record{}, err
	}
	rec.Inputs = rec.Inputs.NanToNum()
	return rec, nil
}

// LoadRawRecord is LoadRecord without scrubbing the inputs.
func LoadRawRecord(ctx context.Context, s Store, foldID int) (Record, error) {
	n, err := s.FoldCount(ctx)
	if err != nil {
		return Record{}, err
	}
	if foldID < 0 || foldID >= n {
		return Record{}, fmt.Errorf("fold %d of %d: %w", foldID, n, ErrFoldNotFound)
	}

	inputs, ok, err := s.ReadColumn(ctx, foldID, ColumnInputs)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, fmt.Errorf("fold %d has no %s column", foldID, ColumnInputs)
	}
	targets, _, err := s.ReadColumn(ctx, foldID, ColumnTargets)
	if err != nil {
		return Record{}, err
	}
	weights, _, err := s.ReadColumn(ctx, foldID, ColumnWeights)
	if err != nil {
		return Record{}, err
	}

	return Record{
		Inputs:  inputs,
		Targets: targets,
		Weights: weights,
	}, nil
}

// #endregion load-record

// #region concat-column
// ConcatColumn stacks one column across the first nFolds folds (all when
// nFolds <= 0). The bool is false when fold 0 has no such column.
func ConcatColumn(ctx context.Context, s Store, name string, nFolds int) (tensor.Matrix, bool, error) {
	count, err := s.FoldCount(ctx)
	if err != nil {
		return tensor.Matrix{}, false, err
	}
	if nFolds > 0 && nFolds < count {
		count = nFolds
	}

	var out tensor.Matrix
	for i := 0; i < count; i++ {
		m, ok, err := s.ReadColumn(ctx, i, name)
		if err != nil {
			return tensor.Matrix{}, false, err
		}
		if !ok {
			if i == 0 {
				return tensor.Matrix{}, false, nil
			}
			return tensor.Matrix{}, false, fmt.Errorf("fold %d has no %s column", i, name)
		}
		if i == 0 {
			out = tensor.Matrix{Cols: m.Cols, Squeezed: m.Squeezed}
		} else if m.Cols != out.Cols {
			return tensor.Matrix{}, false, fmt.Errorf("fold %d column %s has %d cols, want %d: %w",
				i, name, m.Cols, out.Cols, ErrShapeMismatch)
		}
		out.Rows += m.Rows
		out.Data = append(out.Data, m.Data...)
	}
	return out, count > 0, nil
}

// #endregion concat-column

// #region frame
// Frame holds the evaluation columns of one fold: generator targets and
// weights plus a prediction column. Missing columns are nil.
type Frame struct {
	Targets []float64
	Weights []float64
	Preds   tensor.Matrix
}

// LoadFrame reads targets, weights and the named prediction column of a fold.
func LoadFrame(ctx context.Context, s Store, foldID int, predName string) (Frame, error) {
	var f Frame
	if m, ok, err := s.ReadColumn(ctx, foldID, ColumnTargets); err != nil {
		return Frame{}, err
	} else if ok {
		f.Targets = m.Data
	}
	if m, ok, err := s.ReadColumn(ctx, foldID, ColumnWeights); err != nil {
		return Frame{}, err
	} else if ok {
		f.Weights = m.Data
	}
	if m, ok, err := s.ReadColumn(ctx, foldID, predName); err != nil {
		return Frame{}, err
	} else if ok {
		f.Preds = m
	}
	return f, nil
}

// #endregion frame
