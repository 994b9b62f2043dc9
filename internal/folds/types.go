package folds

import (
	"context"
	"errors"

	"github.com/kiryteo/lumin/internal/tensor"
)

// Standard column names of a fold.
const (
	ColumnInputs  = "inputs"
	ColumnTargets = "targets"
	ColumnWeights = "weights"
)

var (
	// ErrShapeMismatch is returned when overwriting a column with a different shape.
	ErrShapeMismatch = errors.New("column shape mismatch")
	// ErrFoldNotFound is returned when a fold id is outside [0, FoldCount).
	ErrFoldNotFound = errors.New("fold not found")
)

// #region store-interface
// Store is an indexed collection of folds, each holding named column arrays.
// Folds are addressed by ids 0..FoldCount-1. WriteColumn creates a column or
// overwrites an existing one of the same shape.
type Store interface {
	FoldCount(ctx context.Context) (int, error)
	ReadColumn(ctx context.Context, foldID int, name string) (tensor.Matrix, bool, error)
	WriteColumn(ctx context.Context, foldID int, name string, m tensor.Matrix) error
}

// #endregion store-interface

// #region record
// Record is one fold loaded into memory. Targets and Weights are empty
// matrices when the fold has no such column.
type Record struct {
	Inputs  tensor.Matrix
	Targets tensor.Matrix
	Weights tensor.Matrix
}

// Len is the number of events in the fold.
func (r Record) Len() int {
	return r.Inputs.Rows
}

// #endregion record

// #region column-info
// ColumnInfo describes a stored column without its data.
type ColumnInfo struct {
	FoldID   int    `json:"fold_id"`
	Name     string `json:"name"`
	Rows     int    `json:"rows"`
	Cols     int    `json:"cols"`
	Squeezed bool   `json:"squeezed"`
}

// #endregion column-info
