package tensor

import (
	"fmt"
	"math"
)

// #region matrix
// Matrix is a dense row-major float64 matrix. Squeezed marks a column that is
// stored one-dimensionally (a single output, targets, weights).
type Matrix struct {
	Rows     int
	Cols     int
	Data     []float64
	Squeezed bool
}

// New allocates a zero matrix.
func New(rows, cols int) Matrix {
	return Matrix{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// FromRows copies a slice of equal-length rows into a matrix.
func FromRows(rows [][]float64) (Matrix, error) {
	if len(rows) == 0 {
		return Matrix{}, nil
	}
	cols := len(rows[0])
	m := New(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return Matrix{}, fmt.Errorf("row %d has %d values, want %d", i, len(r), cols)
		}
		copy(m.Data[i*cols:], r)
	}
	return m, nil
}

// Vector wraps values as a squeezed n×1 matrix.
func Vector(values []float64) Matrix {
	data := make([]float64, len(values))
	copy(data, values)
	return Matrix{Rows: len(values), Cols: 1, Data: data, Squeezed: true}
}
// #endregion matrix

// #region accessors
// At returns the element at (i, j).
func (m Matrix) At(i, j int) float64 {
	return m.Data[i*m.Cols+j]
}

// Set stores v at (i, j).
func (m Matrix) Set(i, j int, v float64) {
	m.Data[i*m.Cols+j] = v
}

// Row returns a view of row i. Writes through to the matrix.
func (m Matrix) Row(i int) []float64 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// Col copies column j.
func (m Matrix) Col(j int) []float64 {
	out := make([]float64, m.Rows)
	for i := range out {
		out[i] = m.Data[i*m.Cols+j]
	}
	return out
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	data := make([]float64, len(m.Data))
	copy(data, m.Data)
	return Matrix{Rows: m.Rows, Cols: m.Cols, Data: data, Squeezed: m.Squeezed}
}

// Validate checks that Data matches the declared shape.
func (m Matrix) Validate() error {
	if m.Rows < 0 || m.Cols < 0 {
		return fmt.Errorf("negative shape %dx%d", m.Rows, m.Cols)
	}
	if len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("shape %dx%d needs %d values, have %d", m.Rows, m.Cols, m.Rows*m.Cols, len(m.Data))
	}
	if m.Squeezed && m.Cols != 1 {
		return fmt.Errorf("squeezed matrix must have one column, has %d", m.Cols)
	}
	return nil
}

// SameShape reports whether m and o have identical rows and columns.
func (m Matrix) SameShape(o Matrix) bool {
	return m.Rows == o.Rows && m.Cols == o.Cols
}
// #endregion accessors

// #region arithmetic
// NanToNum returns a copy with NaN and ±Inf replaced by zero.
func (m Matrix) NanToNum() Matrix {
	out := m.Clone()
	for i, v := range out.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out.Data[i] = 0
		}
	}
	return out
}

// AddScaled accumulates w*o into m in place. Shapes must match.
func (m Matrix) AddScaled(w float64, o Matrix) error {
	if !m.SameShape(o) {
		return fmt.Errorf("shape mismatch: %dx%d vs %dx%d", m.Rows, m.Cols, o.Rows, o.Cols)
	}
	for i, v := range o.Data {
		m.Data[i] += w * v
	}
	return nil
}

// Mean averages equally shaped matrices element-wise.
func Mean(ms []Matrix) (Matrix, error) {
	if len(ms) == 0 {
		return Matrix{}, fmt.Errorf("mean of no matrices")
	}
	out := New(ms[0].Rows, ms[0].Cols)
	w := 1 / float64(len(ms))
	for _, m := range ms {
		if err := out.AddScaled(w, m); err != nil {
			return Matrix{}, err
		}
	}
	return out, nil
}

// Squeeze marks a single-column matrix as one-dimensional.
func (m Matrix) Squeeze() Matrix {
	if m.Cols != 1 {
		return m
	}
	m.Squeezed = true
	return m
}
// #endregion arithmetic
