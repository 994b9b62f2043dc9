package pipeline

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/kiryteo/lumin/internal/tensor"
)

// #region interfaces
// Inverter maps model-space outputs back to the original target space.
type Inverter interface {
	InverseTransform(m tensor.Matrix) (tensor.Matrix, error)
}

// Pipeline is a fitted, reversible column transform.
type Pipeline interface {
	Inverter
	Transform(m tensor.Matrix) (tensor.Matrix, error)
}

// #endregion interfaces

// #region standard-scaler
// StandardScaler centres each column on its mean and divides by its
// population standard deviation. Columns with zero spread are only centred.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitStandardScaler computes per-column mean and standard deviation.
func FitStandardScaler(m tensor.Matrix) (*StandardScaler, error) {
	if m.Rows == 0 {
		return nil, fmt.Errorf("fit scaler: no rows")
	}
	s := &StandardScaler{Mean: make([]float64, m.Cols), Scale: make([]float64, m.Cols)}
	for j := 0; j < m.Cols; j++ {
		var sum float64
		for i := 0; i < m.Rows; i++ {
			sum += m.At(i, j)
		}
		mean := sum / float64(m.Rows)
		var ss float64
		for i := 0; i < m.Rows; i++ {
			d := m.At(i, j) - mean
			ss += d * d
		}
		std := math.Sqrt(ss / float64(m.Rows))
		if std == 0 {
			std = 1
		}
		s.Mean[j], s.Scale[j] = mean, std
	}
	return s, nil
}

func (s *StandardScaler) check(m tensor.Matrix) error {
	if m.Cols != len(s.Mean) {
		return fmt.Errorf("scaler fitted on %d columns, got %d", len(s.Mean), m.Cols)
	}
	return nil
}

// Transform returns (m - mean) / scale.
func (s *StandardScaler) Transform(m tensor.Matrix) (tensor.Matrix, error) {
	if err := s.check(m); err != nil {
		return tensor.Matrix{}, err
	}
	out := m.Clone()
	for i := 0; i < out.Rows; i++ {
		row := out.Row(i)
		for j := range row {
			row[j] = (row[j] - s.Mean[j]) / s.Scale[j]
		}
	}
	return out, nil
}

// InverseTransform returns m*scale + mean.
func (s *StandardScaler) InverseTransform(m tensor.Matrix) (tensor.Matrix, error) {
	if err := s.check(m); err != nil {
		return tensor.Matrix{}, err
	}
	out := m.Clone()
	for i := 0; i < out.Rows; i++ {
		row := out.Row(i)
		for j := range row {
			row[j] = row[j]*s.Scale[j] + s.Mean[j]
		}
	}
	return out, nil
}

// #endregion standard-scaler

// #region encoding
type envelope struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

const kindStandardScaler = "standard_scaler"

// Marshal serialises a pipeline with its kind tag.
func Marshal(p Pipeline) ([]byte, error) {
	var kind string
	switch p.(type) {
	case *StandardScaler:
		kind = kindStandardScaler
	default:
		return nil, fmt.Errorf("unsupported pipeline type %T", p)
	}
	params, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal pipeline: %w", err)
	}
	return json.MarshalIndent(envelope{Kind: kind, Params: params}, "", "  ")
}

// Unmarshal restores a pipeline written by Marshal.
func Unmarshal(data []byte) (Pipeline, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal pipeline: %w", err)
	}
	switch env.Kind {
	case kindStandardScaler:
		var s StandardScaler
		if err := json.Unmarshal(env.Params, &s); err != nil {
			return nil, fmt.Errorf("unmarshal scaler: %w", err)
		}
		if len(s.Mean) != len(s.Scale) {
			return nil, fmt.Errorf("scaler has %d means and %d scales", len(s.Mean), len(s.Scale))
		}
		return &s, nil
	}
	return nil, fmt.Errorf("unknown pipeline kind %q", env.Kind)
}

// #endregion encoding
