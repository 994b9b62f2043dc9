package pipeline

import (
	"testing"

	"github.com/kiryteo/lumin/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardScaler_InverseRestores(t *testing.T) {
	m, _ := tensor.FromRows([][]float64{{1, 10}, {3, 10}, {5, 10}})
	s, err := FitStandardScaler(m)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{3, 10}, s.Mean, 1e-12)
	assert.Equal(t, 1.0, s.Scale[1], "zero-spread column keeps unit scale")

	scaled, err := s.Transform(m)
	require.NoError(t, err)
	assert.InDelta(t, 0, scaled.At(1, 0), 1e-12)

	back, err := s.InverseTransform(scaled)
	require.NoError(t, err)
	assert.InDeltaSlice(t, m.Data, back.Data, 1e-12)
}

func TestStandardScaler_ColumnMismatch(t *testing.T) {
	s := &StandardScaler{Mean: []float64{0}, Scale: []float64{1}}
	_, err := s.InverseTransform(tensor.New(2, 2))
	assert.Error(t, err)
}

func TestFitStandardScaler_Empty(t *testing.T) {
	_, err := FitStandardScaler(tensor.New(0, 2))
	assert.Error(t, err)
}

func TestMarshalUnmarshal(t *testing.T) {
	s := &StandardScaler{Mean: []float64{1, 2}, Scale: []float64{3, 4}}
	data, err := Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind": "standard_scaler"`)

	p, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, s, p)

	_, err = Unmarshal([]byte(`{"kind":"pca","params":{}}`))
	assert.Error(t, err)
}
