package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRows(t *testing.T) {
	m, err := FromRows([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Rows)
	assert.Equal(t, 2, m.Cols)
	assert.Equal(t, 3.0, m.At(1, 0))
	assert.Equal(t, []float64{2, 4}, m.Col(1))

	_, err = FromRows([][]float64{{1, 2}, {3}})
	assert.Error(t, err)
}

func TestNanToNum_DoesNotMutate(t *testing.T) {
	m := Vector([]float64{math.NaN(), math.Inf(1), math.Inf(-1), 2})
	clean := m.NanToNum()
	assert.Equal(t, []float64{0, 0, 0, 2}, clean.Data)
	assert.True(t, math.IsNaN(m.Data[0]))
}

func TestMean(t *testing.T) {
	a := Vector([]float64{1, 2})
	b := Vector([]float64{3, 6})
	m, err := Mean([]Matrix{a, b})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 4}, m.Data, 1e-12)

	_, err = Mean(nil)
	assert.Error(t, err)
	_, err = Mean([]Matrix{a, New(3, 1)})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, New(2, 3).Validate())
	assert.Error(t, Matrix{Rows: 2, Cols: 2, Data: []float64{1}}.Validate())
	assert.Error(t, Matrix{Rows: 1, Cols: 2, Data: []float64{1, 2}, Squeezed: true}.Validate())
}

func TestSqueeze(t *testing.T) {
	assert.True(t, New(3, 1).Squeeze().Squeezed)
	assert.False(t, New(3, 2).Squeeze().Squeezed)
}
