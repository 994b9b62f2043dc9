package augment

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/kiryteo/lumin/internal/folds"
	"github.com/kiryteo/lumin/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var yFeatures = []string{"l_px", "l_py", "l_pz", "ht"}

func seededStore(t *testing.T) *folds.MemoryStore {
	t.Helper()
	s := folds.NewMemoryStore()
	ctx := context.Background()
	in, err := tensor.FromRows([][]float64{
		{1, 0, 2, 100},
		{0, 1, -3, math.NaN()},
	})
	require.NoError(t, err)
	require.NoError(t, s.WriteColumn(ctx, 0, folds.ColumnInputs, in))
	require.NoError(t, s.WriteColumn(ctx, 0, folds.ColumnTargets, tensor.Vector([]float64{1, math.NaN()})))
	require.NoError(t, s.WriteColumn(ctx, 0, folds.ColumnWeights, tensor.Vector([]float64{0.2, 0.8})))
	return s
}

func seededRand() Options {
	o := DefaultOptions()
	o.Rand = rand.New(rand.NewPCG(42, 99))
	return o
}

func TestYielder_RotationAndReflection(t *testing.T) {
	y, notices := NewYielder(seededStore(t), yFeatures,
		Spec{RotationMultiplicity: 4, ReflectAxes: []Axis{AxisY, AxisZ}}, seededRand())
	assert.Empty(t, notices)
	assert.True(t, y.TestTimeAugmentation())
	assert.Equal(t, 16, y.Multiplicity())

	// index 5: rotation 1 (pi/2), code 1 -> y no, z yes
	rec, err := y.TestFold(context.Background(), 0, 5)
	require.NoError(t, err)
	row := rec.Inputs.Row(0)
	assert.InDelta(t, 0, row[0], 1e-12)
	assert.InDelta(t, 1, row[1], 1e-12)
	assert.Equal(t, -2.0, row[2])
	assert.Equal(t, 100.0, row[3])
}

func TestYielder_RotationOnly(t *testing.T) {
	y, _ := NewYielder(seededStore(t), yFeatures, Spec{RotationMultiplicity: 2}, seededRand())
	assert.Equal(t, 2, y.Multiplicity())

	rec, err := y.TestFold(context.Background(), 0, 1) // pi
	require.NoError(t, err)
	assert.InDelta(t, -1, rec.Inputs.At(0, 0), 1e-12)
	assert.InDelta(t, 0, rec.Inputs.At(0, 1), 1e-12)
	assert.InDelta(t, -1, rec.Inputs.At(1, 1), 1e-12)

	_, err = y.TestFold(context.Background(), 0, 2)
	assert.True(t, errors.Is(err, ErrInvalidAugmentationIndex))
}

func TestYielder_ReflectionOnly(t *testing.T) {
	y, _ := NewYielder(seededStore(t), yFeatures, Spec{ReflectAxes: []Axis{AxisX, AxisZ}}, seededRand())
	assert.Equal(t, 4, y.Multiplicity())

	rec, err := y.TestFold(context.Background(), 0, 2) // "10": x yes, z no
	require.NoError(t, err)
	assert.Equal(t, -1.0, rec.Inputs.At(0, 0))
	assert.Equal(t, 2.0, rec.Inputs.At(0, 2))
}

func TestYielder_Identity(t *testing.T) {
	y, _ := NewYielder(seededStore(t), yFeatures, Spec{}, seededRand())
	assert.False(t, y.TestTimeAugmentation())
	assert.Equal(t, 1, y.Multiplicity())

	rec, err := y.TestFold(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 2, 100, 0, 1, -3, 0}, rec.Inputs.Data)

	_, err = y.TestFold(context.Background(), 0, 1)
	assert.True(t, errors.Is(err, ErrInvalidAugmentationIndex))
}

func TestYielder_ScrubsInputsOnEveryPath(t *testing.T) {
	y, _ := NewYielder(seededStore(t), yFeatures,
		Spec{RotationMultiplicity: 2, ReflectAxes: []Axis{AxisY}}, seededRand())
	ctx := context.Background()

	train, err := y.TrainingFold(ctx, 0)
	require.NoError(t, err)
	test, err := y.TestFold(ctx, 0, 3)
	require.NoError(t, err)
	plain, err := y.Fold(ctx, 0)
	require.NoError(t, err)

	for _, rec := range []folds.Record{train, test, plain} {
		for _, v := range rec.Inputs.Data {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
		assert.True(t, math.IsNaN(rec.Targets.Data[1]), "targets untouched")
		assert.Equal(t, []float64{0.2, 0.8}, rec.Weights.Data)
	}
}

func TestYielder_TrainingFoldDisabled(t *testing.T) {
	opts := seededRand()
	opts.TrainTime = false
	y, _ := NewYielder(seededStore(t), yFeatures, Spec{RotationMultiplicity: 2}, opts)
	rec, err := y.TrainingFold(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.Inputs.At(0, 0))
}

func TestYielder_TrainingFoldPreservesPt(t *testing.T) {
	y, _ := NewYielder(seededStore(t), yFeatures, Spec{RotationMultiplicity: 2, ReflectAxes: []Axis{AxisZ}}, seededRand())
	rec, err := y.TrainingFold(context.Background(), 0)
	require.NoError(t, err)
	assert.InDelta(t, 1, math.Hypot(rec.Inputs.At(0, 0), rec.Inputs.At(0, 1)), 1e-12)
	assert.InDelta(t, 2, math.Abs(rec.Inputs.At(0, 2)), 1e-12)
}

func TestYielder_FixedViewsReproducible(t *testing.T) {
	spec := Spec{RotationMultiplicity: 4, ReflectAxes: []Axis{AxisY}}
	a, _ := NewYielder(seededStore(t), yFeatures, spec, DefaultOptions())
	b, _ := NewYielder(seededStore(t), yFeatures, spec, DefaultOptions())
	for i := 0; i < a.Multiplicity(); i++ {
		ra, err := a.TestInputs(context.Background(), 0, i)
		require.NoError(t, err)
		rb, err := b.TestInputs(context.Background(), 0, i)
		require.NoError(t, err)
		assert.Equal(t, ra.Data, rb.Data)
	}
}

func TestPlainYielder(t *testing.T) {
	y := Plain(seededStore(t))
	assert.False(t, y.Augmented())
	n, err := y.FoldCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	in, err := y.Inputs(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, in.At(1, 3))

	col, ok, err := y.Column(context.Background(), folds.ColumnWeights, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float64{0.2, 0.8}, col.Data)
}
