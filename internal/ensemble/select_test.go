package ensemble

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiryteo/lumin/internal/model"
)

// #region helpers
// constant returns a one-feature predictor that ignores its input and emits
// value on every output.
func constant(t *testing.T, nOut int, value float64) *model.Linear {
	t.Helper()
	bias := make([]float64, nOut)
	for i := range bias {
		bias[i] = value
	}
	l, err := model.NewLinear(1, nOut, make([]float64, nOut), bias, false)
	require.NoError(t, err)
	return l
}

type mapLoader struct {
	models map[string]model.Predictor
	loaded []string
}

func (m *mapLoader) Load(_ context.Context, ref string) (model.Predictor, error) {
	p, ok := m.models[ref]
	if !ok {
		return nil, fmt.Errorf("no model %s", ref)
	}
	m.loaded = append(m.loaded, ref)
	return p, nil
}

// loaderFor registers train_<id> for every result, with output value id+1.
func loaderFor(t *testing.T, results []Result) *mapLoader {
	t.Helper()
	l := &mapLoader{models: map[string]model.Predictor{}}
	for _, r := range results {
		l.models[model.TrainRef(r.ModelID)] = constant(t, 1, float64(r.ModelID+1))
	}
	return l
}

func lossResults(losses ...float64) []Result {
	out := make([]Result, len(losses))
	for i, l := range losses {
		out[i] = Result{ModelID: i, Metrics: map[string]float64{MetricLoss: l}}
	}
	return out
}

func weights(e *Ensemble) []float64 {
	var w []float64
	for _, m := range e.Members() {
		w = append(w, m.Weight)
	}
	return w
}

func refs(e *Ensemble) []string {
	var r []string
	for _, m := range e.Members() {
		r = append(r, m.Ref)
	}
	return r
}

// #endregion helpers

// #region build-tests
func TestBuild_UniformEqualWeights(t *testing.T) {
	results := lossResults(0.5, 0.5, 0.5)
	e := New(Options{})
	notices, err := e.Build(context.Background(), results, loaderFor(t, results),
		BuildOptions{Size: 3, Weighting: WeightingUniform})
	require.NoError(t, err)
	assert.Empty(t, notices)
	assert.Equal(t, StateBuilt, e.State())
	assert.Equal(t, 1, e.NOut())
	for _, w := range weights(e) {
		assert.InDelta(t, 1.0/3, w, 1e-12)
	}
}

func TestBuild_ReciprocalRanksAndWeights(t *testing.T) {
	results := lossResults(4, 1, 2)
	e := New(Options{})
	_, err := e.Build(context.Background(), results, loaderFor(t, results), BuildOptions{Size: 3})
	require.NoError(t, err)

	assert.Equal(t, []string{"train_1", "train_2", "train_0"}, refs(e))
	w := weights(e)
	assert.InDelta(t, 4.0/7, w[0], 1e-12)
	assert.InDelta(t, 2.0/7, w[1], 1e-12)
	assert.InDelta(t, 1.0/7, w[2], 1e-12)
}

func TestBuild_WeightsSumToOne(t *testing.T) {
	results := lossResults(0.31, 0.7, 0.12, 0.9, 0.45)
	for _, size := range []int{1, 2, 5, 50} {
		e := New(Options{})
		_, err := e.Build(context.Background(), results, loaderFor(t, results), BuildOptions{Size: size})
		require.NoError(t, err)
		var sum float64
		for _, w := range weights(e) {
			sum += w
		}
		assert.InDelta(t, 1, sum, 1e-12, "size %d", size)
		assert.Equal(t, min(size, len(results)), e.Size())
	}
}

func TestBuild_HigherIsBetter(t *testing.T) {
	results := []Result{
		{ModelID: 0, Metrics: map[string]float64{"auc": 0.6}},
		{ModelID: 1, Metrics: map[string]float64{"auc": 0.9}},
		{ModelID: 2, Metrics: map[string]float64{"auc": 0.3}},
	}
	e := New(Options{})
	_, err := e.Build(context.Background(), results, loaderFor(t, results),
		BuildOptions{Size: 2, Metric: "auc", HigherIsBetter: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"train_1", "train_0"}, refs(e))
	w := weights(e)
	assert.InDelta(t, 0.6, w[0], 1e-12)
	assert.InDelta(t, 0.4, w[1], 1e-12)
}

func TestBuild_StableOnTies(t *testing.T) {
	results := lossResults(1, 1, 1, 1)
	e := New(Options{})
	_, err := e.Build(context.Background(), results, loaderFor(t, results), BuildOptions{Size: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"train_0", "train_1"}, refs(e))
}

func TestBuild_WeightingCaseInsensitive(t *testing.T) {
	results := lossResults(1, 2)
	e := New(Options{})
	_, err := e.Build(context.Background(), results, loaderFor(t, results),
		BuildOptions{Size: 2, Weighting: " Uniform"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, weights(e))
}

func TestBuild_Errors(t *testing.T) {
	ctx := context.Background()
	results := lossResults(1, 2)
	loader := loaderFor(t, results)

	_, err := New(Options{}).Build(ctx, nil, loader, BuildOptions{Size: 1})
	assert.True(t, errors.Is(err, ErrNoResults))

	_, err = New(Options{}).Build(ctx, results, loader, BuildOptions{Size: 0})
	assert.True(t, errors.Is(err, ErrInvalidSize))

	_, err = New(Options{}).Build(ctx, results, loader, BuildOptions{Size: 1, Weighting: "softmax"})
	assert.True(t, errors.Is(err, ErrUnsupportedWeighting))

	_, err = New(Options{}).Build(ctx, results, loader, BuildOptions{Size: 1, Metric: "auc"})
	assert.Error(t, err)

	_, err = New(Options{}).Build(ctx, lossResults(0, 1), loaderFor(t, lossResults(0, 1)), BuildOptions{Size: 2})
	assert.Error(t, err, "zero loss cannot be reciprocal-weighted")

	_, err = New(Options{}).Build(ctx, results, &mapLoader{models: map[string]model.Predictor{}}, BuildOptions{Size: 1})
	assert.Error(t, err)
}

func TestBuild_OutputDimMismatch(t *testing.T) {
	results := lossResults(1, 2)
	loader := &mapLoader{models: map[string]model.Predictor{
		"train_0": constant(t, 1, 0),
		"train_1": constant(t, 2, 0),
	}}
	_, err := New(Options{}).Build(context.Background(), results, loader, BuildOptions{Size: 2})
	assert.Error(t, err)
}

// #endregion build-tests

// #region cycle-tests
func cycleFixture(t *testing.T) ([]Result, *mapLoader) {
	t.Helper()
	results := []Result{
		{ModelID: 0, Metrics: map[string]float64{MetricLoss: 0.2, "auc": 0.8}, CycleLosses: []float64{0.9, 0.5, 0.3, 0.25, 0.26}},
		{ModelID: 1, Metrics: map[string]float64{MetricLoss: 0.4, "auc": 0.7}, CycleLosses: []float64{0.8, 0.6, 0.45, 0.4, 0.41}},
	}
	loader := loaderFor(t, results)
	for _, r := range results {
		for c := 0; c <= len(r.CycleLosses); c++ {
			loader.models[model.CycleRef(r.ModelID, c)] = constant(t, 1, float64(10*r.ModelID+c))
		}
	}
	return results, loader
}

func TestBuild_SnapshotCycles(t *testing.T) {
	results, loader := cycleFixture(t)
	snap := SnapshotOptions{NCycles: 2, Patience: 2, WeightingPower: 1}
	e := New(Options{})
	notices, err := e.Build(context.Background(), results, loader,
		BuildOptions{Size: 1, Metric: "auc", HigherIsBetter: true, Snapshot: &snap})
	require.NoError(t, err)

	fields := make([]string, 0, len(notices))
	for _, n := range notices {
		fields = append(fields, n.Field)
	}
	assert.ElementsMatch(t, []string{"metric", "higher_is_better", "weighting"}, fields)

	// ranked by loss, so model 0; end = 5-2 = 3, walk 3 then 2
	assert.Equal(t, []string{"train_0", "0_cycle_3", "0_cycle_2"}, refs(e))
	w := weights(e)
	assert.InDelta(t, 0.25, w[0], 1e-12)
	assert.InDelta(t, 0.25, w[1], 1e-12)
	assert.InDelta(t, 0.5, w[2], 1e-12)
}

func TestBuild_SnapshotCyclesOnly(t *testing.T) {
	results, loader := cycleFixture(t)
	snap := SnapshotOptions{NCycles: 3, Patience: 2, LoadCyclesOnly: true}
	e := New(Options{})
	_, err := e.Build(context.Background(), results, loader,
		BuildOptions{Size: 2, Weighting: WeightingUniform, Snapshot: &snap})
	require.NoError(t, err)

	// end = 5-2+1 = 4, walk 4, 3, 2 for each model
	assert.Equal(t, []string{"0_cycle_4", "0_cycle_3", "0_cycle_2", "1_cycle_4", "1_cycle_3", "1_cycle_2"}, refs(e))
	for _, w := range weights(e) {
		assert.InDelta(t, 1.0/6, w, 1e-12)
	}
}

func TestBuild_SnapshotPartiallySpecified(t *testing.T) {
	results, loader := cycleFixture(t)
	snap := DefaultSnapshotOptions()
	e := New(Options{})
	notices, err := e.Build(context.Background(), results, loader, BuildOptions{Size: 2, Snapshot: &snap})
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, "snapshot", notices[0].Field)
	assert.Equal(t, []string{"train_0", "train_1"}, refs(e))
}

func TestBuild_SnapshotIgnoresUnselectedResults(t *testing.T) {
	results, loader := cycleFixture(t)
	results[1].CycleLosses = nil
	snap := SnapshotOptions{NCycles: 2, Patience: 2}
	e := New(Options{})
	notices, err := e.Build(context.Background(), results, loader,
		BuildOptions{Size: 1, Weighting: WeightingUniform, Snapshot: &snap})
	require.NoError(t, err)
	assert.Empty(t, notices)
	assert.Equal(t, []string{"train_0", "0_cycle_3", "0_cycle_2"}, refs(e))
}

func TestBuild_SnapshotSelectedWithoutCycleLosses(t *testing.T) {
	results, loader := cycleFixture(t)
	results[1].CycleLosses = nil
	snap := SnapshotOptions{NCycles: 2, Patience: 2}
	e := New(Options{})
	notices, err := e.Build(context.Background(), results, loader,
		BuildOptions{Size: 2, Weighting: WeightingUniform, Snapshot: &snap})
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, "snapshot", notices[0].Field)
	assert.Equal(t, []string{"train_0", "train_1"}, refs(e))
}

// #endregion cycle-tests
