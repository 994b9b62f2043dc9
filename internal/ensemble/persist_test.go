package ensemble

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiryteo/lumin/internal/model"
	"github.com/kiryteo/lumin/internal/pipeline"
	"github.com/kiryteo/lumin/internal/tensor"
)

// #region save-load-tests
func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dest := filepath.Join(t.TempDir(), "weights", "ens")

	e := built(t, Options{})
	e.SetInputPipeline(&pipeline.StandardScaler{Mean: []float64{1}, Scale: []float64{2}})
	e.SetOutputPipeline(&pipeline.StandardScaler{Mean: []float64{0.5}, Scale: []float64{3}})
	require.NoError(t, e.Save(ctx, dest, []string{"x"}, false))
	assert.Equal(t, StateSaved, e.State())

	for _, name := range []string{"ens_manifest.yaml", "ens_weights.json", "ens_results.json",
		"ens_0.model.json", "ens_1.model.json", "ens_2.model.json",
		"ens_input_pipe.json", "ens_output_pipe.json", "ens_feats.json"} {
		assert.FileExists(t, filepath.Join(dest, name))
	}

	loaded := New(Options{})
	require.NoError(t, loaded.Load(ctx, dest, model.Codec{}))
	assert.Equal(t, StateLoaded, loaded.State())
	assert.Equal(t, 1, loaded.NOut())
	assert.Equal(t, []string{"x"}, loaded.Features())
	assert.Equal(t, refs(e), refs(loaded))
	assert.InDeltaSlice(t, weights(e), weights(loaded), 1e-12)
	if diff := cmp.Diff(e.Results(), loaded.Results()); diff != "" {
		t.Errorf("results mismatch (-saved +loaded):\n%s", diff)
	}
	assert.Equal(t, e.InputPipeline(), loaded.InputPipeline())
	assert.Equal(t, e.OutputPipeline(), loaded.OutputPipeline())

	in := tensor.Vector([]float64{0.3, 7})
	want, err := e.PredictArray(ctx, in, 0)
	require.NoError(t, err)
	got, err := loaded.PredictArray(ctx, in, 0)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.Data, got.Data, 1e-12)
}

func TestSave_AlreadyExists(t *testing.T) {
	ctx := context.Background()
	dest := filepath.Join(t.TempDir(), "ens")
	e := built(t, Options{})
	require.NoError(t, e.Save(ctx, dest, nil, false))

	err := e.Save(ctx, dest, nil, false)
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	require.NoError(t, e.Save(ctx, dest, []string{"a"}, true))
	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	require.Len(t, entries, 1, "staging and old directories are cleaned up")

	loaded := New(Options{})
	require.NoError(t, loaded.Load(ctx, dest, model.Codec{}))
	assert.Equal(t, []string{"a"}, loaded.Features())
}

func TestSave_NotBuilt(t *testing.T) {
	err := New(Options{}).Save(context.Background(), filepath.Join(t.TempDir(), "ens"), nil, false)
	assert.True(t, errors.Is(err, ErrNotBuilt))
}

func TestSave_RefusesForeignDirectory(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "ens")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "notes.txt"), []byte("keep"), 0o644))

	err := built(t, Options{}).Save(context.Background(), dest, nil, true)
	assert.Error(t, err)
	assert.FileExists(t, filepath.Join(dest, "notes.txt"))
}

func TestLoad_OptionalArtifactsAbsent(t *testing.T) {
	ctx := context.Background()
	dest := filepath.Join(t.TempDir(), "ens")
	require.NoError(t, built(t, Options{}).Save(ctx, dest, nil, false))

	m, err := ReadManifest(dest)
	require.NoError(t, err)
	assert.Len(t, m.byRole(RoleMember), 3)
	assert.Empty(t, m.byRole(RoleInputPipe))
	assert.Empty(t, m.byRole(RoleFeatures))

	loaded := New(Options{})
	require.NoError(t, loaded.Load(ctx, dest, model.Codec{}))
	assert.Nil(t, loaded.InputPipeline())
	assert.Nil(t, loaded.OutputPipeline())
	assert.Nil(t, loaded.Features())
}

func TestLoad_ListedOptionalFileMissing(t *testing.T) {
	ctx := context.Background()
	dest := filepath.Join(t.TempDir(), "ens")
	e := built(t, Options{})
	require.NoError(t, e.Save(ctx, dest, []string{"x"}, false))
	require.NoError(t, os.Remove(filepath.Join(dest, "ens_feats.json")))

	loaded := New(Options{})
	require.NoError(t, loaded.Load(ctx, dest, model.Codec{}))
	assert.Nil(t, loaded.Features())
}

func TestLoad_NoManifest(t *testing.T) {
	err := New(Options{}).Load(context.Background(), t.TempDir(), model.Codec{})
	assert.Error(t, err)
}

// #endregion save-load-tests
