package ensemble

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiryteo/lumin/internal/model"
)

type closingPredictor struct {
	*model.Linear
	closed int
	err    error
}

func (c *closingPredictor) Close() error {
	c.closed++
	return c.err
}

func TestClose_ReleasesMembers(t *testing.T) {
	results := lossResults(1, 2, 4)
	first := &closingPredictor{Linear: constant(t, 1, 1)}
	second := &closingPredictor{Linear: constant(t, 1, 2), err: errors.New("connection reset")}
	loader := &mapLoader{models: map[string]model.Predictor{
		"train_0": first,
		"train_1": second,
		"train_2": constant(t, 1, 4),
	}}
	e := New(Options{})
	_, err := e.Build(context.Background(), results, loader, BuildOptions{Size: 3})
	require.NoError(t, err)

	err = e.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "train_1")
	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 1, second.closed)
}

func TestClose_Empty(t *testing.T) {
	assert.NoError(t, New(Options{}).Close())
}
