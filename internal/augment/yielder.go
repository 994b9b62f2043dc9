package augment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/kiryteo/lumin/internal/folds"
	"github.com/kiryteo/lumin/internal/tensor"
)

// #region options
// Options toggles when augmentation applies and supplies randomness.
type Options struct {
	TrainTime bool
	TestTime  bool
	Rand      *rand.Rand // nil means a time-seeded PCG source
}

// DefaultOptions enables both training and test-time augmentation.
func DefaultOptions() Options {
	return Options{TrainTime: true, TestTime: true}
}

// #endregion options

// #region yielder
// Yielder serves folds from a store, optionally augmented. A Yielder built
// by Plain never transforms anything.
type Yielder struct {
	store    folds.Store
	features []string
	spec     Spec
	opts     Options
	rng      *rand.Rand
}

// NewYielder validates spec against the feature list and returns the yielder
// with any configuration notices.
func NewYielder(store folds.Store, features []string, spec Spec, opts Options) (*Yielder, []Notice) {
	valid, notices := Validate(spec)
	rng := opts.Rand
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return &Yielder{store: store, features: features, spec: valid, opts: opts, rng: rng}, notices
}

// Plain wraps a store without augmentation.
func Plain(store folds.Store) *Yielder {
	return &Yielder{store: store}
}

// Store returns the underlying fold store.
func (y *Yielder) Store() folds.Store { return y.store }

// Spec returns the validated augmentation spec.
func (y *Yielder) Spec() Spec { return y.spec }

// Features returns the input feature names.
func (y *Yielder) Features() []string { return y.features }

// Augmented reports whether any transform is configured.
func (y *Yielder) Augmented() bool { return y.spec.Enabled() }

// TestTimeAugmentation reports whether predictions should average over views.
func (y *Yielder) TestTimeAugmentation() bool {
	return y.Augmented() && y.opts.TestTime
}

// Multiplicity is the number of test-time views.
func (y *Yielder) Multiplicity() int { return y.spec.Multiplicity() }

// FoldCount is the number of folds in the store.
func (y *Yielder) FoldCount(ctx context.Context) (int, error) {
	return y.store.FoldCount(ctx)
}

// #endregion yielder

// #region folds
// Fold returns fold id without augmentation.
func (y *Yielder) Fold(ctx context.Context, id int) (folds.Record, error) {
	return folds.LoadRecord(ctx, y.store, id)
}

// TrainingFold returns fold id with a fresh random rotation and random
// reflections per event, when training augmentation is enabled.
func (y *Yielder) TrainingFold(ctx context.Context, id int) (folds.Record, error) {
	if !y.Augmented() || !y.opts.TrainTime {
		return folds.LoadRecord(ctx, y.store, id)
	}
	rec, err := folds.LoadRawRecord(ctx, y.store, id)
	if err != nil {
		return folds.Record{}, err
	}
	return y.transform(rec, func(t *Table) error {
		return ApplyRandom(t, y.spec, y.rng)
	})
}

// TestFold returns fold id transformed by test-time view aug.
func (y *Yielder) TestFold(ctx context.Context, id, aug int) (folds.Record, error) {
	view, err := EnumerateView(aug, y.spec)
	if err != nil {
		return folds.Record{}, err
	}
	if !y.Augmented() {
		return folds.LoadRecord(ctx, y.store, id)
	}
	rec, err := folds.LoadRawRecord(ctx, y.store, id)
	if err != nil {
		return folds.Record{}, err
	}
	return y.transform(rec, func(t *Table) error {
		return ApplyView(t, y.spec, view, y.rng)
	})
}

// Inputs returns the plain inputs of a fold.
func (y *Yielder) Inputs(ctx context.Context, id int) (tensor.Matrix, error) {
	rec, err := y.Fold(ctx, id)
	return rec.Inputs, err
}

// TestInputs returns the inputs of a fold under test-time view aug.
func (y *Yielder) TestInputs(ctx context.Context, id, aug int) (tensor.Matrix, error) {
	rec, err := y.TestFold(ctx, id, aug)
	return rec.Inputs, err
}

// transform applies fn to a copy of the raw inputs, then zero-fills
// non-finite values.
func (y *Yielder) transform(rec folds.Record, fn func(*Table) error) (folds.Record, error) {
	t, err := NewTable(y.features, rec.Inputs.Clone())
	if err != nil {
		return folds.Record{}, fmt.Errorf("feature table: %w", err)
	}
	if err := fn(t); err != nil {
		return folds.Record{}, err
	}
	rec.Inputs = t.Values.NanToNum()
	return rec, nil
}

// #endregion folds

// #region columns
// Column concatenates one column across the first nFolds folds (all when 0).
func (y *Yielder) Column(ctx context.Context, name string, nFolds int) (tensor.Matrix, bool, error) {
	return folds.ConcatColumn(ctx, y.store, name, nFolds)
}

// Frame returns the evaluation columns of one fold.
func (y *Yielder) Frame(ctx context.Context, id int, predName string) (folds.Frame, error) {
	return folds.LoadFrame(ctx, y.store, id, predName)
}

// #endregion columns
