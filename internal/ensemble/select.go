package ensemble

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/kiryteo/lumin/internal/ctxlog"
	"github.com/kiryteo/lumin/internal/model"
)

// #region build
// Build selects the best Size results, loads their predictors (and snapshot
// cycles when configured) through loader, and normalises the weights to sum
// to one. Overridden settings are returned as notices.
func (e *Ensemble) Build(ctx context.Context, results []Result, loader model.Loader, opts BuildOptions) ([]Notice, error) {
	logger := ctxlog.FromContext(ctx)

	if len(results) == 0 {
		return nil, ErrNoResults
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("size %d: %w", opts.Size, ErrInvalidSize)
	}
	if opts.Metric == "" {
		opts.Metric = MetricLoss
	}
	if opts.Weighting == "" {
		opts.Weighting = WeightingReciprocal
	}

	weighting, err := ParseWeighting(string(opts.Weighting))
	if err != nil {
		return nil, err
	}
	opts.Weighting = weighting

	n := min(opts.Size, len(results))
	cycles, notices := resolveSnapshot(results, n, &opts)

	ranked, err := rank(results, opts.Metric, opts.HigherIsBetter)
	if err != nil {
		return notices, err
	}
	logger.Info("Choosing ensemble", "metric", opts.Metric, "size", n, "weighting", opts.Weighting)

	var members []Member
	for i, r := range ranked[:n] {
		if !(cycles && opts.Snapshot.LoadCyclesOnly) {
			w, err := topLevelWeight(r.value, opts)
			if err != nil {
				return notices, fmt.Errorf("model %d: %w", r.ModelID, err)
			}
			ref := model.TrainRef(r.ModelID)
			p, err := loader.Load(ctx, ref)
			if err != nil {
				return notices, err
			}
			members = append(members, Member{Ref: ref, Predictor: p, Weight: w})
			logger.Debug("Selected model", "rank", i, "model_id", r.ModelID, opts.Metric, r.value)
		}

		if cycles {
			cm, err := cycleMembers(ctx, loader, r.Result, *opts.Snapshot)
			if err != nil {
				return notices, err
			}
			members = append(members, cm...)
		}
	}

	if err := normalise(members); err != nil {
		return notices, err
	}
	nOut, err := consistentOutputDim(members)
	if err != nil {
		return notices, err
	}

	e.members = members
	e.results = append([]Result(nil), results...)
	e.nOut = nOut
	e.state = StateBuilt
	return notices, nil
}

// #endregion build

// #region snapshot
// resolveSnapshot decides whether cycle members are added and applies the
// overrides that cycle ensembles require. Cycles need n_cycles and cycle
// losses on each of the n results selected by loss.
func resolveSnapshot(results []Result, n int, opts *BuildOptions) (bool, []Notice) {
	snap := opts.Snapshot
	if snap == nil {
		return false, nil
	}

	var notices []Notice
	if snap.NCycles <= 0 || !selectedHaveCycleLosses(results, n) {
		notices = append(notices, Notice{
			Field:   "snapshot",
			Message: "cycle ensemble requested without both n_cycles and per-model cycle losses, cycles ignored",
		})
		return false, notices
	}

	if opts.Metric != MetricLoss {
		notices = append(notices, Notice{Field: "metric", Message: fmt.Sprintf("cycle ensembles rank by loss, ignoring %q", opts.Metric)})
		opts.Metric = MetricLoss
	}
	if opts.HigherIsBetter {
		notices = append(notices, Notice{Field: "higher_is_better", Message: "cycle ensembles rank by loss, lower is better"})
		opts.HigherIsBetter = false
	}
	if opts.Weighting != WeightingUniform {
		notices = append(notices, Notice{Field: "weighting", Message: fmt.Sprintf("cycle ensembles use uniform weighting, ignoring %q", opts.Weighting)})
		opts.Weighting = WeightingUniform
	}
	return true, notices
}

func selectedHaveCycleLosses(results []Result, n int) bool {
	ranked, err := rank(results, MetricLoss, false)
	if err != nil {
		return false
	}
	for _, r := range ranked[:n] {
		if len(r.CycleLosses) == 0 {
			return false
		}
	}
	return true
}

// cycleMembers walks back from the last cycle before the patience window,
// weighting the rank-th most recent cycle by (rank+1)^WeightingPower.
func cycleMembers(ctx context.Context, loader model.Loader, r Result, snap SnapshotOptions) ([]Member, error) {
	logger := ctxlog.FromContext(ctx)

	end := len(r.CycleLosses) - snap.Patience
	if snap.LoadCyclesOnly {
		end++
	}
	stop := max(0, end-snap.NCycles)

	var members []Member
	for rank, c := 0, end; c > stop; rank, c = rank+1, c-1 {
		ref := model.CycleRef(r.ModelID, c)
		p, err := loader.Load(ctx, ref)
		if err != nil {
			return nil, err
		}
		w := math.Pow(float64(rank+1), snap.WeightingPower)
		members = append(members, Member{Ref: ref, Predictor: p, Weight: w})
		if c < len(r.CycleLosses) {
			logger.Debug("Selected cycle", "model_id", r.ModelID, "cycle", c, "loss", r.CycleLosses[c], "weight", w)
		}
	}
	return members, nil
}

// #endregion snapshot

// #region ranking
type rankedResult struct {
	Result
	value float64
}

// rank stably sorts results by metric, ascending unless higherIsBetter.
func rank(results []Result, metric string, higherIsBetter bool) ([]rankedResult, error) {
	out := make([]rankedResult, len(results))
	for i, r := range results {
		v, ok := r.Metrics[metric]
		if !ok {
			return nil, fmt.Errorf("model %d has no %q metric", r.ModelID, metric)
		}
		out[i] = rankedResult{Result: r, value: v}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if higherIsBetter {
			return out[i].value > out[j].value
		}
		return out[i].value < out[j].value
	})
	return out, nil
}

func topLevelWeight(value float64, opts BuildOptions) (float64, error) {
	switch opts.Weighting {
	case WeightingUniform:
		return 1, nil
	case WeightingReciprocal:
		if opts.HigherIsBetter {
			value = 1 / value
		}
		if value <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
			return 0, fmt.Errorf("reciprocal weighting needs a positive finite metric, got %v", value)
		}
		return 1 / value, nil
	}
	return 0, fmt.Errorf("%q: %w", opts.Weighting, ErrUnsupportedWeighting)
}

// normalise scales weights to sum to one.
func normalise(members []Member) error {
	if len(members) == 0 {
		return ErrNoMembers
	}
	var sum float64
	for _, m := range members {
		if m.Weight <= 0 || math.IsNaN(m.Weight) || math.IsInf(m.Weight, 0) {
			return fmt.Errorf("member %s has invalid weight %v", m.Ref, m.Weight)
		}
		sum += m.Weight
	}
	for i := range members {
		members[i].Weight /= sum
	}
	return nil
}

// #endregion ranking
