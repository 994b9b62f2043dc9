package ensemble

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/kiryteo/lumin/internal/ctxlog"
	"github.com/kiryteo/lumin/internal/folds"
	"github.com/kiryteo/lumin/internal/runlog"
	"github.com/kiryteo/lumin/internal/tensor"
)

// FoldSource supplies fold inputs for prediction. *augment.Yielder
// satisfies it.
type FoldSource interface {
	Store() folds.Store
	FoldCount(ctx context.Context) (int, error)
	TestTimeAugmentation() bool
	Multiplicity() int
	Inputs(ctx context.Context, id int) (tensor.Matrix, error)
	TestInputs(ctx context.Context, id, aug int) (tensor.Matrix, error)
}

// #region predict-array
// PredictArray returns the weighted average of the first n members'
// predictions for inputs. n <= 0 or n > Size uses every member; the chosen
// subset's weights are renormalised to sum to one.
func (e *Ensemble) PredictArray(ctx context.Context, inputs tensor.Matrix, n int) (tensor.Matrix, error) {
	if len(e.members) == 0 {
		return tensor.Matrix{}, ErrNoMembers
	}
	if n <= 0 || n > len(e.members) {
		n = len(e.members)
	}
	members := e.members[:n]

	ctx, span := startPredictArraySpan(ctx, inputs.Rows, n)
	defer span.End()

	var total float64
	for _, m := range members {
		total += m.Weight
	}

	outputs := make([]tensor.Matrix, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for i, m := range members {
		g.Go(func() error {
			out, err := e.predictMember(gctx, m, inputs)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return tensor.Matrix{}, err
	}

	pred := tensor.New(inputs.Rows, e.nOut)
	for i, m := range members {
		if err := pred.AddScaled(m.Weight/total, outputs[i]); err != nil {
			return tensor.Matrix{}, fmt.Errorf("member %s: %w", m.Ref, err)
		}
	}
	return pred, nil
}

// Predict is PredictArray over every member, so an ensemble can stand in for
// a single model.Predictor.
func (e *Ensemble) Predict(ctx context.Context, inputs tensor.Matrix) (tensor.Matrix, error) {
	return e.PredictArray(ctx, inputs, 0)
}

// OutputDim is NOut.
func (e *Ensemble) OutputDim() int { return e.nOut }

func (e *Ensemble) predictMember(ctx context.Context, m Member, inputs tensor.Matrix) (tensor.Matrix, error) {
	out, err := m.Predictor.Predict(ctx, inputs.Clone())
	if err != nil {
		return tensor.Matrix{}, fmt.Errorf("member %s: %w", m.Ref, err)
	}
	if out.Rows != inputs.Rows || out.Cols != e.nOut {
		return tensor.Matrix{}, fmt.Errorf("member %s returned %dx%d, want %dx%d", m.Ref, out.Rows, out.Cols, inputs.Rows, e.nOut)
	}
	if e.outputPipe != nil {
		out, err = e.outputPipe.InverseTransform(out)
		if err != nil {
			return tensor.Matrix{}, fmt.Errorf("member %s: inverse output transform: %w", m.Ref, err)
		}
	}
	out.Squeezed = false
	return out, nil
}

// #endregion predict-array

// #region predict-fold-store
// PredictFoldStore predicts every fold of src and writes the result into
// column of the underlying store, replacing any existing column. With
// test-time augmentation each fold's prediction is the unweighted mean over
// all views.
func (e *Ensemble) PredictFoldStore(ctx context.Context, src FoldSource, n int, column string) (RunReport, error) {
	logger := ctxlog.FromContext(ctx)
	if len(e.members) == 0 {
		return RunReport{}, ErrNoMembers
	}
	if column == "" {
		column = "pred"
	}

	tta := src.TestTimeAugmentation()
	views := 1
	if tta {
		views = src.Multiplicity()
	}
	members := n
	if members <= 0 || members > len(e.members) {
		members = len(e.members)
	}

	ctx, span := startPredictFoldStoreSpan(ctx, column, members, views)
	defer span.End()

	nFolds, err := src.FoldCount(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RunReport{}, fmt.Errorf("fold count: %w", err)
	}

	report := RunReport{
		RunID:           uuid.NewString(),
		Column:          column,
		Folds:           nFolds,
		Members:         members,
		AugMultiplicity: views,
	}
	logger.Info("Predicting fold store", "run_id", report.RunID, "folds", nFolds, "members", members, "views", views, "column", column)

	var latencies []time.Duration
	for fold := 0; fold < nFolds; fold++ {
		start := time.Now()
		pred, err := e.predictFold(ctx, src, fold, n, tta, views)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return report, fmt.Errorf("fold %d: %w", fold, err)
		}
		elapsed := time.Since(start)

		if e.nOut == 1 {
			pred = pred.Squeeze()
		}
		if err := src.Store().WriteColumn(ctx, fold, column, pred); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return report, fmt.Errorf("fold %d: write %s: %w", fold, column, err)
		}

		report.Events += pred.Rows
		if pred.Rows > 0 {
			latencies = append(latencies, elapsed/time.Duration(pred.Rows))
		}
		recordFoldMetrics(ctx, column, pred.Rows, elapsed)
		logger.Debug("Fold predicted", "fold", fold, "events", pred.Rows, "elapsed", elapsed)
	}

	report.MeanEventLatency, report.StdErrLatency = latencyStats(latencies)
	setRunSpanResult(span, report)
	logger.Info("Mean time per event",
		"run_id", report.RunID,
		"mean", report.MeanEventLatency,
		"stderr", report.StdErrLatency,
		"events", report.Events,
	)

	if e.opts.Runs != nil {
		entry := runlog.Entry{
			RunID:            report.RunID,
			Ensemble:         e.opts.Name,
			Column:           report.Column,
			Folds:            report.Folds,
			Events:           report.Events,
			Members:          report.Members,
			AugMultiplicity:  report.AugMultiplicity,
			MeanEventLatency: report.MeanEventLatency,
			StdErrLatency:    report.StdErrLatency,
		}
		if err := e.opts.Runs.Record(ctx, entry); err != nil {
			logger.Warn("Failed to record prediction run", "run_id", report.RunID, "error", err)
		}
	}
	return report, nil
}

func (e *Ensemble) predictFold(ctx context.Context, src FoldSource, fold, n int, tta bool, views int) (tensor.Matrix, error) {
	if !tta {
		inputs, err := src.Inputs(ctx, fold)
		if err != nil {
			return tensor.Matrix{}, err
		}
		return e.PredictArray(ctx, inputs, n)
	}

	preds := make([]tensor.Matrix, 0, views)
	for aug := 0; aug < views; aug++ {
		inputs, err := src.TestInputs(ctx, fold, aug)
		if err != nil {
			return tensor.Matrix{}, fmt.Errorf("view %d: %w", aug, err)
		}
		p, err := e.PredictArray(ctx, inputs, n)
		if err != nil {
			return tensor.Matrix{}, fmt.Errorf("view %d: %w", aug, err)
		}
		preds = append(preds, p)
	}
	return tensor.Mean(preds)
}

// latencyStats returns the mean and its standard error (sample deviation
// over sqrt(n)). Fewer than two samples give a zero error.
func latencyStats(ds []time.Duration) (time.Duration, time.Duration) {
	if len(ds) == 0 {
		return 0, 0
	}
	var sum float64
	for _, d := range ds {
		sum += float64(d)
	}
	mean := sum / float64(len(ds))
	if len(ds) < 2 {
		return time.Duration(mean), 0
	}
	var ss float64
	for _, d := range ds {
		diff := float64(d) - mean
		ss += diff * diff
	}
	std := math.Sqrt(ss / float64(len(ds)-1))
	return time.Duration(mean), time.Duration(std / math.Sqrt(float64(len(ds))))
}

// #endregion predict-fold-store
