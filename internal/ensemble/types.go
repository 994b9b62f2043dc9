package ensemble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiryteo/lumin/internal/model"
	"github.com/kiryteo/lumin/internal/runlog"
)

var (
	ErrUnsupportedWeighting = errors.New("unsupported weighting")
	ErrAlreadyExists        = errors.New("ensemble already exists")
	ErrNoResults            = errors.New("no model results")
	ErrInvalidSize          = errors.New("ensemble size must be positive")
	ErrNoMembers            = errors.New("ensemble has no members")
	ErrNotBuilt             = errors.New("ensemble not built or loaded")
)

// #region result
// Result is the evaluation of one trained model. CycleLosses holds the
// validation loss after each snapshot cycle, oldest first.
type Result struct {
	ModelID     int                `json:"model_id"`
	Metrics     map[string]float64 `json:"metrics"`
	CycleLosses []float64          `json:"cycle_losses,omitempty"`
}

// #endregion result

// #region member
// Member is a predictor with its normalised contribution weight.
type Member struct {
	Ref       string
	Predictor model.Predictor
	Weight    float64
}

// #endregion member

// #region weighting
// Weighting selects how top-level members are weighted.
type Weighting string

const (
	WeightingReciprocal Weighting = "reciprocal"
	WeightingUniform    Weighting = "uniform"
)

// ParseWeighting normalises case and rejects unknown modes.
func ParseWeighting(s string) (Weighting, error) {
	w := Weighting(strings.ToLower(strings.TrimSpace(s)))
	switch w {
	case WeightingReciprocal, WeightingUniform:
		return w, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnsupportedWeighting)
}

// #endregion weighting

// #region build-options
// MetricLoss is the default selection metric.
const MetricLoss = "loss"

// SnapshotOptions adds snapshot-cycle checkpoints of each selected model.
type SnapshotOptions struct {
	NCycles        int
	Patience       int
	LoadCyclesOnly bool
	WeightingPower float64
}

// DefaultSnapshotOptions returns the cycle defaults (patience 2, flat weights).
func DefaultSnapshotOptions() SnapshotOptions {
	return SnapshotOptions{Patience: 2}
}

// BuildOptions configures model selection.
type BuildOptions struct {
	Size           int
	Metric         string    // key into Result.Metrics; "" means loss
	Weighting      Weighting // "" means reciprocal
	HigherIsBetter bool      // sort descending, weight by value instead of its reciprocal
	Snapshot       *SnapshotOptions
}

// #endregion build-options

// #region notice
// Notice reports a configuration value that was overridden during Build.
type Notice struct {
	Field   string
	Message string
}

func (n Notice) String() string {
	return n.Field + ": " + n.Message
}

// #endregion notice

// #region state
// State is the ensemble lifecycle stage.
type State int

const (
	StateEmpty State = iota
	StateBuilt
	StateSaved
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateSaved:
		return "saved"
	case StateLoaded:
		return "loaded"
	default:
		return "empty"
	}
}

// #endregion state

// #region run-report
// RunReport summarises one PredictFoldStore call. Latencies are per event,
// averaged over folds, with the standard error of that mean.
type RunReport struct {
	RunID            string
	Column           string
	Folds            int
	Events           int
	Members          int
	AugMultiplicity  int
	MeanEventLatency time.Duration
	StdErrLatency    time.Duration
}

// RunRecorder persists run reports, e.g. runlog.Log.
type RunRecorder interface {
	Record(ctx context.Context, entry runlog.Entry) error
}

// #endregion run-report
