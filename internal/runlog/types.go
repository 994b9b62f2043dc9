package runlog

import "time"

// #region entry
// Entry is a single row in the prediction_runs table.
type Entry struct {
	RunID            string
	Ensemble         string
	Column           string
	Folds            int
	Events           int
	Members          int
	AugMultiplicity  int
	MeanEventLatency time.Duration
	StdErrLatency    time.Duration
	CreatedAt        time.Time
}

// #endregion entry
