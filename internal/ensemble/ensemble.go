package ensemble

import (
	"errors"
	"fmt"

	"github.com/kiryteo/lumin/internal/pipeline"
)

// #region options
// Options configures prediction.
type Options struct {
	Workers int         // concurrent member predictions; values below 1 mean 1
	Runs    RunRecorder // optional run log
	Name    string      // label written to the run log
}

// #endregion options

// #region ensemble
// Ensemble is a weighted set of predictors. It owns its member list; the
// input and output pipelines are shared references.
type Ensemble struct {
	opts       Options
	state      State
	members    []Member
	results    []Result
	nOut       int
	features   []string
	inputPipe  pipeline.Pipeline
	outputPipe pipeline.Pipeline
}

// New returns an empty ensemble.
func New(opts Options) *Ensemble {
	return &Ensemble{opts: opts}
}

// State reports the lifecycle stage.
func (e *Ensemble) State() State { return e.state }

// NOut is the output dimension, fixed at Build or Load.
func (e *Ensemble) NOut() int { return e.nOut }

// Size is the number of members.
func (e *Ensemble) Size() int { return len(e.members) }

// Members returns a copy of the member list.
func (e *Ensemble) Members() []Member {
	out := make([]Member, len(e.members))
	copy(out, e.members)
	return out
}

// Results returns the model results the ensemble was built from.
func (e *Ensemble) Results() []Result { return e.results }

// Features returns the feature names restored by Load, if any.
func (e *Ensemble) Features() []string { return e.features }

// InputPipeline returns the attached input pipeline, or nil.
func (e *Ensemble) InputPipeline() pipeline.Pipeline { return e.inputPipe }

// OutputPipeline returns the attached output pipeline, or nil.
func (e *Ensemble) OutputPipeline() pipeline.Pipeline { return e.outputPipe }

// SetInputPipeline attaches the pipeline used to preprocess inputs.
func (e *Ensemble) SetInputPipeline(p pipeline.Pipeline) { e.inputPipe = p }

// SetOutputPipeline attaches the pipeline whose inverse is applied to every
// member's raw output.
func (e *Ensemble) SetOutputPipeline(p pipeline.Pipeline) { e.outputPipe = p }

// SetRunRecorder attaches a run log.
func (e *Ensemble) SetRunRecorder(r RunRecorder) { e.opts.Runs = r }

// Close releases members that hold resources, such as remote predictor
// connections. The ensemble must not be used afterwards.
func (e *Ensemble) Close() error {
	var errs []error
	for _, m := range e.members {
		c, ok := m.Predictor.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("member %s: %w", m.Ref, err))
		}
	}
	return errors.Join(errs...)
}

// #endregion ensemble

// #region helpers
func (e *Ensemble) workers() int {
	if e.opts.Workers < 1 {
		return 1
	}
	return e.opts.Workers
}

func consistentOutputDim(members []Member) (int, error) {
	if len(members) == 0 {
		return 0, ErrNoMembers
	}
	nOut := members[0].Predictor.OutputDim()
	for _, m := range members[1:] {
		if d := m.Predictor.OutputDim(); d != nOut {
			return 0, fmt.Errorf("member %s has %d outputs, first member has %d", m.Ref, d, nOut)
		}
	}
	return nOut, nil
}

// #endregion helpers
