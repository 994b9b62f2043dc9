package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/kiryteo/lumin/internal/augment"
	"github.com/kiryteo/lumin/internal/ensemble"
)

// #region hcl
type hclRunFile struct {
	Features     []string         `hcl:"features,optional"`
	Augmentation *hclAugmentation `hcl:"augmentation,block"`
	Ensemble     *hclEnsemble     `hcl:"ensemble,block"`
	Snapshot     *hclSnapshot     `hcl:"snapshot,block"`
}

type hclAugmentation struct {
	Rotation       *int     `hcl:"rotation,optional"`
	RandomRotation *bool    `hcl:"random_rotation,optional"`
	Reflect        []string `hcl:"reflect,optional"`
	TrainTime      *bool    `hcl:"train_time,optional"`
	TestTime       *bool    `hcl:"test_time,optional"`
}

type hclEnsemble struct {
	Size           int     `hcl:"size"`
	Metric         *string `hcl:"metric,optional"`
	Weighting      *string `hcl:"weighting,optional"`
	HigherIsBetter *bool   `hcl:"higher_is_better,optional"`
	TrainDir       *string `hcl:"train_dir,optional"`
}

type hclSnapshot struct {
	NCycles        *int     `hcl:"n_cycles,optional"`
	Patience       *int     `hcl:"patience,optional"`
	LoadCyclesOnly *bool    `hcl:"load_cycles_only,optional"`
	WeightingPower *float64 `hcl:"weighting_power,optional"`
}

// #endregion hcl

// #region run-file
// RunFile is a decoded run file.
type RunFile struct {
	Features   []string
	Augment    augment.Spec
	AugOptions augment.Options
	Build      ensemble.BuildOptions
	TrainDir   string
}

// LoadRunFile parses the HCL run file at path.
func LoadRunFile(path string) (*RunFile, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	return ParseRunFile(src, path)
}

// ParseRunFile decodes HCL source; filename is used in diagnostics.
func ParseRunFile(src []byte, filename string) (*RunFile, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var parsed hclRunFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	rf := &RunFile{
		Features:   parsed.Features,
		AugOptions: augment.DefaultOptions(),
		TrainDir:   ".",
	}
	if a := parsed.Augmentation; a != nil {
		if err := a.apply(rf); err != nil {
			return nil, fmt.Errorf("%s: augmentation: %w", filename, err)
		}
	}
	if e := parsed.Ensemble; e != nil {
		if err := e.apply(rf); err != nil {
			return nil, fmt.Errorf("%s: ensemble: %w", filename, err)
		}
	}
	if s := parsed.Snapshot; s != nil {
		snap := ensemble.DefaultSnapshotOptions()
		if s.NCycles != nil {
			snap.NCycles = *s.NCycles
		}
		if s.Patience != nil {
			snap.Patience = *s.Patience
		}
		if s.LoadCyclesOnly != nil {
			snap.LoadCyclesOnly = *s.LoadCyclesOnly
		}
		if s.WeightingPower != nil {
			snap.WeightingPower = *s.WeightingPower
		}
		rf.Build.Snapshot = &snap
	}
	return rf, nil
}

func (a *hclAugmentation) apply(rf *RunFile) error {
	if a.Rotation != nil {
		rf.Augment.RotationMultiplicity = *a.Rotation
	}
	if a.RandomRotation != nil {
		rf.Augment.RandomRotation = *a.RandomRotation
	}
	for _, s := range a.Reflect {
		axis, err := augment.ParseAxis(s)
		if err != nil {
			return err
		}
		rf.Augment.ReflectAxes = append(rf.Augment.ReflectAxes, axis)
	}
	if a.TrainTime != nil {
		rf.AugOptions.TrainTime = *a.TrainTime
	}
	if a.TestTime != nil {
		rf.AugOptions.TestTime = *a.TestTime
	}
	return nil
}

func (e *hclEnsemble) apply(rf *RunFile) error {
	rf.Build.Size = e.Size
	if e.Metric != nil {
		rf.Build.Metric = *e.Metric
	}
	if e.Weighting != nil {
		w, err := ensemble.ParseWeighting(*e.Weighting)
		if err != nil {
			return err
		}
		rf.Build.Weighting = w
	}
	if e.HigherIsBetter != nil {
		rf.Build.HigherIsBetter = *e.HigherIsBetter
	}
	if e.TrainDir != nil {
		rf.TrainDir = *e.TrainDir
	}
	return nil
}

// #endregion run-file
