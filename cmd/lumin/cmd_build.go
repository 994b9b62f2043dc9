package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kiryteo/lumin/internal/config"
	"github.com/kiryteo/lumin/internal/ctxlog"
	"github.com/kiryteo/lumin/internal/ensemble"
	"github.com/kiryteo/lumin/internal/model"
	"github.com/kiryteo/lumin/internal/pipeline"
)

// #region build

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := ctxlog.FromContext(ctx)

	if runPath == "" {
		return fmt.Errorf("--run is required")
	}
	rf, err := config.LoadRunFile(runPath)
	if err != nil {
		return err
	}
	results, err := readResults(resultsPath)
	if err != nil {
		return err
	}

	e := ensemble.New(ensemble.Options{Workers: env.Workers})
	loader := model.DirLoader{Dir: rf.TrainDir, Codec: codec()}
	notices, err := e.Build(ctx, results, loader, rf.Build)
	for _, n := range notices {
		logger.Warn("Build setting overridden", "field", n.Field, "message", n.Message)
	}
	if err != nil {
		return fmt.Errorf("build ensemble: %w", err)
	}

	if inputPipePath != "" {
		p, err := readPipeline(inputPipePath)
		if err != nil {
			return err
		}
		e.SetInputPipeline(p)
	}
	if outputPipePath != "" {
		p, err := readPipeline(outputPipePath)
		if err != nil {
			return err
		}
		e.SetOutputPipeline(p)
	}

	if err := e.Save(ctx, ensemblePath, rf.Features, overwrite); err != nil {
		return fmt.Errorf("save ensemble: %w", err)
	}

	for _, m := range e.Members() {
		fmt.Fprintf(cmd.OutOrStdout(), "%-16s %.6f\n", m.Ref, m.Weight)
	}
	return nil
}

func readResults(path string) ([]ensemble.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	var results []ensemble.Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	return results, nil
}

func readPipeline(path string) (pipeline.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline: %w", err)
	}
	return pipeline.Unmarshal(data)
}

// #endregion build
