package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kiryteo/lumin/internal/augment"
	"github.com/kiryteo/lumin/internal/config"
	"github.com/kiryteo/lumin/internal/ctxlog"
	"github.com/kiryteo/lumin/internal/ensemble"
	"github.com/kiryteo/lumin/internal/folds"
	"github.com/kiryteo/lumin/internal/runlog"
)

// #region predict

func runPredict(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := ctxlog.FromContext(ctx)

	path := dbPath
	if path == "" {
		path = env.DB
	}
	store, err := folds.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer store.Close()

	name := filepath.Base(filepath.Clean(ensemblePath))
	runs, err := runlog.New(store.DB(), name)
	if err != nil {
		return err
	}

	e := ensemble.New(ensemble.Options{Workers: env.Workers, Runs: runs, Name: name})
	if err := e.Load(ctx, ensemblePath, codec()); err != nil {
		return fmt.Errorf("load ensemble: %w", err)
	}
	defer e.Close()

	src := augment.Plain(store)
	if runPath != "" {
		rf, err := config.LoadRunFile(runPath)
		if err != nil {
			return err
		}
		features := rf.Features
		if len(features) == 0 {
			features = e.Features()
		}
		var notices []augment.Notice
		src, notices = augment.NewYielder(store, features, rf.Augment, rf.AugOptions)
		for _, n := range notices {
			logger.Warn("Augmentation setting overridden", "field", n.Field, "message", n.Message)
		}
	}

	report, err := e.PredictFoldStore(ctx, src, nMembers, column)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d folds, %d events, %d members, %d views, %s ± %s per event\n",
		report.RunID, report.Folds, report.Events, report.Members, report.AugMultiplicity,
		report.MeanEventLatency, report.StdErrLatency)
	return nil
}

// #endregion predict
