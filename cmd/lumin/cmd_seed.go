package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiryteo/lumin/internal/ctxlog"
	"github.com/kiryteo/lumin/internal/folds"
)

// #region seed

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	fx, err := folds.LoadFixture(fixturePath)
	if err != nil {
		return err
	}
	path := dbPath
	if path == "" {
		path = env.DB
	}
	store, err := folds.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := folds.ImportFixture(ctx, store, fx); err != nil {
		return fmt.Errorf("import fixture: %w", err)
	}
	ctxlog.FromContext(ctx).Info("Fold store seeded", "db", path, "folds", len(fx.Folds))
	return nil
}

// #endregion seed
