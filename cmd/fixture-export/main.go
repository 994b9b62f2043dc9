package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/kiryteo/lumin/internal/folds"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to a fold store")
	outPath := flag.String("out", "", "output fixture JSON path")
	columns := flag.String("columns", "", "comma-separated columns to export (default all)")
	description := flag.String("description", "", "description stored in the fixture")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/folds.db --out path/to/fixture.json [--columns inputs,targets]")
		os.Exit(2)
	}

	if err := run(*dbPath, *outPath, *columns, *description); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath, outPath, columns, description string) error {
	store, err := folds.OpenSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	var fx folds.Fixture
	if columns == "" {
		fx, err = folds.ExportSQLiteFixture(ctx, store)
	} else {
		fx, err = folds.ExportFixture(ctx, store, strings.Split(columns, ","))
	}
	if err != nil {
		return err
	}
	fx.Description = description

	if err := folds.WriteFixture(outPath, fx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported %d folds to %s\n", len(fx.Folds), outPath)
	return nil
}

// #endregion export
