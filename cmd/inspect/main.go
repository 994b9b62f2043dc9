package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/kiryteo/lumin/internal/ensemble"
	"github.com/kiryteo/lumin/internal/folds"
	"github.com/kiryteo/lumin/internal/runlog"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to a fold store")
	last := flag.Int("last", 20, "show N most recent prediction runs")
	runs := flag.Bool("runs", false, "list prediction runs instead of columns")
	column := flag.String("column", "", "show per-fold statistics of one column")
	ensemblePath := flag.String("ensemble", "", "show the manifest of a saved ensemble")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *ensemblePath != "" {
		if err := runManifestMode(*ensemblePath, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/folds.db [--runs] [--last N] [--column name] [--json]")
		fmt.Fprintln(os.Stderr, "       inspect --ensemble path/to/ensemble [--json]")
		os.Exit(2)
	}

	store, err := folds.OpenSQLite(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	switch {
	case *runs:
		err = runRunsMode(ctx, store, *last, *jsonOut)
	case *column != "":
		err = runColumnMode(ctx, store, *column, *jsonOut)
	default:
		err = runListMode(ctx, store, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

func runListMode(ctx context.Context, store *folds.SQLiteStore, jsonOut bool) error {
	cols, err := store.ListColumns(ctx)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		fmt.Fprintln(os.Stderr, "no folds found")
		return nil
	}
	if jsonOut {
		return printJSON(cols)
	}

	fmt.Printf("%-6s  %-16s  %8s  %6s  %s\n", "Fold", "Column", "Rows", "Cols", "Shape")
	fmt.Printf("%-6s+-%-16s+-%8s+-%6s+-%s\n", "------", "----------------", "--------", "------", "-------")
	for _, c := range cols {
		shape := "matrix"
		if c.Squeezed {
			shape = "vector"
		}
		fmt.Printf("%-6d  %-16s  %8d  %6d  %s\n", c.FoldID, c.Name, c.Rows, c.Cols, shape)
	}
	return nil
}

// #endregion list-mode

// #region column-mode

type columnRow struct {
	FoldID int     `json:"fold_id"`
	Rows   int     `json:"rows"`
	Cols   int     `json:"cols"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	NaN    int     `json:"nan"`
}

func runColumnMode(ctx context.Context, store *folds.SQLiteStore, name string, jsonOut bool) error {
	n, err := store.FoldCount(ctx)
	if err != nil {
		return err
	}
	var rows []columnRow
	for id := 0; id < n; id++ {
		m, ok, err := store.ReadColumn(ctx, id, name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		r := columnRow{FoldID: id, Rows: m.Rows, Cols: m.Cols}
		r.Mean, r.Min, r.Max, r.NaN = summarize(m.Data)
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		return fmt.Errorf("no fold has a %q column", name)
	}
	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-6s  %8s  %12s  %12s  %12s  %5s\n", "Fold", "Rows", "Mean", "Min", "Max", "NaN")
	for _, r := range rows {
		fmt.Printf("%-6d  %8d  %12.5g  %12.5g  %12.5g  %5d\n", r.FoldID, r.Rows, r.Mean, r.Min, r.Max, r.NaN)
	}
	return nil
}

func summarize(v []float64) (mean, lo, hi float64, nan int) {
	lo, hi = math.Inf(1), math.Inf(-1)
	var sum float64
	var n int
	for _, x := range v {
		if math.IsNaN(x) {
			nan++
			continue
		}
		sum += x
		n++
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	if n == 0 {
		return math.NaN(), math.NaN(), math.NaN(), nan
	}
	return sum / float64(n), lo, hi, nan
}

// #endregion column-mode

// #region runs-mode

type runRow struct {
	RunID       string  `json:"run_id"`
	Ensemble    string  `json:"ensemble"`
	Column      string  `json:"column"`
	Folds       int     `json:"folds"`
	Events      int     `json:"events"`
	Members     int     `json:"members"`
	Views       int     `json:"aug_multiplicity"`
	MeanLatency float64 `json:"mean_event_latency_s"`
	StdErr      float64 `json:"stderr_event_latency_s"`
	CreatedAt   string  `json:"created_at"`
}

func runRunsMode(ctx context.Context, store *folds.SQLiteStore, last int, jsonOut bool) error {
	log, err := runlog.New(store.DB(), "")
	if err != nil {
		return err
	}
	entries, err := log.Recent(ctx, last)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no prediction runs found")
		return nil
	}

	rows := make([]runRow, len(entries))
	for i, e := range entries {
		rows[i] = runRow{
			RunID:       e.RunID,
			Ensemble:    e.Ensemble,
			Column:      e.Column,
			Folds:       e.Folds,
			Events:      e.Events,
			Members:     e.Members,
			Views:       e.AugMultiplicity,
			MeanLatency: e.MeanEventLatency.Seconds(),
			StdErr:      e.StdErrLatency.Seconds(),
			CreatedAt:   e.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}
	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-10s  %-14s  %-8s  %5s  %8s  %7s  %5s  %-22s  %s\n",
		"Run", "Ensemble", "Column", "Folds", "Events", "Members", "Views", "Latency/event", "Time")
	for _, r := range rows {
		latency := fmt.Sprintf("%s ± %s",
			time.Duration(r.MeanLatency*float64(time.Second)), time.Duration(r.StdErr*float64(time.Second)))
		fmt.Printf("%-10s  %-14s  %-8s  %5d  %8d  %7d  %5d  %-22s  %s\n",
			shortID(r.RunID), r.Ensemble, r.Column, r.Folds, r.Events, r.Members, r.Views, latency, r.CreatedAt)
	}
	return nil
}

// #endregion runs-mode

// #region manifest-mode

func runManifestMode(dest string, jsonOut bool) error {
	m, err := ensemble.ReadManifest(dest)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(m)
	}

	fmt.Printf("Name:     %s\n", m.Name)
	fmt.Printf("Version:  %d\n", m.Version)
	fmt.Printf("Members:  %d\n", m.Size)
	fmt.Printf("Outputs:  %d\n", m.NOut)
	fmt.Printf("Created:  %s\n", m.CreatedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Printf("\nArtifacts:\n")
	for _, a := range m.Artifacts {
		ref := ""
		if a.Role == ensemble.RoleMember {
			ref = fmt.Sprintf("#%d %s", a.Index, a.Ref)
		}
		fmt.Printf("  %-12s %-28s %s\n", a.Role, a.File, ref)
	}
	return nil
}

// #endregion manifest-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
