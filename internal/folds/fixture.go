package folds

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/kiryteo/lumin/internal/tensor"
)

// #region fixture-types

// Fixture is the JSON form of a whole fold store.
type Fixture struct {
	Description string        `json:"description,omitempty"`
	Folds       []FixtureFold `json:"folds"`
}

// FixtureFold holds the columns of one fold, keyed by name.
type FixtureFold struct {
	ID      int                      `json:"id"`
	Columns map[string]FixtureColumn `json:"columns"`
}

// FixtureColumn is one stored matrix. Non-finite values are written as null
// and read back as NaN.
type FixtureColumn struct {
	Rows     int        `json:"rows"`
	Cols     int        `json:"cols"`
	Squeezed bool       `json:"squeezed,omitempty"`
	Data     []*float64 `json:"data"`
}

// #endregion fixture-types

// #region export

// ExportFixture reads every column of every fold. names lists the columns to
// look for in each fold.
func ExportFixture(ctx context.Context, s Store, names []string) (Fixture, error) {
	n, err := s.FoldCount(ctx)
	if err != nil {
		return Fixture{}, err
	}
	fx := Fixture{Folds: make([]FixtureFold, 0, n)}
	for id := 0; id < n; id++ {
		ff := FixtureFold{ID: id, Columns: map[string]FixtureColumn{}}
		for _, name := range names {
			m, ok, err := s.ReadColumn(ctx, id, name)
			if err != nil {
				return Fixture{}, fmt.Errorf("fold %d column %s: %w", id, name, err)
			}
			if ok {
				ff.Columns[name] = toFixtureColumn(m)
			}
		}
		fx.Folds = append(fx.Folds, ff)
	}
	return fx, nil
}

// ExportSQLiteFixture exports every column the store lists.
func ExportSQLiteFixture(ctx context.Context, s *SQLiteStore) (Fixture, error) {
	infos, err := s.ListColumns(ctx)
	if err != nil {
		return Fixture{}, err
	}
	seen := map[string]bool{}
	var names []string
	for _, ci := range infos {
		if !seen[ci.Name] {
			seen[ci.Name] = true
			names = append(names, ci.Name)
		}
	}
	sort.Strings(names)
	return ExportFixture(ctx, s, names)
}

func toFixtureColumn(m tensor.Matrix) FixtureColumn {
	fc := FixtureColumn{Rows: m.Rows, Cols: m.Cols, Squeezed: m.Squeezed, Data: make([]*float64, len(m.Data))}
	for i, v := range m.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		v := v
		fc.Data[i] = &v
	}
	return fc
}

// #endregion export

// #region import

// ImportFixture writes every column of fx into s.
func ImportFixture(ctx context.Context, s Store, fx Fixture) error {
	for _, ff := range fx.Folds {
		names := make([]string, 0, len(ff.Columns))
		for name := range ff.Columns {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			m, err := ff.Columns[name].matrix()
			if err != nil {
				return fmt.Errorf("fold %d column %s: %w", ff.ID, name, err)
			}
			if err := s.WriteColumn(ctx, ff.ID, name, m); err != nil {
				return err
			}
		}
	}
	return nil
}

func (fc FixtureColumn) matrix() (tensor.Matrix, error) {
	m := tensor.Matrix{Rows: fc.Rows, Cols: fc.Cols, Squeezed: fc.Squeezed, Data: make([]float64, len(fc.Data))}
	for i, v := range fc.Data {
		if v == nil {
			m.Data[i] = math.NaN()
			continue
		}
		m.Data[i] = *v
	}
	if err := m.Validate(); err != nil {
		return tensor.Matrix{}, err
	}
	return m, nil
}

// #endregion import

// #region files

// LoadFixture reads a fixture JSON file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var fx Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	return fx, nil
}

// WriteFixture writes fx as indented JSON.
func WriteFixture(path string, fx Fixture) error {
	data, err := json.MarshalIndent(fx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// #endregion files
