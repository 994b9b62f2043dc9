package folds

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/kiryteo/lumin/internal/tensor"
)

func TestFixture_ExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := tempStore(t)
	in, _ := tensor.FromRows([][]float64{{1, math.NaN()}, {3, 4}})
	if err := src.WriteColumn(ctx, 0, ColumnInputs, in); err != nil {
		t.Fatalf("write inputs: %v", err)
	}
	if err := src.WriteColumn(ctx, 0, ColumnTargets, tensor.Vector([]float64{0, 1})); err != nil {
		t.Fatalf("write targets: %v", err)
	}
	if err := src.WriteColumn(ctx, 1, ColumnInputs, tensor.New(1, 2)); err != nil {
		t.Fatalf("write fold 1: %v", err)
	}

	fx, err := ExportSQLiteFixture(ctx, src)
	if err != nil {
		t.Fatalf("ExportSQLiteFixture: %v", err)
	}
	if len(fx.Folds) != 2 {
		t.Fatalf("expected 2 folds, got %d", len(fx.Folds))
	}
	if _, ok := fx.Folds[1].Columns[ColumnTargets]; ok {
		t.Fatalf("fold 1 has no targets column")
	}
	if fx.Folds[0].Columns[ColumnInputs].Data[1] != nil {
		t.Fatalf("NaN should export as null")
	}

	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := WriteFixture(path, fx); err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}
	loaded, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	dst := NewMemoryStore()
	if err := ImportFixture(ctx, dst, loaded); err != nil {
		t.Fatalf("ImportFixture: %v", err)
	}
	n, _ := dst.FoldCount(ctx)
	if n != 2 {
		t.Fatalf("expected 2 folds after import, got %d", n)
	}
	got, ok, err := dst.ReadColumn(ctx, 0, ColumnInputs)
	if err != nil || !ok {
		t.Fatalf("read inputs: ok=%v err=%v", ok, err)
	}
	if got.At(0, 0) != 1 || !math.IsNaN(got.At(0, 1)) || got.At(1, 1) != 4 {
		t.Fatalf("unexpected inputs %v", got.Data)
	}
	tg, _, _ := dst.ReadColumn(ctx, 0, ColumnTargets)
	if !tg.Squeezed {
		t.Fatalf("targets should stay squeezed")
	}
}

func TestFixture_ImportRejectsBadShape(t *testing.T) {
	one := 1.0
	fx := Fixture{Folds: []FixtureFold{{ID: 0, Columns: map[string]FixtureColumn{
		ColumnInputs: {Rows: 2, Cols: 2, Data: []*float64{&one}},
	}}}}
	if err := ImportFixture(context.Background(), NewMemoryStore(), fx); err == nil {
		t.Fatalf("expected shape error")
	}
}

func TestLoadFixture_Missing(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatalf("expected error")
	}
}
