package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gateway-fm/gasbench/internal/bench"
)

func TestSeriesFromResults(t *testing.T) {
	results := []bench.Result{
		{Index: 0, GasUsed: 100},
		{Index: 1, GasUsed: 200},
	}
	s := SeriesFromResults("DepositContract", results)
	if s.Name != "DepositContract" {
		t.Errorf("name = %q", s.Name)
	}
	if len(s.X) != 2 || s.X[1] != 1 || s.Y[1] != 200 {
		t.Errorf("series points = %v / %v", s.X, s.Y)
	}
	if len(s.Labels) != 0 {
		t.Error("pipeline series must not carry tick labels")
	}
}

func TestSeriesFromCheckpoints(t *testing.T) {
	cps := []bench.Checkpoint{
		{K: 1, Target: 1, GasUsed: 100},
		{K: 2, Target: 3, GasUsed: 200},
	}
	s := SeriesFromCheckpoints("DepositContract", cps)
	if s.X[0] != 1 || s.X[1] != 2 {
		t.Errorf("x = %v, want exponents", s.X)
	}
	if s.Labels[1] != "3 (2^2-1)" {
		t.Errorf("label = %q", s.Labels[1])
	}
}

func TestSaveChartsSmoke(t *testing.T) {
	dir := t.TempDir()
	series := []Series{
		SeriesFromResults("A", []bench.Result{
			{Index: 0, GasUsed: 100}, {Index: 1, GasUsed: 110}, {Index: 2, GasUsed: 105},
		}),
		SeriesFromResults("B", []bench.Result{
			{Index: 0, GasUsed: 200}, {Index: 1, GasUsed: 190}, {Index: 2, GasUsed: 210},
		}),
	}

	scatter := filepath.Join(dir, "scatter.png")
	if err := SaveScatter(scatter, "test", "Call index", series); err != nil {
		t.Fatalf("scatter: %v", err)
	}
	box := filepath.Join(dir, "boxplot.png")
	if err := SaveBoxPlot(box, "test", series); err != nil {
		t.Fatalf("box plot: %v", err)
	}

	for _, path := range []string{scatter, box} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", path)
		}
	}
}
