package fitdb

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/grain-metrics/laguerre/internal/fit"
	"github.com/grain-metrics/laguerre/internal/geom"
)

// openTestStore opens a fresh database file under a temp directory.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "fit.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenAppliesPragmasAndSchema(t *testing.T) {
	store := openTestStore(t)

	var mode string
	if err := store.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var fk int
	if err := store.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}

	for _, table := range []string{"fit_runs", "fit_iterations", "fit_generators"} {
		var name string
		err := store.QueryRow(
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestStore_RunLifecycle(t *testing.T) {
	store := openTestStore(t)

	run := &Run{
		VolumePath: "volumes/steel-800c",
		Cells:      64,
		Samples:    4000,
		Rho:        0.05,
		Seed:       7,
	}
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.RunID == "" {
		t.Error("expected run_id to be generated")
	}
	if run.StartedAtNs == 0 {
		t.Error("expected started_at_ns to be set")
	}

	got, err := store.GetRun(run.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != "running" {
		t.Errorf("status = %q, want running", got.Status)
	}
	if got.VolumePath != run.VolumePath {
		t.Errorf("volume_path = %q, want %q", got.VolumePath, run.VolumePath)
	}
	if got.FinalCost != nil || got.CompletedAtNs != nil {
		t.Error("expected completion fields to be unset while running")
	}

	trace := []fit.Progress{
		{Iteration: 1, MaxSigmaCoord: 0.5, MaxSigmaRadius: 0.25, MuCost: 1.5, EliteMin: 1.25, EliteMax: 2.5},
		{Iteration: 2, MaxSigmaCoord: 0.375, MaxSigmaRadius: 0.125, MuCost: 0.75, EliteMin: 0.5, EliteMax: 1.5, Injected: true},
	}
	for _, p := range trace {
		if err := store.RecordIteration(run.RunID, p); err != nil {
			t.Fatalf("RecordIteration %d failed: %v", p.Iteration, err)
		}
	}

	res := &fit.Result{Cost: 0.0125, Iterations: 2, Injections: 1, Status: fit.StatusTerminated}
	if err := store.CompleteRun(run.RunID, res); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}

	got, err = store.GetRun(run.RunID)
	if err != nil {
		t.Fatalf("GetRun after completion failed: %v", err)
	}
	if got.CompletedAtNs == nil {
		t.Fatal("expected completed_at_ns to be set")
	}
	finalCost := 0.0125
	iterations := int64(2)
	injections := int64(1)
	want := &Run{
		RunID:         run.RunID,
		VolumePath:    run.VolumePath,
		Cells:         run.Cells,
		Samples:       run.Samples,
		Rho:           run.Rho,
		Seed:          run.Seed,
		Status:        "terminated",
		FinalCost:     &finalCost,
		Iterations:    &iterations,
		Injections:    &injections,
		StartedAtNs:   run.StartedAtNs,
		CompletedAtNs: got.CompletedAtNs,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}

	loaded, err := store.Iterations(run.RunID)
	if err != nil {
		t.Fatalf("Iterations failed: %v", err)
	}
	if len(loaded) != len(trace) {
		t.Fatalf("expected %d iterations, got %d", len(trace), len(loaded))
	}
	for i, p := range trace {
		if loaded[i] != p {
			t.Errorf("iteration %d mismatch: got %+v, want %+v", i, loaded[i], p)
		}
	}
}

func TestStore_CompleteRunNotFound(t *testing.T) {
	store := openTestStore(t)

	res := &fit.Result{Cost: 1, Iterations: 1, Status: fit.StatusConverged}
	err := store.CompleteRun("no-such-run", res)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not-found error, got %v", err)
	}

	if _, err := store.GetRun("no-such-run"); err == nil {
		t.Error("expected GetRun to fail for unknown run")
	}
}

func TestStore_SaveLoadGenerators(t *testing.T) {
	store := openTestStore(t)

	run := &Run{VolumePath: "v", Cells: 3, Samples: 100, Rho: 0.1, Seed: 1}
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	gens := []*geom.Weighted{
		{Center: geom.Vec3{X: 1.5, Y: 2, Z: 2.5}, R: 3},
		nil,
		{Center: geom.Vec3{X: 1.0 / 3, Y: -1, Z: 4}, R: math.Sqrt2},
	}
	if err := store.SaveGenerators(run.RunID, gens); err != nil {
		t.Fatalf("SaveGenerators failed: %v", err)
	}

	loaded, err := store.LoadGenerators(run.RunID)
	if err != nil {
		t.Fatalf("LoadGenerators failed: %v", err)
	}
	if len(loaded) != len(gens) {
		t.Fatalf("expected %d entries, got %d", len(gens), len(loaded))
	}
	if loaded[1] != nil {
		t.Error("expected label 2 to stay absent")
	}
	for _, i := range []int{0, 2} {
		if loaded[i] == nil {
			t.Fatalf("generator %d missing", i)
		}
		if *loaded[i] != *gens[i] {
			t.Errorf("generator %d mismatch: got %+v, want %+v", i, *loaded[i], *gens[i])
		}
	}
}

func TestStore_SaveGeneratorsReplaces(t *testing.T) {
	store := openTestStore(t)

	run := &Run{VolumePath: "v", Cells: 3, Samples: 100, Rho: 0.1, Seed: 1}
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	first := []*geom.Weighted{
		{Center: geom.Vec3{X: 1, Y: 1, Z: 1}, R: 1},
		{Center: geom.Vec3{X: 2, Y: 2, Z: 2}, R: 1},
		{Center: geom.Vec3{X: 3, Y: 3, Z: 3}, R: 1},
	}
	if err := store.SaveGenerators(run.RunID, first); err != nil {
		t.Fatalf("first SaveGenerators failed: %v", err)
	}

	second := []*geom.Weighted{
		{Center: geom.Vec3{X: 9, Y: 9, Z: 9}, R: 2},
		nil,
	}
	if err := store.SaveGenerators(run.RunID, second); err != nil {
		t.Fatalf("second SaveGenerators failed: %v", err)
	}

	loaded, err := store.LoadGenerators(run.RunID)
	if err != nil {
		t.Fatalf("LoadGenerators failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 entries after replace, got %d", len(loaded))
	}
	if loaded[0] == nil || *loaded[0] != *second[0] {
		t.Errorf("generator 0 mismatch: got %+v, want %+v", loaded[0], *second[0])
	}
	if loaded[1] != nil {
		t.Error("expected label 2 to be absent after replace")
	}
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	store := openTestStore(t)

	early := &Run{VolumePath: "early", Cells: 1, Samples: 10, Rho: 0.5, Seed: 1, StartedAtNs: 100}
	late := &Run{VolumePath: "late", Cells: 1, Samples: 10, Rho: 0.5, Seed: 2, StartedAtNs: 200}
	for _, run := range []*Run{early, late} {
		if err := store.CreateRun(run); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
	}

	runs, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].VolumePath != "late" || runs[1].VolumePath != "early" {
		t.Errorf("expected newest run first, got %s then %s",
			runs[0].VolumePath, runs[1].VolumePath)
	}
}

func TestStore_EmptyQueries(t *testing.T) {
	store := openTestStore(t)

	runs, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}

	gens, err := store.LoadGenerators("no-such-run")
	if err != nil {
		t.Fatalf("LoadGenerators failed: %v", err)
	}
	if len(gens) != 0 {
		t.Errorf("expected no generators, got %d", len(gens))
	}

	trace, err := store.Iterations("no-such-run")
	if err != nil {
		t.Fatalf("Iterations failed: %v", err)
	}
	if len(trace) != 0 {
		t.Errorf("expected no iterations, got %d", len(trace))
	}
}

func TestOpenReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fit.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	run := &Run{VolumePath: "persisted", Cells: 8, Samples: 500, Rho: 0.05, Seed: 3}
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopening must tolerate already-applied migrations.
	store, err = Open(path)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer store.Close()

	got, err := store.GetRun(run.RunID)
	if err != nil {
		t.Fatalf("GetRun after reopen failed: %v", err)
	}
	if got.VolumePath != "persisted" {
		t.Errorf("volume_path = %q, want persisted", got.VolumePath)
	}
}
