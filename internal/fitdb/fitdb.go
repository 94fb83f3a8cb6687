// Package fitdb persists fitting runs to SQLite: run metadata, the
// per-iteration optimizer trace, and the fitted generator configuration.
// Open applies the embedded schema migrations before returning, so a fresh
// database file is ready to use.
package fitdb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/grain-metrics/laguerre/internal/fit"
	"github.com/grain-metrics/laguerre/internal/geom"
	"github.com/grain-metrics/laguerre/internal/monitoring"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store wraps a SQLite database holding fitting runs.
type Store struct {
	*sql.DB
}

// Open opens (or creates) the database at path and brings its schema up to
// date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	s := &Store{db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// migrateUp applies all pending migrations from the embedded filesystem.
func (s *Store) migrateUp() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// Note: We don't close m here because it would close the underlying DB
	// connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}

// migrateLogger implements migrate.Logger on top of the package logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Run describes one fitting run. FinalCost, Iterations, Injections and
// CompletedAtNs are nil until the run completes.
type Run struct {
	RunID         string   `json:"run_id"`
	VolumePath    string   `json:"volume_path"`
	Cells         int      `json:"cells"`
	Samples       int      `json:"samples"`
	Rho           float64  `json:"rho"`
	Seed          int64    `json:"seed"`
	Status        string   `json:"status"`
	FinalCost     *float64 `json:"final_cost,omitempty"`
	Iterations    *int64   `json:"iterations,omitempty"`
	Injections    *int64   `json:"injections,omitempty"`
	StartedAtNs   int64    `json:"started_at_ns"`
	CompletedAtNs *int64   `json:"completed_at_ns,omitempty"`
}

// CreateRun inserts a new run row. If run.RunID is empty, a new UUID is
// generated; an unset start time defaults to now and an unset status to
// "running".
func (s *Store) CreateRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.StartedAtNs == 0 {
		run.StartedAtNs = time.Now().UnixNano()
	}
	if run.Status == "" {
		run.Status = "running"
	}

	query := `
		INSERT INTO fit_runs (
			run_id, volume_path, cells, samples, rho, seed,
			status, started_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.Exec(query,
		run.RunID,
		run.VolumePath,
		run.Cells,
		run.Samples,
		run.Rho,
		run.Seed,
		run.Status,
		run.StartedAtNs,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	return nil
}

// RecordIteration appends one optimizer iteration to a run's trace.
func (s *Store) RecordIteration(runID string, p fit.Progress) error {
	query := `
		INSERT INTO fit_iterations (
			run_id, iteration, max_sigma_coord, max_sigma_radius,
			mu_cost, elite_min, elite_max, injected
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.Exec(query,
		runID,
		p.Iteration,
		p.MaxSigmaCoord,
		p.MaxSigmaRadius,
		p.MuCost,
		p.EliteMin,
		p.EliteMax,
		p.Injected,
	)
	if err != nil {
		return fmt.Errorf("insert iteration %d: %w", p.Iteration, err)
	}

	return nil
}

// CompleteRun marks a run finished and records its outcome.
func (s *Store) CompleteRun(runID string, res *fit.Result) error {
	query := `
		UPDATE fit_runs
		SET status = ?,
		    final_cost = ?,
		    iterations = ?,
		    injections = ?,
		    completed_at_ns = ?
		WHERE run_id = ?
	`

	result, err := s.Exec(query,
		res.Status.String(),
		res.Cost,
		res.Iterations,
		res.Injections,
		time.Now().UnixNano(),
		runID,
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(runID string) (*Run, error) {
	query := `
		SELECT run_id, volume_path, cells, samples, rho, seed,
		       status, final_cost, iterations, injections,
		       started_at_ns, completed_at_ns
		FROM fit_runs
		WHERE run_id = ?
	`

	var run Run
	var finalCost sql.NullFloat64
	var iterations, injections, completedAtNs sql.NullInt64

	err := s.QueryRow(query, runID).Scan(
		&run.RunID,
		&run.VolumePath,
		&run.Cells,
		&run.Samples,
		&run.Rho,
		&run.Seed,
		&run.Status,
		&finalCost,
		&iterations,
		&injections,
		&run.StartedAtNs,
		&completedAtNs,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	if finalCost.Valid {
		v := finalCost.Float64
		run.FinalCost = &v
	}
	if iterations.Valid {
		v := iterations.Int64
		run.Iterations = &v
	}
	if injections.Valid {
		v := injections.Int64
		run.Injections = &v
	}
	if completedAtNs.Valid {
		v := completedAtNs.Int64
		run.CompletedAtNs = &v
	}

	return &run, nil
}

// ListRuns retrieves all runs, newest first.
func (s *Store) ListRuns() ([]*Run, error) {
	query := `
		SELECT run_id, volume_path, cells, samples, rho, seed,
		       status, final_cost, iterations, injections,
		       started_at_ns, completed_at_ns
		FROM fit_runs
		ORDER BY started_at_ns DESC
	`

	rows, err := s.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var finalCost sql.NullFloat64
		var iterations, injections, completedAtNs sql.NullInt64

		err := rows.Scan(
			&run.RunID,
			&run.VolumePath,
			&run.Cells,
			&run.Samples,
			&run.Rho,
			&run.Seed,
			&run.Status,
			&finalCost,
			&iterations,
			&injections,
			&run.StartedAtNs,
			&completedAtNs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}

		if finalCost.Valid {
			v := finalCost.Float64
			run.FinalCost = &v
		}
		if iterations.Valid {
			v := iterations.Int64
			run.Iterations = &v
		}
		if injections.Valid {
			v := injections.Int64
			run.Injections = &v
		}
		if completedAtNs.Valid {
			v := completedAtNs.Int64
			run.CompletedAtNs = &v
		}

		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs rows: %w", err)
	}

	return runs, nil
}

// Iterations returns a run's recorded optimizer trace in iteration order.
// Only the per-iteration injection flag is stored; the cumulative injection
// count lives on the run row, so Progress.Injections is left zero.
func (s *Store) Iterations(runID string) ([]fit.Progress, error) {
	query := `
		SELECT iteration, max_sigma_coord, max_sigma_radius,
		       mu_cost, elite_min, elite_max, injected
		FROM fit_iterations
		WHERE run_id = ?
		ORDER BY iteration
	`

	rows, err := s.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	defer rows.Close()

	var trace []fit.Progress
	for rows.Next() {
		var p fit.Progress
		err := rows.Scan(
			&p.Iteration,
			&p.MaxSigmaCoord,
			&p.MaxSigmaRadius,
			&p.MuCost,
			&p.EliteMin,
			&p.EliteMax,
			&p.Injected,
		)
		if err != nil {
			return nil, fmt.Errorf("scan iteration row: %w", err)
		}
		trace = append(trace, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list iterations rows: %w", err)
	}

	return trace, nil
}

// SaveGenerators stores a fitted configuration for a run, replacing any
// previously saved one. Nil entries are recorded as absent so a later load
// restores the same slice shape.
func (s *Store) SaveGenerators(runID string, gens []*geom.Weighted) error {
	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("begin save generators: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM fit_generators WHERE run_id = ?`, runID); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear generators: %w", err)
	}

	query := `
		INSERT INTO fit_generators (run_id, label, x, y, z, radius, absent)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for i, g := range gens {
		label := i + 1
		var err error
		if g == nil {
			_, err = tx.Exec(query, runID, label, nil, nil, nil, nil, true)
		} else {
			_, err = tx.Exec(query, runID, label,
				g.Center.X, g.Center.Y, g.Center.Z, g.R, false)
		}
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert generator %d: %w", label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit generators: %w", err)
	}

	return nil
}

// LoadGenerators restores the generator configuration saved for a run. The
// returned slice is indexed by label-1 with nil entries for absent cells; it
// is empty when nothing was saved.
func (s *Store) LoadGenerators(runID string) ([]*geom.Weighted, error) {
	query := `
		SELECT label, x, y, z, radius, absent
		FROM fit_generators
		WHERE run_id = ?
		ORDER BY label
	`

	rows, err := s.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("load generators: %w", err)
	}
	defer rows.Close()

	var gens []*geom.Weighted
	for rows.Next() {
		var label int
		var x, y, z, radius sql.NullFloat64
		var absent bool

		if err := rows.Scan(&label, &x, &y, &z, &radius, &absent); err != nil {
			return nil, fmt.Errorf("scan generator row: %w", err)
		}
		if label < 1 {
			return nil, fmt.Errorf("bad generator label %d", label)
		}

		for len(gens) < label {
			gens = append(gens, nil)
		}
		if absent {
			continue
		}
		gens[label-1] = &geom.Weighted{
			Center: geom.Vec3{X: x.Float64, Y: y.Float64, Z: z.Float64},
			R:      radius.Float64,
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load generators rows: %w", err)
	}

	return gens, nil
}
