// Command laguerre-fit fits a weighted-generator Laguerre tessellation to a
// labeled 3D grain volume stored as a stack of slice images.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/grain-metrics/laguerre/internal/config"
	"github.com/grain-metrics/laguerre/internal/cost"
	"github.com/grain-metrics/laguerre/internal/extract"
	"github.com/grain-metrics/laguerre/internal/fit"
	"github.com/grain-metrics/laguerre/internal/fitdb"
	"github.com/grain-metrics/laguerre/internal/fsutil"
	"github.com/grain-metrics/laguerre/internal/monitor"
	"github.com/grain-metrics/laguerre/internal/monitoring"
	"github.com/grain-metrics/laguerre/internal/parallel"
	"github.com/grain-metrics/laguerre/internal/version"
	"github.com/grain-metrics/laguerre/internal/volume"
)

var (
	volumeDir   = flag.String("volume", "", "Directory of labeled slice images (required)")
	outFile     = flag.String("out", "generators.txt", "Output file for the fitted generators")
	configFile  = flag.String("config", "", "JSON tuning file")
	testPoints  = flag.Int("test-points", extract.DefaultTestPointsPerFace, "Test points sampled per interface")
	strict      = flag.Float64("strictness", extract.DefaultStrictness, "Planarity threshold for interface fitting")
	samples     = flag.Int("samples", 4000, "Sampled configurations per iteration")
	rho         = flag.Float64("rho", 0.05, "Elite fraction of samples")
	injections  = flag.Int("injections", -1, "Variance injection budget (-1 unlimited, 0 off)")
	seed        = flag.Int64("seed", 1, "Random seed")
	parallelism = flag.Int("parallelism", 0, "Worker count (0 = all CPUs)")
	dbPath      = flag.String("db", "", "Optional SQLite file recording the run")
	plotPath    = flag.String("plot", "", "Optional convergence plot PNG")
	reportPath  = flag.String("report", "", "Optional HTML report")
	quiet       = flag.Bool("quiet", false, "Suppress progress logging")
	verbose     = flag.Bool("v", false, "Log every optimizer iteration")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// runOptions carries the non-tuning CLI inputs.
type runOptions struct {
	VolumeDir  string
	OutFile    string
	DBPath     string
	PlotPath   string
	ReportPath string
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *quiet {
		monitoring.SetLogger(nil)
	}
	monitoring.SetVerbose(*verbose)
	if *volumeDir == "" {
		log.Fatal("-volume is required")
	}

	cfg := config.Empty()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(*configFile)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid parameters: %v", err)
	}

	opts := runOptions{
		VolumeDir:  *volumeDir,
		OutFile:    *outFile,
		DBPath:     *dbPath,
		PlotPath:   *plotPath,
		ReportPath: *reportPath,
	}
	if err := run(fsutil.OSFileSystem{}, cfg, opts); err != nil {
		log.Fatalf("%v", err)
	}
}

// applyFlagOverrides copies explicitly-set tuning flags into cfg, so the
// command line wins over the config file.
func applyFlagOverrides(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "test-points":
			cfg.TestPointsPerFace = testPoints
		case "strictness":
			cfg.Strictness = strict
		case "samples":
			cfg.Samples = samples
		case "rho":
			cfg.Rho = rho
		case "injections":
			cfg.Injections = injections
		case "seed":
			cfg.Seed = seed
		case "parallelism":
			cfg.Parallelism = parallelism
		}
	})
}

// run executes the full pipeline: load the volume, extract interfaces, fit
// generators, then write the requested artifacts.
func run(fsys fsutil.FileSystem, cfg *config.Config, opts runOptions) error {
	start := time.Now()

	vol, err := volume.LoadSliceDir(fsys, opts.VolumeDir)
	if err != nil {
		return fmt.Errorf("load volume: %w", err)
	}
	nx, ny, nz := vol.Dims()
	monitoring.Logf("loaded volume %dx%dx%d from %s (%d labels)", nx, ny, nz, opts.VolumeDir, vol.MaxLabel())

	in, err := extract.Extract(vol, cfg.ExtractOptions())
	if err != nil {
		return fmt.Errorf("extract interfaces: %w", err)
	}

	eval := cost.New(in)
	runner := parallel.NewRunner(cfg.GetParallelism())
	fitter := fit.New(in, eval, runner, cfg.FitParams())

	recorder := monitor.NewRecorder()

	var store *fitdb.Store
	var runID string
	if opts.DBPath != "" {
		store, err = fitdb.Open(opts.DBPath)
		if err != nil {
			return fmt.Errorf("open run database: %w", err)
		}
		defer store.Close()

		rec := &fitdb.Run{
			VolumePath: opts.VolumeDir,
			Cells:      eval.NumCells(),
			Samples:    cfg.GetSamples(),
			Rho:        cfg.GetRho(),
			Seed:       int64(cfg.GetSeed()),
		}
		if err := store.CreateRun(rec); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		runID = rec.RunID
		monitoring.Logf("recording run %s to %s", runID, opts.DBPath)
	}

	fitter.Progress = func(p fit.Progress) {
		recorder.Observe(p)
		if store != nil {
			if err := store.RecordIteration(runID, p); err != nil {
				monitoring.Logf("db: record iteration %d: %v", p.Iteration, err)
			}
		}
	}

	res, err := fitter.Run()
	if err != nil {
		return fmt.Errorf("fit: %w", err)
	}

	f, err := fsys.Create(opts.OutFile)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := fit.WriteGenerators(f, res.Generators); err != nil {
		f.Close()
		return fmt.Errorf("write generators: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}

	if store != nil {
		if err := store.CompleteRun(runID, res); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
		if err := store.SaveGenerators(runID, res.Generators); err != nil {
			return fmt.Errorf("save generators: %w", err)
		}
	}

	if opts.PlotPath != "" {
		if err := monitor.WritePlot(fsys, opts.PlotPath, recorder.Trace()); err != nil {
			return fmt.Errorf("write plot: %w", err)
		}
	}
	if opts.ReportPath != "" {
		if err := monitor.WriteReport(fsys, opts.ReportPath, recorder.Trace(), res.Generators); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	present := 0
	for _, g := range res.Generators {
		if g != nil {
			present++
		}
	}
	fmt.Printf("%s after %d iterations in %s: cost=%.6g, %d/%d generators -> %s\n",
		res.Status, res.Iterations, time.Since(start).Round(time.Millisecond),
		res.Cost, present, len(res.Generators), opts.OutFile)

	return nil
}
