// Command gen-volume produces synthetic labeled grain volumes for testing
// the fitter: it draws a seeded random generator set (or reads one from a
// file), rasterizes its Laguerre tessellation, and writes the slice stack
// plus the ground-truth generator file.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"

	"github.com/grain-metrics/laguerre/internal/fit"
	"github.com/grain-metrics/laguerre/internal/fsutil"
	"github.com/grain-metrics/laguerre/internal/geom"
	"github.com/grain-metrics/laguerre/internal/volume"
)

func main() {
	output := flag.String("o", "volume", "output slice directory")
	truthFile := flag.String("truth", "generators.txt", "ground-truth generator file to write")
	genFile := flag.String("generators", "", "rasterize this generator file instead of drawing randomly")
	count := flag.Int("n", 16, "number of random generators")
	nx := flag.Int("nx", 64, "volume size along x")
	ny := flag.Int("ny", 64, "volume size along y")
	nz := flag.Int("nz", 64, "volume size along z")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	var gens []geom.Weighted
	if *genFile != "" {
		var err error
		gens, err = loadGenerators(*genFile)
		if err != nil {
			log.Fatalf("%v", err)
		}
	} else {
		if *count < 1 {
			log.Fatal("-n must be at least 1")
		}
		gens = drawGenerators(*count, *nx, *ny, *nz, *seed)
	}

	vol, err := volume.Rasterize(gens, *nx, *ny, *nz)
	if err != nil {
		log.Fatalf("rasterize: %v", err)
	}

	if err := volume.SaveSliceDir(fsutil.OSFileSystem{}, *output, vol); err != nil {
		log.Fatalf("write slices: %v", err)
	}
	if err := writeTruth(*truthFile, gens); err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("wrote %d-cell volume %dx%dx%d to %s (truth: %s)",
		len(gens), *nx, *ny, *nz, *output, *truthFile)
}

// drawGenerators samples count generators uniformly in the volume box, with
// radii up to half the mean cell edge length.
func drawGenerators(count, nx, ny, nz int, seed uint64) []geom.Weighted {
	r := rand.New(rand.NewPCG(seed, 0))
	rmax := 0.5 * math.Cbrt(float64(nx*ny*nz)/float64(count))
	gens := make([]geom.Weighted, count)
	for i := range gens {
		gens[i] = geom.Weighted{
			Center: geom.Vec3{
				X: r.Float64() * float64(nx),
				Y: r.Float64() * float64(ny),
				Z: r.Float64() * float64(nz),
			},
			R: r.Float64() * rmax,
		}
	}
	return gens
}

// loadGenerators reads a generator file. Every label must carry a value: an
// absent generator has nothing to rasterize.
func loadGenerators(path string) ([]geom.Weighted, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open generators: %w", err)
	}
	defer f.Close()

	ptrs, err := fit.ReadGenerators(f)
	if err != nil {
		return nil, fmt.Errorf("read generators: %w", err)
	}
	gens := make([]geom.Weighted, len(ptrs))
	for i, g := range ptrs {
		if g == nil {
			return nil, fmt.Errorf("generator %d is null; cannot rasterize an absent cell", i+1)
		}
		gens[i] = *g
	}
	return gens, nil
}

// writeTruth writes the generator set in the standard output format.
func writeTruth(path string, gens []geom.Weighted) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create truth file: %w", err)
	}
	ptrs := make([]*geom.Weighted, len(gens))
	for i := range gens {
		ptrs[i] = &gens[i]
	}
	if err := fit.WriteGenerators(f, ptrs); err != nil {
		f.Close()
		return fmt.Errorf("write truth file: %w", err)
	}
	return f.Close()
}
