package fit

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grain-metrics/laguerre/internal/geom"
)

// WriteGenerators writes one line per label in ascending order: either
// "label x y z r" or "label null" for an absent cell. Index i in gens
// corresponds to label i+1.
func WriteGenerators(w io.Writer, gens []*geom.Weighted) error {
	bw := bufio.NewWriter(w)
	for i, g := range gens {
		var err error
		if g == nil {
			_, err = fmt.Fprintf(bw, "%d null\n", i+1)
		} else {
			_, err = fmt.Fprintf(bw, "%d %g %g %g %g\n", i+1, g.Center.X, g.Center.Y, g.Center.Z, g.R)
		}
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadGenerators parses the WriteGenerators format. Labels may appear in
// any order; unlisted labels below the maximum come back absent.
func ReadGenerators(r io.Reader) ([]*geom.Weighted, error) {
	var gens []*geom.Weighted
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		label, err := strconv.Atoi(fields[0])
		if err != nil || label < 1 {
			return nil, fmt.Errorf("generators line %d: bad label %q", line, fields[0])
		}
		for len(gens) < label {
			gens = append(gens, nil)
		}
		if len(fields) == 2 && fields[1] == "null" {
			continue
		}
		if len(fields) != 5 {
			return nil, fmt.Errorf("generators line %d: want %q or %q", line, "label x y z r", "label null")
		}
		var vals [4]float64
		for k := 0; k < 4; k++ {
			vals[k], err = strconv.ParseFloat(fields[k+1], 64)
			if err != nil {
				return nil, fmt.Errorf("generators line %d: %w", line, err)
			}
		}
		if gens[label-1] != nil {
			return nil, fmt.Errorf("generators line %d: duplicate label %d", line, label)
		}
		gens[label-1] = &geom.Weighted{
			Center: geom.Vec3{X: vals[0], Y: vals[1], Z: vals[2]},
			R:      vals[3],
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return gens, nil
}
