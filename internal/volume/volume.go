// Package volume holds the labeled 3D grain volume the fitter consumes:
// a dense grid of int32 labels where 0 is background and 1..N are grains.
// Volumes are loaded from image slice stacks or rasterized from a known
// generator set for synthetic data.
package volume

import (
	"fmt"

	"github.com/grain-metrics/laguerre/internal/geom"
)

// Volume is a dense labeled 3D grid. Voxel (x, y, z) carries one label;
// the voxel's spatial coordinate is the integer index vector itself.
// Storage is x-fastest.
type Volume struct {
	nx, ny, nz int
	data       []int32
}

// New allocates an all-background volume with the given dimensions.
func New(nx, ny, nz int) (*Volume, error) {
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("invalid volume dimensions %dx%dx%d", nx, ny, nz)
	}
	return &Volume{
		nx:   nx,
		ny:   ny,
		nz:   nz,
		data: make([]int32, nx*ny*nz),
	}, nil
}

// Dims returns the grid dimensions.
func (v *Volume) Dims() (nx, ny, nz int) {
	return v.nx, v.ny, v.nz
}

// At returns the label at voxel (x, y, z). The caller is responsible for
// bounds; index checks stay on the flat slice.
func (v *Volume) At(x, y, z int) int32 {
	return v.data[(z*v.ny+y)*v.nx+x]
}

// Set stores a label at voxel (x, y, z).
func (v *Volume) Set(x, y, z int, label int32) {
	v.data[(z*v.ny+y)*v.nx+x] = label
}

// MaxLabel returns the largest label present in the volume.
func (v *Volume) MaxLabel() int32 {
	var max int32
	for _, l := range v.data {
		if l > max {
			max = l
		}
	}
	return max
}

// Validate checks the label range: all labels must be non-negative.
func (v *Volume) Validate() error {
	for i, l := range v.data {
		if l < 0 {
			x := i % v.nx
			y := (i / v.nx) % v.ny
			z := i / (v.nx * v.ny)
			return fmt.Errorf("negative label %d at voxel (%d, %d, %d)", l, x, y, z)
		}
	}
	return nil
}

// Rasterize builds the labeled volume of the Laguerre tessellation generated
// by gens: every voxel gets the 1-based label of the generator with minimal
// power distance at the voxel's coordinate. Used to produce ground-truth
// volumes for synthetic fits.
func Rasterize(gens []geom.Weighted, nx, ny, nz int) (*Volume, error) {
	if len(gens) == 0 {
		return nil, fmt.Errorf("rasterize needs at least one generator")
	}
	v, err := New(nx, ny, nz)
	if err != nil {
		return nil, err
	}
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				p := geom.Vec3{X: float64(x), Y: float64(y), Z: float64(z)}
				best := 0
				bestDist := gens[0].PowerDistance(p)
				for i := 1; i < len(gens); i++ {
					if d := gens[i].PowerDistance(p); d < bestDist {
						best, bestDist = i, d
					}
				}
				v.Set(x, y, z, int32(best+1))
			}
		}
	}
	return v, nil
}
