// Package testutil provides shared test fixtures: canonical labeled grain
// volumes, in memory and on disk.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"testing"

	"github.com/grain-metrics/laguerre/internal/fsutil"
	"github.com/grain-metrics/laguerre/internal/volume"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// RowVolume builds a 4*cells x 4 x 4 labeled volume of equal cubic grains
// stacked along x. Grain i+1 occupies voxels 4i <= x < 4i+4, so every
// interface is a plane at x = 4i - 0.5 in voxel coordinates.
func RowVolume(t *testing.T, cells int) *volume.Volume {
	t.Helper()
	vol, err := volume.New(4*cells, 4, 4)
	AssertNoError(t, err)
	for z := 0; z < 4; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 4*cells; x++ {
				vol.Set(x, y, z, int32(x/4+1))
			}
		}
	}
	return vol
}

// WriteRowVolume renders RowVolume as a PNG slice stack under dir on the
// real filesystem, for tests that drive file-reading entry points.
func WriteRowVolume(t *testing.T, dir string, cells int) {
	t.Helper()
	vol := RowVolume(t, cells)
	AssertNoError(t, volume.SaveSliceDir(fsutil.OSFileSystem{}, dir, vol))
}
