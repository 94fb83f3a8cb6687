package volume

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grain-metrics/laguerre/internal/fsutil"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	v, err := New(5, 4, 3)
	require.NoError(t, err)
	v.Set(0, 0, 0, 1)
	v.Set(4, 3, 2, 300) // above 8 bit, exercises the 16-bit path
	v.Set(2, 1, 1, 42)

	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, SaveSliceDir(mfs, "/vol", v))

	names, err := mfs.ReadDirNames("/vol")
	require.NoError(t, err)
	assert.Equal(t, []string{"slice_0000.png", "slice_0001.png", "slice_0002.png"}, names)

	got, err := LoadSliceDir(mfs, "/vol")
	require.NoError(t, err)

	nx, ny, nz := got.Dims()
	require.Equal(t, [3]int{5, 4, 3}, [3]int{nx, ny, nz})
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				assert.Equal(t, v.At(x, y, z), got.At(x, y, z), "voxel (%d,%d,%d)", x, y, z)
			}
		}
	}
}

func TestSaveRejectsWideLabels(t *testing.T) {
	v, err := New(1, 1, 1)
	require.NoError(t, err)
	v.Set(0, 0, 0, 70000)

	err = SaveSliceDir(fsutil.NewMemoryFileSystem(), "/vol", v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "16-bit")
}

func writeSlicePNG(t *testing.T, mfs *fsutil.MemoryFileSystem, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, mfs.WriteFile(path, buf.Bytes(), 0644))
}

func TestLoadGray8(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.SetGray(0, 0, color.Gray{Y: 1})
	img.SetGray(1, 1, color.Gray{Y: 2})
	writeSlicePNG(t, mfs, "/v/only.png", img)

	v, err := LoadSliceDir(mfs, "/v")
	require.NoError(t, err)
	assert.Equal(t, int32(1), v.At(0, 0, 0))
	assert.Equal(t, int32(0), v.At(1, 0, 0))
	assert.Equal(t, int32(2), v.At(1, 1, 0))
}

func TestLoadPaletted(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	pal := color.Palette{color.Gray{0}, color.Gray{80}, color.Gray{160}}
	img := image.NewPaletted(image.Rect(0, 0, 2, 1), pal)
	img.SetColorIndex(0, 0, 2)
	img.SetColorIndex(1, 0, 1)
	writeSlicePNG(t, mfs, "/v/p.png", img)

	v, err := LoadSliceDir(mfs, "/v")
	require.NoError(t, err)
	assert.Equal(t, int32(2), v.At(0, 0, 0))
	assert.Equal(t, int32(1), v.At(1, 0, 0))
}

func TestLoadDimensionMismatch(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	writeSlicePNG(t, mfs, "/v/a.png", image.NewGray(image.Rect(0, 0, 2, 2)))
	writeSlicePNG(t, mfs, "/v/b.png", image.NewGray(image.Rect(0, 0, 3, 2)))

	_, err := LoadSliceDir(mfs, "/v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2x2")
}

func TestLoadUnsupportedModel(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	writeSlicePNG(t, mfs, "/v/rgb.png", image.NewNRGBA(image.Rect(0, 0, 2, 2)))

	_, err := LoadSliceDir(mfs, "/v")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported color model")
}

func TestLoadEmptyDir(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("/empty", 0755))

	_, err := LoadSliceDir(mfs, "/empty")
	require.Error(t, err)

	// non-image files are ignored, not decoded
	require.NoError(t, mfs.WriteFile("/empty/readme.txt", []byte("x"), 0644))
	_, err = LoadSliceDir(mfs, "/empty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no slice images")
}
