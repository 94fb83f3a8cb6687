package volume

import (
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/tiff" // registers TIFF decoding

	"github.com/grain-metrics/laguerre/internal/fsutil"
	"github.com/grain-metrics/laguerre/internal/monitoring"
)

// LoadSliceDir reads a labeled volume from a directory of grayscale slice
// images, one image per z-slice in filename order. Supported encodings are
// 8/16-bit grayscale and paletted PNG or TIFF; the pixel value (or palette
// index) is the label. All slices must share the same dimensions.
func LoadSliceDir(fsys fsutil.FileSystem, dir string) (*Volume, error) {
	names, err := fsys.ReadDirNames(dir)
	if err != nil {
		return nil, fmt.Errorf("reading slice directory %s: %w", dir, err)
	}

	var slices []string
	for _, name := range names {
		switch strings.ToLower(filepath.Ext(name)) {
		case ".png", ".tif", ".tiff":
			slices = append(slices, name)
		}
	}
	if len(slices) == 0 {
		return nil, fmt.Errorf("no slice images (.png/.tif/.tiff) in %s", dir)
	}

	var vol *Volume
	for z, name := range slices {
		img, err := decodeSlice(fsys, filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		b := img.Bounds()
		nx, ny := b.Dx(), b.Dy()

		if vol == nil {
			vol, err = New(nx, ny, len(slices))
			if err != nil {
				return nil, err
			}
		} else if vx, vy, _ := vol.Dims(); nx != vx || ny != vy {
			return nil, fmt.Errorf("slice %s is %dx%d, expected %dx%d", name, nx, ny, vx, vy)
		}

		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				label, err := labelAt(img, b.Min.X+x, b.Min.Y+y)
				if err != nil {
					return nil, fmt.Errorf("slice %s: %w", name, err)
				}
				vol.Set(x, y, z, label)
			}
		}
	}

	nx, ny, nz := vol.Dims()
	monitoring.Logf("volume: loaded %d slices (%dx%dx%d, max label %d) from %s",
		nz, nx, ny, nz, vol.MaxLabel(), dir)
	return vol, nil
}

func decodeSlice(fsys fsutil.FileSystem, path string) (image.Image, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening slice %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding slice %s: %w", path, err)
	}
	return img, nil
}

func labelAt(img image.Image, x, y int) (int32, error) {
	switch im := img.(type) {
	case *image.Gray:
		return int32(im.GrayAt(x, y).Y), nil
	case *image.Gray16:
		return int32(im.Gray16At(x, y).Y), nil
	case *image.Paletted:
		return int32(im.ColorIndexAt(x, y)), nil
	default:
		return 0, fmt.Errorf("unsupported color model %T, need grayscale or paletted labels", img)
	}
}

// SaveSliceDir writes the volume as a stack of 16-bit grayscale PNG slices
// named slice_0000.png, slice_0001.png, ... inside dir, creating it if
// needed. Labels above 65535 do not fit the encoding and are rejected.
func SaveSliceDir(fsys fsutil.FileSystem, dir string, v *Volume) error {
	if max := v.MaxLabel(); max > 0xffff {
		return fmt.Errorf("label %d exceeds 16-bit slice encoding", max)
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating slice directory %s: %w", dir, err)
	}

	nx, ny, nz := v.Dims()
	for z := 0; z < nz; z++ {
		img := image.NewGray16(image.Rect(0, 0, nx, ny))
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				label := uint16(v.At(x, y, z))
				i := img.PixOffset(x, y)
				img.Pix[i] = uint8(label >> 8)
				img.Pix[i+1] = uint8(label)
			}
		}

		path := filepath.Join(dir, fmt.Sprintf("slice_%04d.png", z))
		w, err := fsys.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		if err := png.Encode(w, img); err != nil {
			w.Close()
			return fmt.Errorf("encoding %s: %w", path, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", path, err)
		}
	}
	return nil
}
