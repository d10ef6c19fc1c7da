// Package visualization renders labeled volumes as 2D images, one
// slice plane at a time or as a numbered sequence for browsing.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"cortexmap/pkg/colormap"
	"cortexmap/pkg/errdefs"
	"cortexmap/pkg/roi"
)

// Viewer renders slices of one labeled volume. Labels are colored by
// their value normalized against the largest label in the volume, so a
// region keeps its color across every slice of a sequence.
type Viewer struct {
	vol      *roi.Volume
	cmap     *colormap.Table
	maxLabel int32
	log      *zap.Logger
}

// NewViewer builds a renderer for the volume. A nil colormap selects
// viridis; a nil logger disables logging.
func NewViewer(vol *roi.Volume, cmap *colormap.Table, log *zap.Logger) (*Viewer, error) {
	if vol == nil {
		return nil, errdefs.Config("volume", "a volume is required")
	}
	if cmap == nil {
		cmap = colormap.Viridis
	}
	if log == nil {
		log = zap.NewNop()
	}

	var max int32
	for _, v := range vol.Data {
		if v > max {
			max = v
		}
	}
	return &Viewer{
		vol:      vol,
		cmap:     cmap,
		maxLabel: max,
		log:      log.Named("viewer"),
	}, nil
}

// RenderSlice draws the slice at pos along the axis. Unlabeled voxels
// are black; labeled voxels take their normalized color.
func (v *Viewer) RenderSlice(axis roi.Axis, pos int) (image.Image, error) {
	slice, err := v.vol.Slice(axis, pos)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, slice.W, slice.H))
	for y := 0; y < slice.H; y++ {
		for x := 0; x < slice.W; x++ {
			label := slice.At(x, y)
			if label <= 0 || v.maxLabel == 0 {
				img.SetRGBA(x, y, color.RGBA{A: 255})
				continue
			}
			c := v.cmap.At(float64(label) / float64(v.maxLabel))
			img.SetRGBA(x, y, color.RGBA{
				R: channelByte(c[0]),
				G: channelByte(c[1]),
				B: channelByte(c[2]),
				A: channelByte(c[3]),
			})
		}
	}
	return img, nil
}

// SaveSlice renders one slice and writes it as a PNG.
func (v *Viewer) SaveSlice(path string, axis roi.Axis, pos int) error {
	img, err := v.RenderSlice(axis, pos)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}

// SaveSliceSequence writes every step-th slice along the axis into dir
// as slice_<axis>_<pos>.png and returns the written paths.
func (v *Viewer) SaveSliceSequence(dir string, axis roi.Axis, step int) ([]string, error) {
	if step <= 0 {
		return nil, errdefs.Config("step", "step must be positive, got %d", step)
	}

	var limit int
	switch axis {
	case roi.AxisX:
		limit = v.vol.Dims[0]
	case roi.AxisY:
		limit = v.vol.Dims[1]
	case roi.AxisZ:
		limit = v.vol.Dims[2]
	default:
		return nil, errdefs.Config("axis", "unknown axis %d", int(axis))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	var paths []string
	for pos := 0; pos < limit; pos += step {
		path := filepath.Join(dir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(path, axis, pos); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	v.log.Info("wrote slice sequence",
		zap.String("volume", v.vol.Name),
		zap.String("axis", axis.String()),
		zap.Int("slices", len(paths)))
	return paths, nil
}

func channelByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
