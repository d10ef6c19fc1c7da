package roi

import (
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"cortexmap/pkg/colormap"
	"cortexmap/pkg/errdefs"
	"cortexmap/pkg/isosurface"
)

// Level selects which voxels take part in a surface extraction. The
// variants are sealed so a selection is always one of the three.
type Level interface {
	isLevel()
	fmt.Stringer
}

// Exact keeps voxels whose label equals the value.
type Exact int32

func (Exact) isLevel() {}

func (l Exact) String() string { return fmt.Sprintf("label %d", int32(l)) }

// Threshold keeps voxels whose label is at most the value.
type Threshold float64

func (Threshold) isLevel() {}

func (l Threshold) String() string { return fmt.Sprintf("labels <= %g", float64(l)) }

// AnyOf keeps voxels whose label is one of the values.
type AnyOf []int32

func (AnyOf) isLevel() {}

func (l AnyOf) String() string { return fmt.Sprintf("labels %v", []int32(l)) }

// SurfaceOptions tunes the extraction.
type SurfaceOptions struct {
	// Smooth is the box smoothing width applied before extraction.
	// 0 disables smoothing; otherwise it must be an odd int >= 3.
	Smooth int
	// UniqueColor assigns a random color per selected label. It
	// requires an AnyOf level.
	UniqueColor bool
	// Rand drives the unique colors. Nil uses a time-seeded source.
	Rand *rand.Rand
}

// SurfaceMesh is an extracted region surface in world coordinates.
// Colors is per vertex and nil unless unique coloring was requested.
type SurfaceMesh struct {
	Vertices [][3]float64
	Faces    [][3]int32
	Colors   []colormap.Color
}

// ExtractSurface builds the isosurface of the selected voxels. The
// selection is smoothed, contoured at the 0.5 crossing, and mapped
// through the volume affine. An empty selection gives an empty mesh.
func (v *Volume) ExtractSurface(level Level, opts SurfaceOptions) (*SurfaceMesh, error) {
	if level == nil {
		return nil, errdefs.Config("level", "a level selection is required")
	}
	if s := opts.Smooth; s != 0 && (s < 3 || s%2 == 0) {
		return nil, errdefs.Config("smooth", "smoothing width must be 0 or an odd int >= 3, got %d", s)
	}

	if !opts.UniqueColor {
		verts, faces, err := v.extractLevel(level, opts.Smooth)
		if err != nil {
			return nil, err
		}
		v.log.Info("extracted region surface",
			zap.String("volume", v.Name),
			zap.String("level", level.String()),
			zap.Int("vertices", len(verts)),
			zap.Int("faces", len(faces)))
		return &SurfaceMesh{Vertices: verts, Faces: faces}, nil
	}

	values, ok := level.(AnyOf)
	if !ok {
		return nil, errdefs.Config("uniqueColor", "unique coloring needs an AnyOf level, got %s", level)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	// Colors are drawn for every value up front so the sequence does
	// not depend on which selections turn out empty.
	levelColors := make([]colormap.Color, len(values))
	for i := range levelColors {
		levelColors[i] = colormap.Color{
			0.1 + 0.8*rng.Float64(),
			0.1 + 0.8*rng.Float64(),
			0.1 + 0.8*rng.Float64(),
			1,
		}
	}

	out := &SurfaceMesh{}
	for i, val := range values {
		verts, faces, err := v.extractLevel(Exact(val), opts.Smooth)
		if err != nil {
			return nil, err
		}
		if len(verts) == 0 {
			continue
		}
		offset := int32(len(out.Vertices))
		out.Vertices = append(out.Vertices, verts...)
		for _, f := range faces {
			out.Faces = append(out.Faces, [3]int32{f[0] + offset, f[1] + offset, f[2] + offset})
		}
		for range verts {
			out.Colors = append(out.Colors, levelColors[i])
		}
	}
	v.log.Info("extracted region surfaces",
		zap.String("volume", v.Name),
		zap.Int("levels", len(values)),
		zap.Int("vertices", len(out.Vertices)),
		zap.Int("faces", len(out.Faces)))
	return out, nil
}

// extractLevel selects, smooths and contours one level in voxel space,
// then maps the vertices into world space.
func (v *Volume) extractLevel(level Level, smooth int) ([][3]float64, [][3]int32, error) {
	data := v.selectLevel(level)
	if smooth != 0 {
		smoothed, err := isosurface.Smooth3D(data, v.Dims, smooth)
		if err != nil {
			return nil, nil, err
		}
		data = smoothed
	}
	verts, faces, err := isosurface.Extract(data, v.Dims, 0.5)
	if err != nil {
		return nil, nil, err
	}
	for i, p := range verts {
		verts[i] = v.Affine.Apply(p)
	}
	return verts, faces, nil
}

// selectLevel copies the volume as float64 with unselected voxels
// zeroed.
func (v *Volume) selectLevel(level Level) []float64 {
	data := make([]float64, len(v.Data))
	switch l := level.(type) {
	case Exact:
		for i, val := range v.Data {
			if val == int32(l) {
				data[i] = float64(val)
			}
		}
	case Threshold:
		for i, val := range v.Data {
			if float64(val) <= float64(l) {
				data[i] = float64(val)
			}
		}
	case AnyOf:
		keep := make(map[int32]bool, len(l))
		for _, val := range l {
			keep[val] = true
		}
		for i, val := range v.Data {
			if keep[val] {
				data[i] = float64(val)
			}
		}
	}
	return data
}

// Axis identifies a slicing direction through the volume.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return "unknown"
	}
}

// ParseAxis maps a configuration string onto an axis.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	default:
		return 0, errdefs.Config("axis", "unknown axis %q, use x, y or z", s)
	}
}

// LabelSlice is a 2D label grid cut from the volume, row-major with
// index y*W + x.
type LabelSlice struct {
	Axis Axis
	Pos  int
	W, H int
	Data []int32
}

// At reads the label at (x, y) of the slice plane.
func (s *LabelSlice) At(x, y int) int32 {
	return s.Data[y*s.W+x]
}

// MaxLabel returns the largest label in the slice.
func (s *LabelSlice) MaxLabel() int32 {
	var max int32
	for _, v := range s.Data {
		if v > max {
			max = v
		}
	}
	return max
}

// Slice cuts the plane at pos along the axis. The slice plane keeps
// the volume's remaining two axes in order, so an x slice is (y, z),
// a y slice is (x, z) and a z slice is (x, y).
func (v *Volume) Slice(axis Axis, pos int) (*LabelSlice, error) {
	var limit int
	switch axis {
	case AxisX:
		limit = v.Dims[0]
	case AxisY:
		limit = v.Dims[1]
	case AxisZ:
		limit = v.Dims[2]
	default:
		return nil, errdefs.Config("axis", "unknown axis %d", int(axis))
	}
	if pos < 0 || pos >= limit {
		return nil, errdefs.Config("pos", "position %d outside [0, %d) along %s", pos, limit, axis)
	}

	s := &LabelSlice{Axis: axis, Pos: pos}
	switch axis {
	case AxisX:
		s.W, s.H = v.Dims[1], v.Dims[2]
		s.Data = make([]int32, s.W*s.H)
		for y := 0; y < s.H; y++ {
			for x := 0; x < s.W; x++ {
				val, _ := v.Value(pos, x, y)
				s.Data[y*s.W+x] = val
			}
		}
	case AxisY:
		s.W, s.H = v.Dims[0], v.Dims[2]
		s.Data = make([]int32, s.W*s.H)
		for y := 0; y < s.H; y++ {
			for x := 0; x < s.W; x++ {
				val, _ := v.Value(x, pos, y)
				s.Data[y*s.W+x] = val
			}
		}
	case AxisZ:
		s.W, s.H = v.Dims[0], v.Dims[1]
		s.Data = make([]int32, s.W*s.H)
		for y := 0; y < s.H; y++ {
			for x := 0; x < s.W; x++ {
				val, _ := v.Value(x, y, pos)
				s.Data[y*s.W+x] = val
			}
		}
	}
	return s, nil
}
