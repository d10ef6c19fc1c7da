// Package mesh holds the triangular surface that projections color: the
// vertex and face buffers plus the per-vertex color and state arrays a
// renderer consumes.
package mesh

import (
	"fmt"

	"cortexmap/pkg/colormap"
	"cortexmap/pkg/errdefs"
)

// VertexState classifies a vertex after a projection run.
type VertexState uint8

const (
	// StateNormal marks a vertex untouched by any special condition.
	StateNormal VertexState = 0
	// StateUncontributed marks a vertex no source reached.
	StateUncontributed VertexState = 1
	// StateMasked marks a vertex reached by at least one masked source.
	// It takes precedence over StateUncontributed.
	StateMasked VertexState = 2
)

func (s VertexState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateUncontributed:
		return "uncontributed"
	case StateMasked:
		return "masked"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Surface is an indexed triangle mesh with per-vertex attributes.
type Surface struct {
	Vertices [][3]float64
	Faces    [][3]int32

	// Color holds one RGBA per vertex; writes go through SetColors so
	// the length stays in step with the vertices.
	Color []colormap.Color
	// Mask is the per-vertex projection state.
	Mask []VertexState
	// MaskColor is the highlight color applied to StateMasked vertices.
	MaskColor colormap.Color
}

// DefaultColor is the resting vertex color before any projection.
var DefaultColor = colormap.Color{0.5, 0.5, 0.5, 1}

// NewSurface validates the buffers and allocates the per-vertex
// attribute arrays. Faces may be empty; face indices must address an
// existing vertex.
func NewSurface(vertices [][3]float64, faces [][3]int32) (*Surface, error) {
	if len(vertices) == 0 {
		return nil, errdefs.Shape("vertices", "at least one vertex", 0)
	}
	n := int32(len(vertices))
	for fi, f := range faces {
		for _, idx := range f {
			if idx < 0 || idx >= n {
				return nil, errdefs.Shape(
					fmt.Sprintf("face %d", fi),
					fmt.Sprintf("indices in [0, %d)", n),
					idx,
				)
			}
		}
	}

	s := &Surface{
		Vertices: vertices,
		Faces:    faces,
		Color:    make([]colormap.Color, len(vertices)),
		Mask:     make([]VertexState, len(vertices)),
	}
	for i := range s.Color {
		s.Color[i] = DefaultColor
	}
	return s, nil
}

// VertexCount returns the number of vertices.
func (s *Surface) VertexCount() int {
	return len(s.Vertices)
}

// SetColors replaces the per-vertex colors. The slice length must match
// the vertex count.
func (s *Surface) SetColors(colors []colormap.Color) error {
	if len(colors) != len(s.Vertices) {
		return errdefs.Shape("colors", len(s.Vertices), len(colors))
	}
	s.Color = colors
	return nil
}

// SetMask replaces the per-vertex states. The slice length must match
// the vertex count.
func (s *Surface) SetMask(mask []VertexState) error {
	if len(mask) != len(s.Vertices) {
		return errdefs.Shape("mask", len(s.Vertices), len(mask))
	}
	s.Mask = mask
	return nil
}

// ResetStates clears colors and mask back to their resting values.
func (s *Surface) ResetStates() {
	for i := range s.Color {
		s.Color[i] = DefaultColor
	}
	for i := range s.Mask {
		s.Mask[i] = StateNormal
	}
}
