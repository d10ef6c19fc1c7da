// Package source holds the source set: named 3D points carrying an
// activity value and an optional masked flag. The set answers the
// radius queries behind cortical projection through a kd-tree over the
// source positions.
package source

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/kdtree"

	"cortexmap/pkg/errdefs"
)

// Source is a single recording site.
type Source struct {
	Name   string
	Pos    [3]float64
	Value  float64
	Masked bool
}

// kdPoint carries the source index through the kd-tree so query results
// map back to the set.
type kdPoint struct {
	pos [3]float64
	idx int
}

// Compare implements the kdtree.Comparable interface.
func (p kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(kdPoint)
	switch d {
	case 0:
		return p.pos[0] - q.pos[0]
	case 1:
		return p.pos[1] - q.pos[1]
	case 2:
		return p.pos[2] - q.pos[2]
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree.
func (p kdPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points.
func (p kdPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(kdPoint)
	dx := p.pos[0] - q.pos[0]
	dy := p.pos[1] - q.pos[1]
	dz := p.pos[2] - q.pos[2]
	return dx*dx + dy*dy + dz*dz
}

// kdPoints is a collection of kdPoint that satisfies kdtree.Interface.
type kdPoints []kdPoint

func (p kdPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p kdPoints) Len() int                              { return len(p) }
func (p kdPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method.
func (p kdPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{kdPoints: p, Dim: d}, kdtree.MedianOfRandoms(pointPlane{kdPoints: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for kdPoints.
type pointPlane struct {
	kdPoints
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	return p.kdPoints[i].pos[p.Dim] < p.kdPoints[j].pos[p.Dim]
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{kdPoints: p.kdPoints[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.kdPoints[i], p.kdPoints[j] = p.kdPoints[j], p.kdPoints[i]
}

// Set is an immutable collection of sources plus the spatial index over
// their positions. The only mutable piece is the cached range of the
// last projected field.
type Set struct {
	sources []Source
	tree    *kdtree.Tree

	anyMasked bool
	minmax    *[2]float64

	log *zap.Logger
}

// New validates the sources and builds the spatial index. Blank names
// default to s0, s1, ...
func New(sources []Source, log *zap.Logger) (*Set, error) {
	if len(sources) == 0 {
		return nil, errdefs.Config("sources", "at least one source is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	owned := make([]Source, len(sources))
	copy(owned, sources)

	points := make(kdPoints, len(owned))
	anyMasked := false
	for i := range owned {
		for c := 0; c < 3; c++ {
			if math.IsNaN(owned[i].Pos[c]) || math.IsInf(owned[i].Pos[c], 0) {
				return nil, errdefs.Config("sources", "position of source %d is not finite", i)
			}
		}
		if math.IsNaN(owned[i].Value) || math.IsInf(owned[i].Value, 0) {
			return nil, errdefs.Config("sources", "value of source %d is not finite", i)
		}
		if owned[i].Name == "" {
			owned[i].Name = fmt.Sprintf("s%d", i)
		}
		if owned[i].Masked {
			anyMasked = true
		}
		points[i] = kdPoint{pos: owned[i].Pos, idx: i}
	}

	s := &Set{
		sources:   owned,
		tree:      kdtree.New(points, true),
		anyMasked: anyMasked,
		log:       log.Named("sources"),
	}
	s.log.Debug("spatial index built", zap.Int("sources", len(owned)), zap.Bool("masked", anyMasked))
	return s, nil
}

// Len returns the number of sources.
func (s *Set) Len() int { return len(s.sources) }

// AnyMasked reports whether at least one source is masked.
func (s *Set) AnyMasked() bool { return s.anyMasked }

// Positions returns a copy of the source coordinates.
func (s *Set) Positions() [][3]float64 {
	out := make([][3]float64, len(s.sources))
	for i, src := range s.sources {
		out[i] = src.Pos
	}
	return out
}

// Names returns a copy of the source names.
func (s *Set) Names() []string {
	out := make([]string, len(s.sources))
	for i, src := range s.sources {
		out[i] = src.Name
	}
	return out
}

// SetRange caches the (min, max) of a projected field.
func (s *Set) SetRange(mm [2]float64) {
	s.minmax = &mm
}

// Range returns the cached field range, if one has been recorded.
func (s *Set) Range() ([2]float64, bool) {
	if s.minmax == nil {
		return [2]float64{}, false
	}
	return *s.minmax, true
}

// Field is the per-vertex outcome of a projection: a scalar value and a
// flag telling whether any source actually reached the vertex.
type Field struct {
	Values []float64
	Valid  []bool
}

// Range returns the (min, max) over the valid entries.
func (f *Field) Range() ([2]float64, bool) {
	first := true
	var mm [2]float64
	for i, v := range f.Values {
		if !f.Valid[i] {
			continue
		}
		if first {
			mm = [2]float64{v, v}
			first = false
			continue
		}
		if v < mm[0] {
			mm[0] = v
		}
		if v > mm[1] {
			mm[1] = v
		}
	}
	return mm, !first
}

// ValidCount returns how many vertices were reached.
func (f *Field) ValidCount() int {
	n := 0
	for _, ok := range f.Valid {
		if ok {
			n++
		}
	}
	return n
}

// neighbor is one source returned by a radius query.
type neighbor struct {
	idx  int
	dist float64
}

// within collects the sources whose distance to p is at most radius.
func (s *Set) within(p [3]float64, radius float64) []neighbor {
	keeper := kdtree.NewDistKeeper(radius * radius)
	s.tree.NearestSet(keeper, kdPoint{pos: p})

	out := make([]neighbor, 0, keeper.Len())
	for _, item := range keeper.Heap {
		// Skip the sentinel value.
		if item.Comparable == nil {
			continue
		}
		out = append(out, neighbor{
			idx:  item.Comparable.(kdPoint).idx,
			dist: math.Sqrt(item.Dist),
		})
	}
	return out
}

// hemisphereOK applies the cross-hemisphere policy: with contribute off,
// a source only reaches vertices on its own side of the x = 0 plane.
// Sources sitting exactly on the plane reach both sides.
func hemisphereOK(contribute bool, sourceX, vertexX float64) bool {
	if contribute {
		return true
	}
	ss := sign(sourceX)
	if ss == 0 {
		return true
	}
	return ss == sign(vertexX)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// checkProjection validates the shared projection preconditions.
func checkProjection(vertices [][3]float64, radius float64) error {
	if len(vertices) == 0 {
		return errdefs.Shape("vertices", "at least one vertex", 0)
	}
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius <= 0 {
		return errdefs.Config("radius", "must be a positive finite number, got %v", radius)
	}
	return nil
}

// forEachVertex fans the per-vertex work out over the CPUs. Workers own
// disjoint index ranges, so writes to per-vertex slices never collide.
func forEachVertex(n int, fn func(i int)) {
	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ProjectActivity projects the activity of the unmasked sources onto
// the vertices: within the radius each source contributes its value
// with a linear falloff weight 1 - d/radius, and the vertex receives
// the weighted mean. Vertices no unmasked source reaches are invalid.
func (s *Set) ProjectActivity(vertices [][3]float64, radius float64, contribute bool) (*Field, error) {
	if err := checkProjection(vertices, radius); err != nil {
		return nil, err
	}
	field := &Field{
		Values: make([]float64, len(vertices)),
		Valid:  make([]bool, len(vertices)),
	}

	unmasked := 0
	for _, src := range s.sources {
		if !src.Masked {
			unmasked++
		}
	}
	if unmasked == 0 {
		s.log.Warn("no unmasked sources, projected field is empty")
		return field, nil
	}

	forEachVertex(len(vertices), func(i int) {
		var sum, weightSum float64
		for _, nb := range s.within(vertices[i], radius) {
			src := s.sources[nb.idx]
			if src.Masked || !hemisphereOK(contribute, src.Pos[0], vertices[i][0]) {
				continue
			}
			w := 1 - nb.dist/radius
			sum += w * src.Value
			weightSum += w
		}
		if weightSum > 0 {
			field.Values[i] = sum / weightSum
			field.Valid[i] = true
		}
	})
	return field, nil
}

// ProjectRepartition counts, per vertex, the unmasked sources within
// the radius. The counts double as the field values.
func (s *Set) ProjectRepartition(vertices [][3]float64, radius float64, contribute bool) (*Field, error) {
	if err := checkProjection(vertices, radius); err != nil {
		return nil, err
	}
	field := &Field{
		Values: make([]float64, len(vertices)),
		Valid:  make([]bool, len(vertices)),
	}

	forEachVertex(len(vertices), func(i int) {
		count := 0
		for _, nb := range s.within(vertices[i], radius) {
			src := s.sources[nb.idx]
			if src.Masked || !hemisphereOK(contribute, src.Pos[0], vertices[i][0]) {
				continue
			}
			count++
		}
		field.Values[i] = float64(count)
		field.Valid[i] = count > 0
	})
	return field, nil
}

// MaskedIndices flags the vertices reached by at least one masked
// source within the radius, under the same hemisphere policy.
func (s *Set) MaskedIndices(vertices [][3]float64, radius float64, contribute bool) ([]bool, error) {
	if err := checkProjection(vertices, radius); err != nil {
		return nil, err
	}
	out := make([]bool, len(vertices))
	if !s.anyMasked {
		return out, nil
	}

	forEachVertex(len(vertices), func(i int) {
		for _, nb := range s.within(vertices[i], radius) {
			src := s.sources[nb.idx]
			if src.Masked && hemisphereOK(contribute, src.Pos[0], vertices[i][0]) {
				out[i] = true
				return
			}
		}
	})
	return out, nil
}
