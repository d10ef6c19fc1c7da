// Package projection runs source-to-surface projections: it owns the
// registry of projectable surfaces, aggregates source activity onto
// their vertices, and writes the resulting colors and vertex states
// back onto the target.
package projection

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"cortexmap/pkg/colorbar"
	"cortexmap/pkg/colormap"
	"cortexmap/pkg/errdefs"
	"cortexmap/pkg/mesh"
	"cortexmap/pkg/source"
)

// Type selects how source contributions are aggregated per vertex.
type Type int

const (
	// Activity computes the distance-weighted mean of source values.
	Activity Type = iota
	// Repartition counts the sources reaching each vertex.
	Repartition
)

func (t Type) String() string {
	switch t {
	case Activity:
		return "activity"
	case Repartition:
		return "repartition"
	default:
		return "unknown"
	}
}

// ParseType maps a configuration string onto a projection type.
func ParseType(s string) (Type, error) {
	switch s {
	case "activity":
		return Activity, nil
	case "repartition":
		return Repartition, nil
	default:
		return 0, errdefs.Config("type", "unknown projection type %q, use activity or repartition", s)
	}
}

// Params configures a single projection run.
type Params struct {
	// Radius is the sphere around each source inside which vertices
	// receive a contribution, in the mesh's coordinate units.
	Radius float64
	// Type selects activity or repartition aggregation.
	Type Type
	// Contribute lets a source reach vertices in the opposite
	// hemisphere.
	Contribute bool
	// MaskColor is the highlight color for vertices reached by masked
	// sources. Empty selects the default.
	MaskColor string
}

// DefaultParams mirrors the interactive defaults: a 10 unit radius,
// activity aggregation, no cross-hemisphere contribution.
func DefaultParams() Params {
	return Params{Radius: 10, Type: Activity, MaskColor: "orange"}
}

// Result is the retained outcome of a projection run.
type Result struct {
	// Target is the id of the surface that was colored.
	Target string
	// Field is the per-vertex scalar field with its validity flags.
	Field *source.Field
	// Mask is the per-vertex state written onto the surface.
	Mask []mesh.VertexState
	// Colors is the per-vertex color written onto the surface.
	Colors []colormap.Color
	// Range is the (min, max) of the field over contributing vertices.
	// Both entries are zero when nothing contributed.
	Range [2]float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithAutoscale fits the colorbar limits to each new field so the
// colormap always spans the projected range.
func WithAutoscale() Option {
	return func(e *Engine) { e.autoscale = true }
}

// Engine projects source sets onto registered surfaces. It is not safe
// for concurrent use.
type Engine struct {
	meshes    map[string]*mesh.Surface
	last      *Result
	autoscale bool
	log       *zap.Logger
}

// NewEngine builds an empty registry. A nil logger disables logging.
func NewEngine(log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		meshes: make(map[string]*mesh.Surface),
		log:    log.Named("projection"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a projection target under id.
func (e *Engine) Register(id string, s *mesh.Surface) error {
	if id == "" {
		return errdefs.Config("id", "target id must not be empty")
	}
	if s == nil || s.VertexCount() == 0 {
		return errdefs.Config("surface", "target %q needs a surface with vertices", id)
	}
	if _, ok := e.meshes[id]; ok {
		return errdefs.Config("id", "target %q is already registered", id)
	}
	e.meshes[id] = s
	e.log.Debug("registered projection target",
		zap.String("id", id),
		zap.Int("vertices", s.VertexCount()))
	return nil
}

// Unregister removes a projection target.
func (e *Engine) Unregister(id string) error {
	if _, ok := e.meshes[id]; !ok {
		return &errdefs.NotFoundError{Kind: "projection target", Name: id, Known: e.Targets()}
	}
	delete(e.meshes, id)
	return nil
}

// Targets returns the registered ids, sorted.
func (e *Engine) Targets() []string {
	ids := make([]string, 0, len(e.meshes))
	for id := range e.meshes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Surface returns the registered surface for id.
func (e *Engine) Surface(id string) (*mesh.Surface, error) {
	s, ok := e.meshes[id]
	if !ok {
		return nil, &errdefs.NotFoundError{Kind: "projection target", Name: id, Known: e.Targets()}
	}
	return s, nil
}

// Last returns the retained result of the most recent run.
func (e *Engine) Last() (*Result, bool) {
	return e.last, e.last != nil
}

// Clean drops the retained result.
func (e *Engine) Clean() {
	e.last = nil
}

// Run projects the source set onto the target surface: it computes the
// per-vertex field, records its range on the set and the colorbar,
// derives the vertex states, and writes colors and states back onto
// the surface. The previous retained result is dropped once the
// parameters validate.
func (e *Engine) Run(targetID string, set *source.Set, cb *colorbar.State, p Params) (*Result, error) {
	if set == nil {
		return nil, errdefs.Config("sources", "a source set is required")
	}
	if cb == nil {
		return nil, errdefs.Config("colorbar", "a colorbar state is required")
	}
	if p.Radius <= 0 || math.IsNaN(p.Radius) || math.IsInf(p.Radius, 0) {
		return nil, errdefs.Config("radius", "radius must be positive and finite, got %v", p.Radius)
	}
	if p.Type != Activity && p.Type != Repartition {
		return nil, errdefs.Config("type", "unknown projection type %d", int(p.Type))
	}
	maskName := p.MaskColor
	if maskName == "" {
		maskName = "orange"
	}
	maskColor, err := colormap.ParseColor(maskName)
	if err != nil {
		return nil, err
	}

	e.Clean()
	surf, err := e.Surface(targetID)
	if err != nil {
		return nil, err
	}
	vertices := surf.Vertices

	start := time.Now()
	e.log.Info("projecting sources",
		zap.String("target", targetID),
		zap.Stringer("type", p.Type),
		zap.Float64("radius", p.Radius),
		zap.Bool("contribute", p.Contribute))

	var field *source.Field
	switch p.Type {
	case Activity:
		field, err = set.ProjectActivity(vertices, p.Radius, p.Contribute)
	case Repartition:
		field, err = set.ProjectRepartition(vertices, p.Radius, p.Contribute)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{Target: targetID, Field: field}

	valid := make([]float64, 0, len(field.Values))
	for i, v := range field.Values {
		if field.Valid[i] {
			valid = append(valid, v)
		}
	}
	if rng, ok := field.Range(); ok {
		set.SetRange(rng)
		cb.SetData(valid)
		if e.autoscale {
			if err := cb.Autoscale(); err != nil {
				return nil, err
			}
		}
		res.Range = rng
	} else {
		e.log.Warn("no vertex received any contribution", zap.String("target", targetID))
	}

	states := make([]mesh.VertexState, len(vertices))
	if set.AnyMasked() {
		reached, err := set.MaskedIndices(vertices, p.Radius, p.Contribute)
		if err != nil {
			return nil, err
		}
		for i, m := range reached {
			if m {
				states[i] = mesh.StateMasked
			}
		}
		surf.MaskColor = maskColor
		e.log.Info("masked sources reach the surface", zap.String("color", maskName))
	}
	// Masked-affected takes priority over uncontributed.
	for i, ok := range field.Valid {
		if !ok && states[i] != mesh.StateMasked {
			states[i] = mesh.StateUncontributed
		}
	}

	opts, err := cb.Params()
	if err != nil {
		return nil, err
	}
	colors, err := colormap.Map(field.Values, opts)
	if err != nil {
		return nil, err
	}
	for i := range colors {
		if states[i] == mesh.StateMasked {
			colors[i] = maskColor
		}
	}

	if err := surf.SetColors(colors); err != nil {
		return nil, err
	}
	if err := surf.SetMask(states); err != nil {
		return nil, err
	}

	res.Mask = append([]mesh.VertexState(nil), states...)
	res.Colors = append([]colormap.Color(nil), colors...)
	e.last = res

	if len(valid) > 0 {
		e.log.Info("projection finished",
			zap.String("target", targetID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("vertices", len(vertices)),
			zap.Int("contributed", len(valid)),
			zap.Float64("mean", stat.Mean(valid, nil)),
			zap.Float64("stddev", stat.StdDev(valid, nil)))
	}
	return res, nil
}
