package projection

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"cortexmap/pkg/colorbar"
	"cortexmap/pkg/colormap"
	"cortexmap/pkg/errdefs"
	"cortexmap/pkg/mesh"
	"cortexmap/pkg/source"
)

func lineSurface(t *testing.T) *mesh.Surface {
	t.Helper()
	s, err := mesh.NewSurface([][3]float64{
		{0, 0, 0},
		{10, 0, 0},
		{20, 0, 0},
		{30, 0, 0},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func singleSourceSet(t *testing.T) *source.Set {
	t.Helper()
	set, err := source.New([]source.Source{{Pos: [3]float64{0, 2, 0}, Value: 1}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func TestParseType(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Type
	}{
		{"activity", Activity},
		{"repartition", Repartition},
	} {
		got, err := ParseType(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseType(%q) = %v, %v", tc.in, got, err)
		}
		if got.String() != tc.in {
			t.Errorf("String() = %q, want %q", got.String(), tc.in)
		}
	}
	if _, err := ParseType("nearest"); err == nil || !errdefs.IsConfig(err) {
		t.Errorf("unknown type should be a ConfigError, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	e := NewEngine(nil)
	surf := lineSurface(t)

	if err := e.Register("", surf); err == nil || !errdefs.IsConfig(err) {
		t.Errorf("empty id should be a ConfigError, got %v", err)
	}
	if err := e.Register("brain", nil); err == nil || !errdefs.IsConfig(err) {
		t.Errorf("nil surface should be a ConfigError, got %v", err)
	}
	if err := e.Register("brain", surf); err != nil {
		t.Fatal(err)
	}
	if err := e.Register("brain", surf); err == nil || !errdefs.IsConfig(err) {
		t.Errorf("duplicate id should be a ConfigError, got %v", err)
	}
	if err := e.Register("atlas", surf); err != nil {
		t.Fatal(err)
	}
	if got := e.Targets(); !reflect.DeepEqual(got, []string{"atlas", "brain"}) {
		t.Errorf("Targets() = %v, want sorted ids", got)
	}

	if err := e.Unregister("cortex"); err == nil || !errdefs.IsNotFound(err) {
		t.Errorf("unknown id should be a NotFoundError, got %v", err)
	}
	if err := e.Unregister("atlas"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Surface("atlas"); err == nil || !errdefs.IsNotFound(err) {
		t.Errorf("unregistered id should be a NotFoundError, got %v", err)
	}
}

func TestRunUnknownTarget(t *testing.T) {
	e := NewEngine(nil)
	if err := e.Register("brain", lineSurface(t)); err != nil {
		t.Fatal(err)
	}
	_, err := e.Run("cortex", singleSourceSet(t), colorbar.New(nil), DefaultParams())
	var nf *errdefs.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("want NotFoundError, got %v", err)
	}
	if len(nf.Known) != 1 || nf.Known[0] != "brain" {
		t.Errorf("known targets = %v, want [brain]", nf.Known)
	}
}

func TestRunRepartitionLine(t *testing.T) {
	e := NewEngine(nil)
	surf := lineSurface(t)
	if err := e.Register("brain", surf); err != nil {
		t.Fatal(err)
	}
	set := singleSourceSet(t)
	cb := colorbar.New(nil)

	p := DefaultParams()
	p.Type = Repartition
	p.Radius = 3
	res, err := e.Run("brain", set, cb, p)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(res.Field.Values, []float64{1, 0, 0, 0}) {
		t.Errorf("field = %v, want [1 0 0 0]", res.Field.Values)
	}
	wantMask := []mesh.VertexState{
		mesh.StateNormal,
		mesh.StateUncontributed,
		mesh.StateUncontributed,
		mesh.StateUncontributed,
	}
	if !reflect.DeepEqual(surf.Mask, wantMask) {
		t.Errorf("surface mask = %v, want %v", surf.Mask, wantMask)
	}
	if res.Range != [2]float64{1, 1} {
		t.Errorf("range = %v, want [1 1]", res.Range)
	}
	if mm, ok := set.Range(); !ok || mm != [2]float64{1, 1} {
		t.Errorf("source range = %v (%v)", mm, ok)
	}
	if last, ok := e.Last(); !ok || last != res {
		t.Error("result should be retained")
	}

	// With radius 1 nothing contributes and every vertex is flagged.
	p.Radius = 1
	res, err = e.Run("brain", set, cb, p)
	if err != nil {
		t.Fatal(err)
	}
	for i, st := range surf.Mask {
		if st != mesh.StateUncontributed {
			t.Errorf("vertex %d state = %v, want uncontributed", i, st)
		}
	}
	if res.Range != [2]float64{0, 0} {
		t.Errorf("range = %v, want zero when nothing contributed", res.Range)
	}
}

func TestRunMaskedPrecedence(t *testing.T) {
	e := NewEngine(nil)
	surf := lineSurface(t)
	if err := e.Register("brain", surf); err != nil {
		t.Fatal(err)
	}
	// The masked source reaches only vertex 0, so vertex 0 is both
	// uncontributed and masked-affected. The unmasked source keeps
	// vertex 1 contributing.
	set, err := source.New([]source.Source{
		{Pos: [3]float64{0, 2, 0}, Value: 5, Masked: true},
		{Pos: [3]float64{10, 2, 0}, Value: 7},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	p := DefaultParams()
	p.Radius = 3
	res, err := e.Run("brain", set, colorbar.New(nil), p)
	if err != nil {
		t.Fatal(err)
	}

	if surf.Mask[0] != mesh.StateMasked {
		t.Errorf("vertex 0 state = %v, want masked to win over uncontributed", surf.Mask[0])
	}
	if surf.Mask[1] != mesh.StateNormal {
		t.Errorf("vertex 1 state = %v, want normal", surf.Mask[1])
	}
	if surf.Mask[2] != mesh.StateUncontributed || surf.Mask[3] != mesh.StateUncontributed {
		t.Error("distant vertices should be uncontributed")
	}

	orange, err := colormap.ParseColor("orange")
	if err != nil {
		t.Fatal(err)
	}
	if surf.Color[0] != orange || res.Colors[0] != orange {
		t.Errorf("masked vertex color = %v, want %v", surf.Color[0], orange)
	}
	if surf.MaskColor != orange {
		t.Errorf("surface mask color = %v, want %v", surf.MaskColor, orange)
	}
	if res.Field.Valid[0] {
		t.Error("masked sources must not contribute activity")
	}
}

func TestRunIdempotent(t *testing.T) {
	e := NewEngine(nil)
	surf := lineSurface(t)
	if err := e.Register("brain", surf); err != nil {
		t.Fatal(err)
	}
	set := singleSourceSet(t)
	cb := colorbar.New(nil)
	p := DefaultParams()
	p.Radius = 3

	first, err := e.Run("brain", set, cb, p)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Run("brain", set, cb, p)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Mask, second.Mask) {
		t.Error("mask should be identical across identical runs")
	}
	if !reflect.DeepEqual(first.Colors, second.Colors) {
		t.Error("colors should be identical across identical runs")
	}
	if !reflect.DeepEqual(first.Field.Values, second.Field.Values) {
		t.Error("field should be identical across identical runs")
	}
}

func TestRunValidationLeavesStateAlone(t *testing.T) {
	e := NewEngine(nil)
	surf := lineSurface(t)
	if err := e.Register("brain", surf); err != nil {
		t.Fatal(err)
	}
	set := singleSourceSet(t)
	cb := colorbar.New(nil)
	p := DefaultParams()
	p.Radius = 3
	if _, err := e.Run("brain", set, cb, p); err != nil {
		t.Fatal(err)
	}
	colorsBefore := append([]colormap.Color(nil), surf.Color...)

	bad := p
	bad.Radius = math.NaN()
	if _, err := e.Run("brain", set, cb, bad); err == nil || !errdefs.IsConfig(err) {
		t.Fatalf("NaN radius should be a ConfigError, got %v", err)
	}
	bad = p
	bad.MaskColor = "notacolor"
	if _, err := e.Run("brain", set, cb, bad); err == nil || !errdefs.IsConfig(err) {
		t.Fatalf("bad mask color should be a ConfigError, got %v", err)
	}
	bad = p
	bad.Type = Type(9)
	if _, err := e.Run("brain", set, cb, bad); err == nil || !errdefs.IsConfig(err) {
		t.Fatalf("bad type should be a ConfigError, got %v", err)
	}

	if !reflect.DeepEqual(surf.Color, colorsBefore) {
		t.Error("failed validation must not touch the surface")
	}
	if _, ok := e.Last(); !ok {
		t.Error("failed validation must keep the retained result")
	}
}

func TestRunAutoscale(t *testing.T) {
	surf := lineSurface(t)
	set, err := source.New([]source.Source{
		{Pos: [3]float64{0, 2, 0}, Value: -4},
		{Pos: [3]float64{10, 2, 0}, Value: 6},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	p := DefaultParams()
	p.Radius = 3

	plain := NewEngine(nil)
	if err := plain.Register("brain", surf); err != nil {
		t.Fatal(err)
	}
	cb := colorbar.New(nil)
	if _, err := plain.Run("brain", set, cb, p); err != nil {
		t.Fatal(err)
	}
	if cb.Clim != nil {
		t.Errorf("clim should stay unset without autoscale, got %v", cb.Clim)
	}

	auto := NewEngine(nil, WithAutoscale())
	if err := auto.Register("brain", surf); err != nil {
		t.Fatal(err)
	}
	cb = colorbar.New(nil)
	if _, err := auto.Run("brain", set, cb, p); err != nil {
		t.Fatal(err)
	}
	if cb.Clim == nil || *cb.Clim != [2]float64{-4, 6} {
		t.Errorf("clim = %v, want [-4 6] after autoscale", cb.Clim)
	}
}

func TestClean(t *testing.T) {
	e := NewEngine(nil)
	if err := e.Register("brain", lineSurface(t)); err != nil {
		t.Fatal(err)
	}
	p := DefaultParams()
	p.Radius = 3
	if _, err := e.Run("brain", singleSourceSet(t), colorbar.New(nil), p); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.Last(); !ok {
		t.Fatal("result should be retained after a run")
	}
	e.Clean()
	if _, ok := e.Last(); ok {
		t.Error("Clean should drop the retained result")
	}
}
