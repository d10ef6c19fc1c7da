// Package colormap turns scalar fields into RGBA colors. It carries a
// small set of matplotlib-derived colormap tables, a color-name parser,
// and the pure mapping function used to color projected activity.
package colormap

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"cortexmap/pkg/errdefs"
)

// Color is an RGBA quadruplet with every channel in [0, 1].
type Color [4]float64

// Table is a linear-interpolation colormap: an ordered list of color
// stops spread evenly over [0, 1].
type Table struct {
	Name  string
	stops []Color
}

// At returns the interpolated color at position t, clamping t to [0, 1].
func (c *Table) At(t float64) Color {
	if t <= 0 || math.IsNaN(t) {
		return c.stops[0]
	}
	if t >= 1 {
		return c.stops[len(c.stops)-1]
	}

	idx := t * float64(len(c.stops)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(c.stops) {
		upper = len(c.stops) - 1
	}

	frac := idx - float64(lower)
	return lerp(c.stops[lower], c.stops[upper], frac)
}

// Reversed returns a copy of the table with the stop order flipped and
// "_r" appended to the name.
func (c *Table) Reversed() *Table {
	rev := make([]Color, len(c.stops))
	for i, s := range c.stops {
		rev[len(rev)-1-i] = s
	}
	return &Table{Name: c.Name + "_r", stops: rev}
}

func lerp(a, b Color, t float64) Color {
	var out Color
	for ch := 0; ch < 4; ch++ {
		out[ch] = a[ch] + t*(b[ch]-a[ch])
	}
	return out
}

func tableFromRGB8(name string, stops [][3]uint8) *Table {
	cs := make([]Color, len(stops))
	for i, s := range stops {
		cs[i] = Color{float64(s[0]) / 255, float64(s[1]) / 255, float64(s[2]) / 255, 1}
	}
	return &Table{Name: name, stops: cs}
}

// Viridis colormap (matplotlib viridis).
var Viridis = tableFromRGB8("viridis", [][3]uint8{
	{68, 1, 84},
	{72, 35, 116},
	{64, 67, 135},
	{52, 94, 141},
	{41, 120, 142},
	{32, 144, 140},
	{34, 167, 132},
	{68, 190, 112},
	{121, 209, 81},
	{189, 222, 38},
	{253, 231, 37},
})

// Plasma colormap.
var Plasma = tableFromRGB8("plasma", [][3]uint8{
	{13, 8, 135},
	{75, 3, 161},
	{125, 3, 168},
	{168, 34, 150},
	{203, 70, 121},
	{229, 107, 93},
	{248, 148, 65},
	{253, 195, 40},
	{240, 249, 33},
})

// Inferno colormap.
var Inferno = tableFromRGB8("inferno", [][3]uint8{
	{0, 0, 4},
	{40, 11, 84},
	{101, 21, 110},
	{159, 42, 99},
	{212, 72, 66},
	{245, 125, 21},
	{250, 193, 39},
	{252, 255, 164},
})

// Magma colormap.
var Magma = tableFromRGB8("magma", [][3]uint8{
	{0, 0, 4},
	{28, 16, 68},
	{79, 18, 123},
	{129, 37, 129},
	{181, 54, 122},
	{229, 80, 100},
	{251, 135, 97},
	{254, 194, 135},
	{252, 253, 191},
})

// Gray colormap, black to white.
var Gray = tableFromRGB8("gray", [][3]uint8{
	{0, 0, 0},
	{255, 255, 255},
})

var tables = map[string]*Table{}

func init() {
	for _, t := range []*Table{Viridis, Plasma, Inferno, Magma, Gray} {
		tables[t.Name] = t
		r := t.Reversed()
		tables[r.Name] = r
	}
}

// Lookup resolves a colormap name, including the "_r" reversed variants.
func Lookup(name string) (*Table, error) {
	if t, ok := tables[strings.ToLower(name)]; ok {
		return t, nil
	}
	return nil, &errdefs.NotFoundError{Kind: "colormap", Name: name, Known: Names()}
}

// Names lists the registered colormap names, sorted.
func Names() []string {
	names := make([]string, 0, len(tables))
	for n := range tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var named = map[string][3]uint8{
	"white":     {255, 255, 255},
	"black":     {0, 0, 0},
	"gray":      {128, 128, 128},
	"lightgray": {211, 211, 211},
	"red":       {255, 0, 0},
	"darkred":   {139, 0, 0},
	"green":     {0, 128, 0},
	"blue":      {0, 0, 255},
	"slateblue": {106, 90, 205},
	"orange":    {255, 165, 0},
	"yellow":    {255, 255, 0},
	"cyan":      {0, 255, 255},
	"magenta":   {255, 0, 255},
	"purple":    {128, 0, 128},
	"brown":     {165, 42, 42},
	"olive":     {128, 128, 0},
}

// ParseColor resolves a named color or a "#rrggbb"/"#rrggbbaa" hex string
// into an RGBA quadruplet.
func ParseColor(s string) (Color, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if rgb, ok := named[key]; ok {
		return Color{float64(rgb[0]) / 255, float64(rgb[1]) / 255, float64(rgb[2]) / 255, 1}, nil
	}
	if strings.HasPrefix(key, "#") {
		hex := key[1:]
		if len(hex) != 6 && len(hex) != 8 {
			return Color{}, errdefs.Config("color", "hex form must be #rrggbb or #rrggbbaa, got %q", s)
		}
		var out Color
		out[3] = 1
		for i := 0; i*2 < len(hex); i++ {
			v, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
			if err != nil {
				return Color{}, errdefs.Config("color", "bad hex digit in %q", s)
			}
			out[i] = float64(v) / 255
		}
		return out, nil
	}
	return Color{}, errdefs.Config("color", "unknown color %q", s)
}

// Options carries the mapping parameters. Clim bounds the normalization
// range; when nil the data range of the values is used. The under and
// over substitutions apply only when their Is flag is set, and they
// compare against the raw values, not the normalized ones.
type Options struct {
	Cmap string
	Clim *[2]float64

	IsVMin bool
	VMin   float64
	Under  Color

	IsVMax bool
	VMax   float64
	Over   Color
}

// Map converts values into colors. It is a pure function: neither the
// values nor the options are mutated, and identical inputs always give
// identical output.
func Map(values []float64, opt Options) ([]Color, error) {
	table, err := Lookup(opt.Cmap)
	if err != nil {
		return nil, err
	}
	if opt.IsVMin && opt.IsVMax && opt.VMin >= opt.VMax {
		return nil, errdefs.Config("vmin", "must be below vmax, got vmin=%v vmax=%v", opt.VMin, opt.VMax)
	}
	if len(values) == 0 {
		return []Color{}, nil
	}

	var clim [2]float64
	if opt.Clim != nil {
		clim = *opt.Clim
	} else {
		clim[0] = floats.Min(values)
		clim[1] = floats.Max(values)
	}
	span := clim[1] - clim[0]

	out := make([]Color, len(values))
	for i, x := range values {
		switch {
		case math.IsNaN(x):
			out[i] = table.At(0)
		case span <= 0:
			// Degenerate range: a single uniform color, never NaN.
			out[i] = table.At(0.5)
		default:
			out[i] = table.At((x - clim[0]) / span)
		}
		if opt.IsVMin && x < opt.VMin {
			out[i] = opt.Under
		}
		if opt.IsVMax && x > opt.VMax {
			out[i] = opt.Over
		}
	}
	return out, nil
}
