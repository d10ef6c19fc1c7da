// Package colorbar holds the mutable configuration behind a colorbar:
// the colormap name, the color limits, the under/over thresholds and the
// text styling. The state object records the range of the data it was
// last shown and can export itself both as mapper parameters and as a
// serializable snapshot.
package colorbar

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"cortexmap/pkg/colormap"
	"cortexmap/pkg/errdefs"
)

// State is the colorbar configuration. Fields mirror what the colorbar
// needs to draw itself and what the mapper needs to color data; mutate
// them directly or through the options at construction.
type State struct {
	Cmap string      `yaml:"cmap"`
	Clim *[2]float64 `yaml:"clim"`

	IsVMin bool    `yaml:"isvmin"`
	VMin   float64 `yaml:"vmin"`
	Under  string  `yaml:"under"`

	IsVMax bool    `yaml:"isvmax"`
	VMax   float64 `yaml:"vmax"`
	Over   string  `yaml:"over"`

	Label      string  `yaml:"label"`
	LabelSize  float64 `yaml:"labelSize"`
	LabelShift float64 `yaml:"labelShift"`
	TxtColor   string  `yaml:"txtColor"`
	TxtSize    float64 `yaml:"txtSize"`
	TxtShift   float64 `yaml:"txtShift"`
	Border     bool    `yaml:"border"`
	LimText    bool    `yaml:"limText"`
	BgColor    string  `yaml:"bgColor"`
	NDigits    int     `yaml:"ndigits"`

	// MinMax is the cached range of the last data handed to SetData. It
	// is the default range Autoscale applies to Clim.
	MinMax *[2]float64 `yaml:"minmax"`

	log *zap.Logger
}

// Option mutates a State during construction.
type Option func(*State)

// WithCmap sets the colormap name.
func WithCmap(name string) Option { return func(s *State) { s.Cmap = name } }

// WithClim sets the color limits.
func WithClim(lo, hi float64) Option {
	return func(s *State) { s.Clim = &[2]float64{lo, hi} }
}

// WithVMin enables the under threshold with the given substitute color.
func WithVMin(v float64, under string) Option {
	return func(s *State) { s.IsVMin, s.VMin, s.Under = true, v, under }
}

// WithVMax enables the over threshold with the given substitute color.
func WithVMax(v float64, over string) Option {
	return func(s *State) { s.IsVMax, s.VMax, s.Over = true, v, over }
}

// WithLabel sets the colorbar label text.
func WithLabel(label string) Option { return func(s *State) { s.Label = label } }

// New builds a State with the usual defaults applied, then the options.
// A nil logger is replaced by a no-op one.
func New(log *zap.Logger, opts ...Option) *State {
	if log == nil {
		log = zap.NewNop()
	}
	s := &State{
		Cmap:      "viridis",
		Under:     "gray",
		Over:      "red",
		TxtColor:  "white",
		LabelSize: 5,
		TxtSize:   3,
		BgColor:   "black",
		NDigits:   2,
		LimText:   true,
		log:       log.Named("colorbar"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetData records the (min, max) of values as the default range. The
// color limits themselves are left alone; call Autoscale to adopt the
// recorded range. Empty input clears nothing and records nothing.
func (s *State) SetData(values []float64) {
	if len(values) == 0 {
		return
	}
	mm := [2]float64{floats.Min(values), floats.Max(values)}
	s.MinMax = &mm
	s.log.Debug("data range recorded", zap.Float64("min", mm[0]), zap.Float64("max", mm[1]))
}

// Autoscale resets Clim to the cached data range.
func (s *State) Autoscale() error {
	if s.MinMax == nil {
		return errdefs.Config("clim", "autoscale needs a recorded data range, call SetData first")
	}
	clim := *s.MinMax
	s.Clim = &clim
	s.log.Debug("clim autoscaled", zap.Float64("low", clim[0]), zap.Float64("high", clim[1]))
	return nil
}

// Params resolves the state into mapper parameters. Color names are
// parsed here so a bad configuration surfaces as an error instead of a
// wrong color.
func (s *State) Params() (colormap.Options, error) {
	opt := colormap.Options{Cmap: s.Cmap}
	if s.Clim != nil {
		clim := *s.Clim
		opt.Clim = &clim
	}
	if s.IsVMin {
		under, err := colormap.ParseColor(s.Under)
		if err != nil {
			return colormap.Options{}, err
		}
		opt.IsVMin, opt.VMin, opt.Under = true, s.VMin, under
	}
	if s.IsVMax {
		over, err := colormap.ParseColor(s.Over)
		if err != nil {
			return colormap.Options{}, err
		}
		opt.IsVMax, opt.VMax, opt.Over = true, s.VMax, over
	}
	return opt, nil
}

// Snapshot is the serializable form of a State with the named colors
// additionally resolved to RGBA, so a consumer does not need the name
// tables to reproduce the exact colors.
type Snapshot struct {
	Cmap string      `yaml:"cmap"`
	Clim *[2]float64 `yaml:"clim"`

	IsVMin bool    `yaml:"isvmin"`
	VMin   float64 `yaml:"vmin"`
	Under  string  `yaml:"under"`
	IsVMax bool    `yaml:"isvmax"`
	VMax   float64 `yaml:"vmax"`
	Over   string  `yaml:"over"`

	UnderRGBA *colormap.Color `yaml:"underRGBA"`
	OverRGBA  *colormap.Color `yaml:"overRGBA"`

	Label      string      `yaml:"label"`
	LabelSize  float64     `yaml:"labelSize"`
	LabelShift float64     `yaml:"labelShift"`
	TxtColor   string      `yaml:"txtColor"`
	TxtSize    float64     `yaml:"txtSize"`
	TxtShift   float64     `yaml:"txtShift"`
	Border     bool        `yaml:"border"`
	LimText    bool        `yaml:"limText"`
	BgColor    string      `yaml:"bgColor"`
	NDigits    int         `yaml:"ndigits"`
	MinMax     *[2]float64 `yaml:"minmax"`
}

// Snapshot exports the state. Unresolvable color names leave the RGBA
// fields nil; the names are still carried.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Cmap:   s.Cmap,
		IsVMin: s.IsVMin, VMin: s.VMin, Under: s.Under,
		IsVMax: s.IsVMax, VMax: s.VMax, Over: s.Over,
		Label: s.Label, LabelSize: s.LabelSize, LabelShift: s.LabelShift,
		TxtColor: s.TxtColor, TxtSize: s.TxtSize, TxtShift: s.TxtShift,
		Border: s.Border, LimText: s.LimText, BgColor: s.BgColor,
		NDigits: s.NDigits,
	}
	if s.Clim != nil {
		clim := *s.Clim
		snap.Clim = &clim
	}
	if s.MinMax != nil {
		mm := *s.MinMax
		snap.MinMax = &mm
	}
	if c, err := colormap.ParseColor(s.Under); err == nil {
		snap.UnderRGBA = &c
	}
	if c, err := colormap.ParseColor(s.Over); err == nil {
		snap.OverRGBA = &c
	}
	return snap
}

// FromSnapshot rebuilds a State from its serialized form.
func FromSnapshot(snap Snapshot, log *zap.Logger) *State {
	s := New(log)
	s.Cmap = snap.Cmap
	s.IsVMin, s.VMin, s.Under = snap.IsVMin, snap.VMin, snap.Under
	s.IsVMax, s.VMax, s.Over = snap.IsVMax, snap.VMax, snap.Over
	s.Label, s.LabelSize, s.LabelShift = snap.Label, snap.LabelSize, snap.LabelShift
	s.TxtColor, s.TxtSize, s.TxtShift = snap.TxtColor, snap.TxtSize, snap.TxtShift
	s.Border, s.LimText, s.BgColor = snap.Border, snap.LimText, snap.BgColor
	s.NDigits = snap.NDigits
	if snap.Clim != nil {
		clim := *snap.Clim
		s.Clim = &clim
	}
	if snap.MinMax != nil {
		mm := *snap.MinMax
		s.MinMax = &mm
	}
	return s
}
