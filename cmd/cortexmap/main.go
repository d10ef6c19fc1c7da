// cortexmap is a CLI for projecting source activity onto cortical
// meshes and for slicing, localizing against and extracting surfaces
// from ROI atlas volumes.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"cortexmap/internal/logger"
	"cortexmap/pkg/colormap"
	"cortexmap/pkg/config"
	"cortexmap/pkg/mesh"
	"cortexmap/pkg/projection"
	"cortexmap/pkg/roi"
	"cortexmap/pkg/source"
	"cortexmap/pkg/stl"
	"cortexmap/pkg/visualization"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "project":
		cmdProject(args)
	case "localize":
		cmdLocalize(args)
	case "surface":
		cmdSurface(args)
	case "slices":
		cmdSlices(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`cortexmap - cortical source projection and ROI atlas utility

Usage:
  cortexmap <command> [options]

Commands:
  project  -mesh brain.stl -sources src.csv [-out colored.ply]   Project source activity onto a mesh
  localize -points pts.csv [-out table.csv] [-atlas name]        Look points up in an atlas
  surface  -levels 4,6 [-out roi.stl] [-unique-color]            Extract an ROI isosurface
  slices   -out dir [-axis z] [-step 1]                          Save atlas slices as PNG images

Common options:
  -config config.yaml   Configuration file (defaults apply when missing)
  -atlas, -data         Override the configured atlas name and data directory

Examples:
  cortexmap project -mesh brain.stl -sources sources.csv -out colored.ply
  cortexmap localize -points electrodes.csv -atlas talairach -out table.csv
  cortexmap surface -levels 4,6 -unique-color -out broca.ply
  cortexmap slices -axis y -step 2 -out slices/`)
}

// setup loads the configuration and builds the root logger. Both are
// required by every command, so failures exit here.
func setup(configPath string) (*config.Config, *zap.Logger) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg, log
}

func fatal(log *zap.Logger, msg string, err error) {
	log.Error(msg, zap.Error(err))
	_ = log.Sync()
	os.Exit(1)
}

// readSources parses a CSV of sources or plain points.
func readSources(path string, log *zap.Logger) *source.Set {
	f, err := os.Open(path)
	if err != nil {
		fatal(log, "opening CSV", err)
	}
	defer f.Close()

	set, err := source.ReadCSV(f, log)
	if err != nil {
		fatal(log, "parsing CSV", err)
	}
	return set
}

// atlasVolume loads the predefined atlas, falling back to the
// configured name and data directory when the flags are empty.
func atlasVolume(cfg *config.Config, log *zap.Logger, atlas, dataDir string) *roi.Volume {
	if atlas == "" {
		atlas = cfg.ROI.Atlas
	}
	if dataDir == "" {
		dataDir = cfg.ROI.DataDir
	}
	vol, err := roi.LoadPredefined(atlas, dataDir, log)
	if err != nil {
		fatal(log, "loading atlas", err)
	}
	return vol
}

func cmdProject(args []string) {
	fs := flag.NewFlagSet("project", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Configuration file")
	meshPath := fs.String("mesh", "", "Cortical mesh (binary STL)")
	sourcesPath := fs.String("sources", "", "Sources CSV (x,y,z required; name,value,masked optional)")
	outPath := fs.String("out", "colored.ply", "Output PLY with per-vertex colors and states")
	target := fs.String("target", "cortex", "Mesh id in the projection registry")
	fs.Parse(args)

	if *meshPath == "" || *sourcesPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: cortexmap project -mesh brain.stl -sources src.csv [-out colored.ply]")
		os.Exit(1)
	}

	cfg, log := setup(*configPath)

	tris, err := stl.LoadFromSTL(*meshPath)
	if err != nil {
		fatal(log, "loading mesh", err)
	}
	surf, err := stl.ToSurface(tris)
	if err != nil {
		fatal(log, "welding mesh", err)
	}

	set := readSources(*sourcesPath, log)

	params, err := cfg.ProjectionParams()
	if err != nil {
		fatal(log, "reading projection settings", err)
	}
	cb := cfg.NewColorbar(log)

	var opts []projection.Option
	if cfg.Projection.AutoScale {
		opts = append(opts, projection.WithAutoscale())
	}
	eng := projection.NewEngine(log, opts...)
	if err := eng.Register(*target, surf); err != nil {
		fatal(log, "registering mesh", err)
	}

	res, err := eng.Run(*target, set, cb, params)
	if err != nil {
		fatal(log, "projecting sources", err)
	}

	if err := mesh.WritePLYFile(*outPath, surf); err != nil {
		fatal(log, "writing PLY", err)
	}

	fmt.Printf("Projected %d sources onto %d vertices (%s, field %g..%g)\n",
		set.Len(), surf.VertexCount(), params.Type, res.Range[0], res.Range[1])
	fmt.Printf("Colored mesh saved to: %s\n", *outPath)
}

func cmdLocalize(args []string) {
	fs := flag.NewFlagSet("localize", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Configuration file")
	pointsPath := fs.String("points", "", "Points CSV (x,y,z required; name optional)")
	outPath := fs.String("out", "localization.csv", "Output localization table")
	atlas := fs.String("atlas", "", "Atlas name (default from config)")
	dataDir := fs.String("data", "", "Atlas data directory (default from config)")
	fs.Parse(args)

	if *pointsPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: cortexmap localize -points pts.csv [-out table.csv]")
		os.Exit(1)
	}

	cfg, log := setup(*configPath)

	set := readSources(*pointsPath, log)
	vol := atlasVolume(cfg, log, *atlas, *dataDir)

	table, err := vol.Localize(set.Positions(), set.Names(), roi.LocalizeOptions{})
	if err != nil {
		fatal(log, "localizing points", err)
	}
	if err := table.SaveCSV(*outPath); err != nil {
		fatal(log, "writing table", err)
	}

	fmt.Printf("Localized %d points against %s\n", set.Len(), vol.Name)
	fmt.Printf("Table saved to: %s\n", *outPath)
}

func cmdSurface(args []string) {
	fs := flag.NewFlagSet("surface", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Configuration file")
	outPath := fs.String("out", "roi.stl", "Output mesh (.stl, or .ply to keep colors)")
	levels := fs.String("levels", "", "Comma separated labels to extract")
	threshold := fs.String("threshold", "", "Keep labels <= threshold instead of -levels")
	smooth := fs.Int("smooth", -1, "Box smoothing width, odd >= 3 or 0 to disable (default from config)")
	uniqueColor := fs.Bool("unique-color", false, "One random color per extracted label")
	atlas := fs.String("atlas", "", "Atlas name (default from config)")
	dataDir := fs.String("data", "", "Atlas data directory (default from config)")
	fs.Parse(args)

	if *levels == "" && *threshold == "" {
		fmt.Fprintln(os.Stderr, "Usage: cortexmap surface -levels 4,6 [-out roi.stl], or -threshold t")
		os.Exit(1)
	}

	cfg, log := setup(*configPath)
	vol := atlasVolume(cfg, log, *atlas, *dataDir)

	opts := cfg.SurfaceOptions()
	if *smooth >= 0 {
		opts.Smooth = *smooth
	}
	if *uniqueColor {
		opts.UniqueColor = true
	}

	var level roi.Level
	if *threshold != "" {
		t, err := strconv.ParseFloat(*threshold, 64)
		if err != nil {
			fatal(log, "parsing threshold", err)
		}
		level = roi.Threshold(t)
	} else {
		var ids []int32
		for _, part := range strings.Split(*levels, ",") {
			v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 32)
			if err != nil {
				fatal(log, "parsing levels", err)
			}
			ids = append(ids, int32(v))
		}
		if len(ids) == 1 && !opts.UniqueColor {
			level = roi.Exact(ids[0])
		} else {
			level = roi.AnyOf(ids)
		}
	}

	sm, err := vol.ExtractSurface(level, opts)
	if err != nil {
		fatal(log, "extracting surface", err)
	}
	if len(sm.Vertices) == 0 {
		fmt.Printf("Selection %s matched nothing in %s; no mesh written\n", level, vol.Name)
		return
	}

	if strings.EqualFold(filepath.Ext(*outPath), ".ply") {
		surf, err := mesh.NewSurface(sm.Vertices, sm.Faces)
		if err != nil {
			fatal(log, "indexing surface", err)
		}
		if sm.Colors != nil {
			if err := surf.SetColors(sm.Colors); err != nil {
				fatal(log, "coloring surface", err)
			}
		}
		if err := mesh.WritePLYFile(*outPath, surf); err != nil {
			fatal(log, "writing PLY", err)
		}
	} else {
		tris, err := stl.FromIndexed(sm.Vertices, sm.Faces)
		if err != nil {
			fatal(log, "triangulating surface", err)
		}
		if err := stl.SaveToSTL(*outPath, tris); err != nil {
			fatal(log, "writing STL", err)
		}
	}

	fmt.Printf("Extracted %s from %s: %d vertices, %d faces\n",
		level, vol.Name, len(sm.Vertices), len(sm.Faces))
	fmt.Printf("Mesh saved to: %s\n", *outPath)
}

func cmdSlices(args []string) {
	fs := flag.NewFlagSet("slices", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Configuration file")
	outDir := fs.String("out", "", "Output directory for PNG slices")
	axisName := fs.String("axis", "z", "Slice axis: x, y or z")
	step := fs.Int("step", 1, "Keep every step-th slice")
	atlas := fs.String("atlas", "", "Atlas name (default from config)")
	dataDir := fs.String("data", "", "Atlas data directory (default from config)")
	fs.Parse(args)

	if *outDir == "" {
		fmt.Fprintln(os.Stderr, "Usage: cortexmap slices -out dir [-axis z] [-step 1]")
		os.Exit(1)
	}

	cfg, log := setup(*configPath)

	axis, err := roi.ParseAxis(*axisName)
	if err != nil {
		fatal(log, "parsing axis", err)
	}
	vol := atlasVolume(cfg, log, *atlas, *dataDir)

	cmap, err := colormap.Lookup(cfg.Colorbar.Cmap)
	if err != nil {
		fatal(log, "looking up colormap", err)
	}
	viewer, err := visualization.NewViewer(vol, cmap, log)
	if err != nil {
		fatal(log, "building viewer", err)
	}

	paths, err := viewer.SaveSliceSequence(*outDir, axis, *step)
	if err != nil {
		fatal(log, "saving slices", err)
	}

	fmt.Printf("Saved %d %s-axis slices of %s to: %s\n", len(paths), axis, vol.Name, *outDir)
}
