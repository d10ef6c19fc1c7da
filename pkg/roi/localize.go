package roi

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"go.uber.org/zap"

	"cortexmap/pkg/coords"
	"cortexmap/pkg/errdefs"
)

// DefaultBadPatterns are the label cell values treated as missing.
var DefaultBadPatterns = []string{"-1", "undefined", "None"}

// DefaultReplaceWith substitutes missing or unresolvable labels.
const DefaultReplaceWith = "Not found"

// LocalizeOptions tunes the bad-value replacement. Zero values select
// the defaults.
type LocalizeOptions struct {
	// BadPatterns lists label cell values replaced by ReplaceWith.
	BadPatterns []string
	// ReplaceWith fills sentinel rows and replaced cells.
	ReplaceWith string
}

// Table is a column-labeled result grid.
type Table struct {
	Columns []string
	Rows    [][]string
}

// WriteCSV writes the table with a header row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the table to a file.
func (t *Table) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := t.WriteCSV(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Localize maps world-space points to region labels. Each point goes
// through the inverse affine into voxel space, is rounded to the
// nearest voxel and looked up in the label table. Points outside the
// grid or with an unknown label produce a sentinel row instead of an
// error, so the table always has one row per point.
//
// The output columns are "name", the label table columns, then the
// "x", "y", "z" the lookup actually used. Volumes in the tal system
// convert the points from MNI to Talairach first and report the
// converted coordinates.
func (v *Volume) Localize(points [][3]float64, names []string, opts LocalizeOptions) (*Table, error) {
	if v.Labels == nil {
		return nil, &errdefs.DependencyError{
			Dependency: "label table",
			Reason:     fmt.Sprintf("volume %q carries no labels to localize against", v.Name),
		}
	}
	if names == nil {
		names = make([]string, len(points))
		for i := range names {
			names[i] = "s" + strconv.Itoa(i)
		}
	}
	if len(names) != len(points) {
		return nil, errdefs.Shape("names", fmt.Sprintf("%d entries", len(points)), len(names))
	}

	badPatterns := opts.BadPatterns
	if badPatterns == nil {
		badPatterns = DefaultBadPatterns
	}
	replaceWith := opts.ReplaceWith
	if replaceWith == "" {
		replaceWith = DefaultReplaceWith
	}

	if v.System == SystemTalairach {
		points = coords.MNIToTalairach(points)
	}

	ncols := len(v.Labels.Columns)
	table := &Table{
		Columns: make([]string, 0, ncols+4),
		Rows:    make([][]string, 0, len(points)),
	}
	table.Columns = append(table.Columns, "name")
	table.Columns = append(table.Columns, v.Labels.Columns...)
	table.Columns = append(table.Columns, "x", "y", "z")

	found := 0
	for i, p := range points {
		labels, ok, err := v.labelsAt(p)
		if err != nil {
			return nil, fmt.Errorf("localizing %s: %w", names[i], err)
		}

		row := make([]string, 0, ncols+4)
		row = append(row, names[i])
		if ok {
			found++
			for _, cell := range labels {
				row = append(row, cleanCell(cell, badPatterns, replaceWith))
			}
		} else {
			for c := 0; c < ncols; c++ {
				row = append(row, replaceWith)
			}
		}
		row = append(row,
			formatCoord(p[0]),
			formatCoord(p[1]),
			formatCoord(p[2]))
		table.Rows = append(table.Rows, row)
	}

	v.log.Info("localized points",
		zap.String("volume", v.Name),
		zap.Int("points", len(points)),
		zap.Int("found", found))
	return table, nil
}

// labelsAt resolves one world-space point to its label row.
func (v *Volume) labelsAt(p [3]float64) ([]string, bool, error) {
	voxel, err := v.Affine.Solve(p)
	if err != nil {
		return nil, false, err
	}
	var sub [3]int
	for c := 0; c < 3; c++ {
		sub[c] = int(math.Round(voxel[c]))
	}
	raw, inside := v.Value(sub[0], sub[1], sub[2])
	if !inside {
		return nil, false, nil
	}
	row, ok := v.Labels.Find(raw + v.Offset)
	return row, ok, nil
}

func cleanCell(cell string, badPatterns []string, replaceWith string) string {
	if cell == "" || cell == "NaN" {
		return replaceWith
	}
	for _, p := range badPatterns {
		if cell == p {
			return replaceWith
		}
	}
	return cell
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
