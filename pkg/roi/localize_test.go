package roi

import (
	"reflect"
	"strings"
	"testing"

	"cortexmap/pkg/coords"
	"cortexmap/pkg/errdefs"
)

func TestLocalizeFindsLabels(t *testing.T) {
	v := testVolume(t)
	table, err := v.Localize([][3]float64{
		{5, 5, 5},
		{0, 0, 0},
		{50, 50, 50},
		{-1, 0, 0},
	}, nil, LocalizeOptions{})
	if err != nil {
		t.Fatal(err)
	}

	wantCols := []string{"name", "label", "x", "y", "z"}
	if !reflect.DeepEqual(table.Columns, wantCols) {
		t.Fatalf("columns = %v, want %v", table.Columns, wantCols)
	}
	if len(table.Rows) != 4 {
		t.Fatalf("rows = %d, want one per point", len(table.Rows))
	}

	if got := table.Rows[0]; got[0] != "s0" || got[1] != "B" {
		t.Errorf("row 0 = %v, want s0 -> B", got)
	}
	if got := table.Rows[1]; got[1] != "A" {
		t.Errorf("row 1 = %v, want label A", got)
	}
	for _, i := range []int{2, 3} {
		if got := table.Rows[i]; got[1] != "Not found" {
			t.Errorf("row %d = %v, want the sentinel for an out-of-bounds point", i, got)
		}
	}
	if got := table.Rows[0]; got[2] != "5" || got[3] != "5" || got[4] != "5" {
		t.Errorf("row 0 coordinates = %v", got[2:])
	}
}

func TestLocalizeNeverAborts(t *testing.T) {
	v := testVolume(t)
	points := [][3]float64{
		{1e9, 0, 0},
		{5, 5, 5},
		{-1e9, -1e9, -1e9},
	}
	table, err := v.Localize(points, []string{"far", "hit", "farther"}, LocalizeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != len(points) {
		t.Fatalf("rows = %d, want %d", len(table.Rows), len(points))
	}
	if table.Rows[1][1] != "B" {
		t.Errorf("the valid point should still resolve, got %v", table.Rows[1])
	}
}

func TestLocalizeIdempotent(t *testing.T) {
	v := testVolume(t)
	points := [][3]float64{{5, 5, 5}, {2, 3, 4}, {99, 0, 0}}
	first, err := v.Localize(points, nil, LocalizeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := v.Localize(points, nil, LocalizeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical queries should produce identical tables")
	}
}

func TestLocalizeOffset(t *testing.T) {
	v := testVolume(t, WithOffset(-1))
	// Voxel (5,5,5) holds 2; with the offset the lookup key is 1.
	table, err := v.Localize([][3]float64{{5, 5, 5}}, nil, LocalizeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if table.Rows[0][1] != "A" {
		t.Errorf("offset lookup = %v, want A", table.Rows[0])
	}
}

func TestLocalizeAffine(t *testing.T) {
	affine, err := coords.FromSlice([]float64{
		2, 0, 0, -5,
		0, 2, 0, -5,
		0, 0, 2, -5,
		0, 0, 0, 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	dims := [3]int{10, 10, 10}
	data := make([]int32, 1000)
	for i := range data {
		data[i] = 1
	}
	data[(5*10+5)*10+5] = 2
	labels := &LabelTable{Columns: []string{"label"}, Index: []int32{1, 2}, Rows: [][]string{{"A"}, {"B"}}}
	v, err := NewVolume("scaled", data, dims, affine, WithLabels(labels))
	if err != nil {
		t.Fatal(err)
	}

	// World point 2*5-5 = 5 lands on voxel (5,5,5).
	table, err := v.Localize([][3]float64{{5, 5, 5}, {4.1, 5, 5}}, nil, LocalizeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if table.Rows[0][1] != "B" {
		t.Errorf("world (5,5,5) = %v, want B", table.Rows[0])
	}
	// 4.1 maps to voxel 4.55 which rounds to 5.
	if table.Rows[1][1] != "B" {
		t.Errorf("world (4.1,5,5) = %v, want B after rounding", table.Rows[1])
	}
}

func TestLocalizeTalairachConversion(t *testing.T) {
	v := testVolume(t, WithSystem(SystemTalairach))
	points := [][3]float64{{0, 5, 5}}
	converted := coords.MNIToTalairach(points)

	table, err := v.Localize(points, nil, LocalizeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	row := table.Rows[0]
	want := []string{
		formatCoord(converted[0][0]),
		formatCoord(converted[0][1]),
		formatCoord(converted[0][2]),
	}
	if row[2] != want[0] || row[3] != want[1] || row[4] != want[2] {
		t.Errorf("coordinates = %v, want the converted %v", row[2:], want)
	}
}

func TestLocalizeBadPatterns(t *testing.T) {
	dims := [3]int{2, 2, 2}
	data := []int32{1, 1, 1, 1, 2, 2, 2, 2}
	labels := &LabelTable{
		Columns: []string{"label", "region"},
		Index:   []int32{1, 2},
		Rows:    [][]string{{"-1", "undefined"}, {"ok", ""}},
	}
	v, err := NewVolume("bad", data, dims, coords.Identity(), WithLabels(labels))
	if err != nil {
		t.Fatal(err)
	}

	table, err := v.Localize([][3]float64{{0, 0, 0}, {0, 0, 1}}, nil, LocalizeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if table.Rows[0][1] != "Not found" || table.Rows[0][2] != "Not found" {
		t.Errorf("bad patterns not replaced: %v", table.Rows[0])
	}
	if table.Rows[1][1] != "ok" || table.Rows[1][2] != "Not found" {
		t.Errorf("empty cell not replaced: %v", table.Rows[1])
	}

	custom, err := v.Localize([][3]float64{{0, 0, 0}}, nil, LocalizeOptions{
		BadPatterns: []string{"nothing matches this"},
		ReplaceWith: "n/a",
	})
	if err != nil {
		t.Fatal(err)
	}
	if custom.Rows[0][1] != "-1" || custom.Rows[0][2] != "undefined" {
		t.Errorf("custom patterns should leave other cells alone: %v", custom.Rows[0])
	}
}

func TestLocalizeValidation(t *testing.T) {
	noLabels, err := NewVolume("plain", make([]int32, 8), [3]int{2, 2, 2}, coords.Identity())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := noLabels.Localize([][3]float64{{0, 0, 0}}, nil, LocalizeOptions{}); err == nil || !errdefs.IsDependency(err) {
		t.Errorf("missing label table should be a DependencyError, got %v", err)
	}

	v := testVolume(t)
	if _, err := v.Localize([][3]float64{{0, 0, 0}}, []string{"a", "b"}, LocalizeOptions{}); err == nil || !errdefs.IsShape(err) {
		t.Errorf("name count mismatch should be a ShapeError, got %v", err)
	}
}

func TestTableWriteCSV(t *testing.T) {
	table := &Table{
		Columns: []string{"name", "label", "x", "y", "z"},
		Rows: [][]string{
			{"s0", "B", "5", "5", "5"},
			{"s1", "Not found", "50", "50", "50"},
		},
	}
	var sb strings.Builder
	if err := table.WriteCSV(&sb); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header plus two rows", len(lines))
	}
	if lines[0] != "name,label,x,y,z" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[2] != "s1,Not found,50,50,50" {
		t.Errorf("row = %q", lines[2])
	}
}
