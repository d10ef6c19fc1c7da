// Package roi indexes labeled brain volumes. A Volume joins a 3D grid
// of region labels with an affine transform and a label table so
// world-space points can be localized, and selected regions can be
// turned into renderable surfaces.
package roi

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"cortexmap/pkg/coords"
	"cortexmap/pkg/errdefs"
)

// Coordinate systems a volume can be expressed in.
const (
	SystemMNI       = "mni"
	SystemTalairach = "tal"
)

// LabelTable maps volume index values to label rows. Index and Rows are
// parallel; every row has one cell per column.
type LabelTable struct {
	Columns []string
	Index   []int32
	Rows    [][]string
}

// Find returns the label row for a volume index.
func (t *LabelTable) Find(idx int32) ([]string, bool) {
	for i, v := range t.Index {
		if v == idx {
			return t.Rows[i], true
		}
	}
	return nil, false
}

func (t *LabelTable) validate() error {
	if len(t.Index) != len(t.Rows) {
		return errdefs.Shape("label table", fmt.Sprintf("%d rows", len(t.Index)), len(t.Rows))
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return errdefs.Shape(fmt.Sprintf("label row %d", i),
				fmt.Sprintf("%d cells", len(t.Columns)), len(row))
		}
	}
	return nil
}

// Volume is a labeled 3D grid. Data is flat with index
// (z*ny + y)*nx + x for dims (nx, ny, nz).
type Volume struct {
	Name   string
	Data   []int32
	Dims   [3]int
	Affine coords.Affine
	// System is the coordinate convention, "mni" or "tal".
	System string
	// Offset is added to voxel values before the label table lookup.
	Offset int32
	Labels *LabelTable

	log *zap.Logger
}

// Option configures a Volume at construction.
type Option func(*Volume)

// WithSystem sets the coordinate system, "mni" or "tal".
func WithSystem(system string) Option {
	return func(v *Volume) { v.System = system }
}

// WithOffset sets the value added to voxels before label lookup.
func WithOffset(offset int32) Option {
	return func(v *Volume) { v.Offset = offset }
}

// WithLabels attaches the label table.
func WithLabels(t *LabelTable) Option {
	return func(v *Volume) { v.Labels = t }
}

// WithLogger attaches a logger. Nil disables logging.
func WithLogger(log *zap.Logger) Option {
	return func(v *Volume) {
		if log != nil {
			v.log = log.Named("roi")
		}
	}
}

// NewVolume validates the grid and builds a Volume. The default system
// is MNI with a zero offset and no label table.
func NewVolume(name string, data []int32, dims [3]int, affine coords.Affine, opts ...Option) (*Volume, error) {
	for _, d := range dims {
		if d <= 0 {
			return nil, errdefs.Config("dims", "dimensions must be positive, got %v", dims)
		}
	}
	if want := dims[0] * dims[1] * dims[2]; len(data) != want {
		return nil, errdefs.Shape("volume data", fmt.Sprintf("%d voxels", want), len(data))
	}

	v := &Volume{
		Name:   name,
		Data:   data,
		Dims:   dims,
		Affine: affine,
		System: SystemMNI,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.System != SystemMNI && v.System != SystemTalairach {
		return nil, errdefs.Config("system", "unknown coordinate system %q, use %s or %s",
			v.System, SystemMNI, SystemTalairach)
	}
	if v.Labels != nil {
		if err := v.Labels.validate(); err != nil {
			return nil, err
		}
	}
	v.log.Debug("volume ready",
		zap.String("name", name),
		zap.Ints("dims", dims[:]),
		zap.String("system", v.System))
	return v, nil
}

// Value reads the voxel at (i, j, k). The second return is false when
// the coordinate is outside the grid.
func (v *Volume) Value(i, j, k int) (int32, bool) {
	if i < 0 || i >= v.Dims[0] || j < 0 || j >= v.Dims[1] || k < 0 || k >= v.Dims[2] {
		return 0, false
	}
	return v.Data[(k*v.Dims[1]+j)*v.Dims[0]+i], true
}

// RegionCount returns the number of rows in the label table.
func (v *Volume) RegionCount() int {
	if v.Labels == nil {
		return 0
	}
	return len(v.Labels.Rows)
}

const (
	fileMagic   = "ROIV"
	fileVersion = 1

	// maxVoxels bounds allocations when reading untrusted files.
	maxVoxels = 1 << 30
)

// WriteFile serializes the volume into the binary roi container.
func (v *Volume) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := v.encode(w); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (v *Volume) encode(w io.Writer) error {
	if _, err := w.Write([]byte(fileMagic)); err != nil {
		return err
	}
	var system uint8
	if v.System == SystemTalairach {
		system = 1
	}
	head := []interface{}{
		uint16(fileVersion),
		system,
		uint32(v.Dims[0]), uint32(v.Dims[1]), uint32(v.Dims[2]),
	}
	for _, h := range head {
		if err := binary.Write(w, binary.LittleEndian, h); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, v.Affine.Flat()); err != nil {
		return err
	}

	labels := v.Labels
	if labels == nil {
		labels = &LabelTable{}
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(labels.Columns))); err != nil {
		return err
	}
	for _, col := range labels.Columns {
		if err := writeString(w, col); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(labels.Rows))); err != nil {
		return err
	}
	for i, row := range labels.Rows {
		if err := binary.Write(w, binary.LittleEndian, labels.Index[i]); err != nil {
			return err
		}
		for _, cell := range row {
			if err := writeString(w, cell); err != nil {
				return err
			}
		}
	}

	return binary.Write(w, binary.LittleEndian, v.Data)
}

// ReadFile loads a volume from the binary roi container. The volume
// name is the file's base name without the extension.
func ReadFile(path string, log *zap.Logger) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	v, err := decode(bufio.NewReader(f), name, log)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return v, nil
}

func decode(r io.Reader, name string, log *zap.Logger) (*Volume, error) {
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if string(magic) != fileMagic {
		return nil, fmt.Errorf("bad magic %q, not an roi volume", magic)
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	if version != fileVersion {
		return nil, fmt.Errorf("unsupported roi volume version %d", version)
	}

	var system uint8
	if err := binary.Read(r, binary.LittleEndian, &system); err != nil {
		return nil, fmt.Errorf("reading system: %w", err)
	}
	if system > 1 {
		return nil, fmt.Errorf("unknown coordinate system code %d", system)
	}

	var rawDims [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &rawDims); err != nil {
		return nil, fmt.Errorf("reading dims: %w", err)
	}
	voxels := uint64(rawDims[0]) * uint64(rawDims[1]) * uint64(rawDims[2])
	if voxels == 0 || voxels > maxVoxels {
		return nil, fmt.Errorf("implausible dims %v", rawDims)
	}
	dims := [3]int{int(rawDims[0]), int(rawDims[1]), int(rawDims[2])}

	flat := make([]float64, 16)
	if err := binary.Read(r, binary.LittleEndian, flat); err != nil {
		return nil, fmt.Errorf("reading affine: %w", err)
	}
	affine, err := coords.FromSlice(flat)
	if err != nil {
		return nil, err
	}

	var ncols uint16
	if err := binary.Read(r, binary.LittleEndian, &ncols); err != nil {
		return nil, fmt.Errorf("reading label columns: %w", err)
	}
	columns := make([]string, ncols)
	for i := range columns {
		if columns[i], err = readString(r); err != nil {
			return nil, fmt.Errorf("reading label column %d: %w", i, err)
		}
	}

	var nrows uint32
	if err := binary.Read(r, binary.LittleEndian, &nrows); err != nil {
		return nil, fmt.Errorf("reading label rows: %w", err)
	}
	if uint64(nrows) > maxVoxels {
		return nil, fmt.Errorf("implausible label row count %d", nrows)
	}
	index := make([]int32, nrows)
	rows := make([][]string, nrows)
	for i := range rows {
		if err := binary.Read(r, binary.LittleEndian, &index[i]); err != nil {
			return nil, fmt.Errorf("reading label row %d: %w", i, err)
		}
		row := make([]string, ncols)
		for j := range row {
			if row[j], err = readString(r); err != nil {
				return nil, fmt.Errorf("reading label row %d: %w", i, err)
			}
		}
		rows[i] = row
	}

	data := make([]int32, voxels)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("reading volume data: %w", err)
	}

	opts := []Option{WithLogger(log)}
	if system == 1 {
		opts = append(opts, WithSystem(SystemTalairach))
	}
	if ncols > 0 || nrows > 0 {
		opts = append(opts, WithLabels(&LabelTable{Columns: columns, Index: index, Rows: rows}))
	}
	return NewVolume(name, data, dims, affine, opts...)
}

func writeString(w io.Writer, s string) error {
	if len(s) > 1<<16-1 {
		return fmt.Errorf("string of %d bytes does not fit the length prefix", len(s))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// PredefinedAtlases lists the atlas names LoadPredefined accepts.
func PredefinedAtlases() []string {
	return []string{"aal", "brodmann", "talairach"}
}

// LoadPredefined loads one of the bundled atlases from dataDir. The
// talairach atlas uses the tal coordinate system and a label offset of
// -1; brodmann and aal are MNI volumes. The atlas dataset is an
// external input, so a missing or unreadable file is a DependencyError.
func LoadPredefined(name, dataDir string, log *zap.Logger) (*Volume, error) {
	known := PredefinedAtlases()
	valid := false
	for _, k := range known {
		if k == name {
			valid = true
			break
		}
	}
	if !valid {
		return nil, &errdefs.NotFoundError{Kind: "atlas", Name: name, Known: known}
	}

	path := filepath.Join(dataDir, name+".roi")
	v, err := ReadFile(path, log)
	if err != nil {
		return nil, &errdefs.DependencyError{
			Dependency: name + " atlas",
			Reason:     err.Error(),
		}
	}
	v.Name = name
	if name == "talairach" {
		v.System = SystemTalairach
		v.Offset = -1
	}
	return v, nil
}
