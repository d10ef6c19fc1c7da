// Package stl reads and writes binary STL files and converts between
// indexed surfaces and STL triangle soup. Extraction results go out
// through SaveToSTL; input meshes for projection come back in through
// LoadFromSTL and ToSurface.
package stl

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"cortexmap/pkg/errdefs"
	"cortexmap/pkg/mesh"
)

// Triangle is a single STL facet: one normal and three vertices.
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// FromIndexed converts an indexed mesh into STL triangles, computing a
// unit normal per face from the winding order. Degenerate faces keep a
// zero normal.
func FromIndexed(vertices [][3]float64, faces [][3]int32) ([]Triangle, error) {
	n := int32(len(vertices))
	tris := make([]Triangle, 0, len(faces))
	for fi, f := range faces {
		for _, idx := range f {
			if idx < 0 || idx >= n {
				return nil, errdefs.Shape(
					fmt.Sprintf("face %d", fi),
					fmt.Sprintf("indices in [0, %d)", n), idx)
			}
		}
		p1, p2, p3 := vertices[f[0]], vertices[f[1]], vertices[f[2]]

		var u, v, nrm [3]float64
		for c := 0; c < 3; c++ {
			u[c] = p2[c] - p1[c]
			v[c] = p3[c] - p1[c]
		}
		nrm[0] = u[1]*v[2] - u[2]*v[1]
		nrm[1] = u[2]*v[0] - u[0]*v[2]
		nrm[2] = u[0]*v[1] - u[1]*v[0]
		if mag := math.Sqrt(nrm[0]*nrm[0] + nrm[1]*nrm[1] + nrm[2]*nrm[2]); mag > 0 {
			nrm[0] /= mag
			nrm[1] /= mag
			nrm[2] /= mag
		}

		tris = append(tris, Triangle{
			Normal:  toF32(nrm),
			Vertex1: toF32(p1),
			Vertex2: toF32(p2),
			Vertex3: toF32(p3),
		})
	}
	return tris, nil
}

func toF32(p [3]float64) [3]float32 {
	return [3]float32{float32(p[0]), float32(p[1]), float32(p[2])}
}

// Write emits binary little-endian STL: an 80 byte header, the triangle
// count, then 50 bytes per triangle.
func Write(w io.Writer, triangles []Triangle) error {
	var header [80]byte
	copy(header[:], "cortexmap surface export")
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing STL header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return fmt.Errorf("writing triangle count: %w", err)
	}
	for i, tri := range triangles {
		if err := writeTriangle(w, tri); err != nil {
			return fmt.Errorf("writing triangle %d: %w", i, err)
		}
	}
	return nil
}

func writeTriangle(w io.Writer, tri Triangle) error {
	for _, vec := range [][3]float32{tri.Normal, tri.Vertex1, tri.Vertex2, tri.Vertex3} {
		if err := binary.Write(w, binary.LittleEndian, vec); err != nil {
			return err
		}
	}
	// Attribute byte count, unused.
	return binary.Write(w, binary.LittleEndian, uint16(0))
}

// SaveToSTL writes the triangles to a file path.
func SaveToSTL(path string, triangles []Triangle) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	return Write(f, triangles)
}

// Read parses binary STL. The header content is ignored.
func Read(r io.Reader) ([]Triangle, error) {
	var header [80]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("reading STL header: %w", err)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("reading triangle count: %w", err)
	}

	triangles := make([]Triangle, 0, count)
	for i := uint32(0); i < count; i++ {
		var tri Triangle
		for _, vec := range []*[3]float32{&tri.Normal, &tri.Vertex1, &tri.Vertex2, &tri.Vertex3} {
			if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
				return nil, fmt.Errorf("reading triangle %d: %w", i, err)
			}
		}
		var attr uint16
		if err := binary.Read(r, binary.LittleEndian, &attr); err != nil {
			return nil, fmt.Errorf("reading triangle %d attributes: %w", i, err)
		}
		triangles = append(triangles, tri)
	}
	return triangles, nil
}

// LoadFromSTL reads triangles from a file path.
func LoadFromSTL(path string) ([]Triangle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// ToSurface welds the triangle soup into an indexed surface. Vertices
// are merged when their coordinates agree within 1e-4, which joins the
// duplicated corners STL stores per facet.
func ToSurface(triangles []Triangle) (*mesh.Surface, error) {
	if len(triangles) == 0 {
		return nil, errdefs.Shape("triangles", "at least one", 0)
	}

	type quantized [3]int64
	quantize := func(v [3]float32) quantized {
		var q quantized
		for i := 0; i < 3; i++ {
			q[i] = int64(math.Round(float64(v[i]) * 1e4))
		}
		return q
	}

	var vertices [][3]float64
	var faces [][3]int32
	index := make(map[quantized]int32)
	add := func(v [3]float32) int32 {
		q := quantize(v)
		if idx, ok := index[q]; ok {
			return idx
		}
		idx := int32(len(vertices))
		vertices = append(vertices, [3]float64{float64(v[0]), float64(v[1]), float64(v[2])})
		index[q] = idx
		return idx
	}

	for _, tri := range triangles {
		i := add(tri.Vertex1)
		j := add(tri.Vertex2)
		k := add(tri.Vertex3)
		if i == j || j == k || i == k {
			continue
		}
		faces = append(faces, [3]int32{i, j, k})
	}
	return mesh.NewSurface(vertices, faces)
}
