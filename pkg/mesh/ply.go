package mesh

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
)

// WritePLY writes the surface as ASCII PLY with per-vertex color and a
// "state" property carrying the projection mask, so downstream viewers
// can distinguish masked and unreached vertices.
func WritePLY(w io.Writer, s *Surface) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "ply")
	fmt.Fprintln(bw, "format ascii 1.0")
	fmt.Fprintln(bw, "comment produced by cortexmap")
	fmt.Fprintf(bw, "element vertex %d\n", len(s.Vertices))
	fmt.Fprintln(bw, "property float x")
	fmt.Fprintln(bw, "property float y")
	fmt.Fprintln(bw, "property float z")
	fmt.Fprintln(bw, "property uchar red")
	fmt.Fprintln(bw, "property uchar green")
	fmt.Fprintln(bw, "property uchar blue")
	fmt.Fprintln(bw, "property uchar alpha")
	fmt.Fprintln(bw, "property uchar state")
	fmt.Fprintf(bw, "element face %d\n", len(s.Faces))
	fmt.Fprintln(bw, "property list uchar int vertex_indices")
	fmt.Fprintln(bw, "end_header")

	for i, v := range s.Vertices {
		c := s.Color[i]
		fmt.Fprintf(bw, "%g %g %g %d %d %d %d %d\n",
			v[0], v[1], v[2],
			channelByte(c[0]), channelByte(c[1]), channelByte(c[2]), channelByte(c[3]),
			uint8(s.Mask[i]))
	}
	for _, f := range s.Faces {
		fmt.Fprintf(bw, "3 %d %d %d\n", f[0], f[1], f[2])
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing PLY: %w", err)
	}
	return nil
}

// WritePLYFile writes the surface to a file path.
func WritePLYFile(path string, s *Surface) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	return WritePLY(f, s)
}

func channelByte(v float64) uint8 {
	scaled := math.Round(v * 255)
	if scaled < 0 {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return uint8(scaled)
}
