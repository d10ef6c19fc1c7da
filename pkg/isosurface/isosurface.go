// Package isosurface extracts indexed triangle meshes from scalar
// volumes. Cells are split into tetrahedra so every case reduces to a
// handful of edge crossings, and crossing vertices are welded through an
// edge map so the output is an indexed mesh rather than a triangle soup.
package isosurface

import (
	"cortexmap/pkg/errdefs"
)

// Smooth3D applies a box-mean filter of width k along each axis in turn,
// which equals a full 3D box convolution with zero padding outside the
// volume. k below 3 returns an untouched copy; k must be odd so the
// window is centered.
func Smooth3D(data []float64, dims [3]int, k int) ([]float64, error) {
	if err := checkDims(data, dims); err != nil {
		return nil, err
	}
	out := make([]float64, len(data))
	copy(out, data)
	if k < 3 {
		return out, nil
	}
	if k%2 == 0 {
		return nil, errdefs.Config("smooth", "window must be odd, got %d", k)
	}

	tmp := make([]float64, len(data))
	boxAxis(out, tmp, dims, 0, k)
	boxAxis(tmp, out, dims, 1, k)
	boxAxis(out, tmp, dims, 2, k)
	copy(out, tmp)
	return out, nil
}

// boxAxis runs a sliding window mean of width k along one axis, treating
// everything outside the volume as zero. The flat layout is
// idx(x, y, z) = (z*ny + y)*nx + x.
func boxAxis(src, dst []float64, dims [3]int, axis, k int) {
	nx, ny, nz := dims[0], dims[1], dims[2]
	r := k / 2
	norm := 1.0 / float64(k)

	// n and stride describe the lines along the filtered axis; lineStart
	// enumerates one start index per (a, b) pair over the other two axes.
	var n, stride, outerA, outerB int
	var lineStart func(a, b int) int
	switch axis {
	case 0:
		n, stride, outerA, outerB = nx, 1, ny, nz
		lineStart = func(a, b int) int { return (b*ny + a) * nx }
	case 1:
		n, stride, outerA, outerB = ny, nx, nx, nz
		lineStart = func(a, b int) int { return b*ny*nx + a }
	default:
		n, stride, outerA, outerB = nz, nx*ny, nx, ny
		lineStart = func(a, b int) int { return b*nx + a }
	}

	for b := 0; b < outerB; b++ {
		for a := 0; a < outerA; a++ {
			start := lineStart(a, b)
			var sum float64
			for i := 0; i <= r && i < n; i++ {
				sum += src[start+i*stride]
			}
			for i := 0; i < n; i++ {
				dst[start+i*stride] = sum * norm
				if enter := i + r + 1; enter < n {
					sum += src[start+enter*stride]
				}
				if leave := i - r; leave >= 0 {
					sum -= src[start+leave*stride]
				}
			}
		}
	}
}

func checkDims(data []float64, dims [3]int) error {
	if dims[0] <= 0 || dims[1] <= 0 || dims[2] <= 0 {
		return errdefs.Shape("volume dims", "positive", dims)
	}
	if want := dims[0] * dims[1] * dims[2]; len(data) != want {
		return errdefs.Shape("volume data", want, len(data))
	}
	return nil
}
