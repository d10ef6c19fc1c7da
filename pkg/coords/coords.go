// Package coords provides the 4x4 affine transforms used to move
// between world coordinates and voxel indices, plus the stereotaxic
// MNI/Talairach conversions.
package coords

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"cortexmap/pkg/errdefs"
)

// Affine is a row-major 4x4 homogeneous transform.
type Affine [4][4]float64

// Identity returns the identity transform.
func Identity() Affine {
	var m Affine
	for i := 0; i < 4; i++ {
		m[i][i] = 1
	}
	return m
}

// FromSlice builds an Affine from 16 row-major values.
func FromSlice(v []float64) (Affine, error) {
	if len(v) != 16 {
		return Affine{}, errdefs.Shape("affine", "16 values (4x4)", len(v))
	}
	var m Affine
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m[i][j] = v[i*4+j]
		}
	}
	return m, nil
}

// Flat returns the 16 row-major values.
func (m Affine) Flat() []float64 {
	out := make([]float64, 0, 16)
	for i := 0; i < 4; i++ {
		out = append(out, m[i][:]...)
	}
	return out
}

// Mul returns m * n.
func (m Affine) Mul(n Affine) Affine {
	var out Affine
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[i][k] * n[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// Apply transforms a point through the affine using homogeneous
// coordinates with w = 1.
func (m Affine) Apply(p [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = m[i][0]*p[0] + m[i][1]*p[1] + m[i][2]*p[2] + m[i][3]
	}
	return out
}

// Solve finds x such that m * [x, 1] = [p, 1] in the least-squares
// sense. The system is factorized with QR; if that fails the diagonal is
// regularized and the factorization retried once.
func (m Affine) Solve(p [3]float64) ([3]float64, error) {
	a := mat.NewDense(4, 4, m.Flat())
	b := mat.NewDense(4, 1, []float64{p[0], p[1], p[2], 1})

	x := mat.NewDense(4, 1, nil)
	var qr mat.QR
	qr.Factorize(a)
	if err := qr.SolveTo(x, false, b); err != nil {
		for i := 0; i < 4; i++ {
			a.Set(i, i, a.At(i, i)+1e-6)
		}
		qr.Factorize(a)
		if err := qr.SolveTo(x, false, b); err != nil {
			return [3]float64{}, errdefs.Config("affine", "system is not solvable: %v", err)
		}
	}
	return [3]float64{x.At(0, 0), x.At(1, 0), x.At(2, 0)}, nil
}

// Inverse returns the inverse transform. Singular affines are an error.
func (m Affine) Inverse() (Affine, error) {
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(4, 4, m.Flat())); err != nil {
		return Affine{}, errdefs.Config("affine", "not invertible: %v", err)
	}
	var out Affine
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i][j] = inv.At(i, j)
		}
	}
	return out, nil
}

// SPMParams are the twelve parameters of an SPM-style rigid + zoom +
// shear transform: translation (x, y, z), rotation in radians about
// (x, y, z), zoom (x, y, z) and shear (xy, xz, yz).
type SPMParams struct {
	Translate [3]float64
	Rotate    [3]float64
	Zoom      [3]float64
	Shear     [3]float64
}

// SPMMatrix composes the transform T * Rx * Ry * Rz * Zoom * Shear with
// the SPM sign conventions. Zero zoom components are treated as 1.
func SPMMatrix(p SPMParams) Affine {
	t := Identity()
	t[0][3], t[1][3], t[2][3] = p.Translate[0], p.Translate[1], p.Translate[2]

	rx := Identity()
	c, s := math.Cos(p.Rotate[0]), math.Sin(p.Rotate[0])
	rx[1][1], rx[1][2] = c, s
	rx[2][1], rx[2][2] = -s, c

	ry := Identity()
	c, s = math.Cos(p.Rotate[1]), math.Sin(p.Rotate[1])
	ry[0][0], ry[0][2] = c, s
	ry[2][0], ry[2][2] = -s, c

	rz := Identity()
	c, s = math.Cos(p.Rotate[2]), math.Sin(p.Rotate[2])
	rz[0][0], rz[0][1] = c, s
	rz[1][0], rz[1][1] = -s, c

	zoom := p.Zoom
	for i, z := range zoom {
		if z == 0 {
			zoom[i] = 1
		}
	}
	zm := Identity()
	zm[0][0], zm[1][1], zm[2][2] = zoom[0], zoom[1], zoom[2]

	sh := Identity()
	sh[0][1], sh[0][2], sh[1][2] = p.Shear[0], p.Shear[1], p.Shear[2]

	return t.Mul(rx).Mul(ry).Mul(rz).Mul(zm).Mul(sh)
}

// Brett's piecewise transform between MNI space and Talairach space: a
// small rotation about x with different z scalings above and below the
// AC plane.
var (
	mniUp = SPMMatrix(SPMParams{
		Rotate: [3]float64{0.05, 0, 0},
		Zoom:   [3]float64{0.99, 0.97, 0.92},
	})
	mniDown = SPMMatrix(SPMParams{
		Rotate: [3]float64{0.05, 0, 0},
		Zoom:   [3]float64{0.99, 0.97, 0.84},
	})
	talUp   = mustInverse(mniUp)
	talDown = mustInverse(mniDown)
)

func mustInverse(m Affine) Affine {
	inv, err := m.Inverse()
	if err != nil {
		panic(err)
	}
	return inv
}

// MNIToTalairach converts MNI coordinates into Talairach coordinates,
// choosing the above/below-AC matrix per point from the z sign.
func MNIToTalairach(pts [][3]float64) [][3]float64 {
	out := make([][3]float64, len(pts))
	for i, p := range pts {
		if p[2] < 0 {
			out[i] = mniDown.Apply(p)
		} else {
			out[i] = mniUp.Apply(p)
		}
	}
	return out
}

// TalairachToMNI is the inverse of MNIToTalairach. The branch is taken
// on the input z sign, which the forward transform preserves.
func TalairachToMNI(pts [][3]float64) [][3]float64 {
	out := make([][3]float64, len(pts))
	for i, p := range pts {
		if p[2] < 0 {
			out[i] = talDown.Apply(p)
		} else {
			out[i] = talUp.Apply(p)
		}
	}
	return out
}
