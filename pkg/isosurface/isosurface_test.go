package isosurface

import (
	"math"
	"testing"
)

func flatIndex(dims [3]int, x, y, z int) int {
	return (z*dims[1]+y)*dims[0] + x
}

func TestSmooth3DConstantVolume(t *testing.T) {
	dims := [3]int{6, 6, 6}
	data := make([]float64, 6*6*6)
	for i := range data {
		data[i] = 2.5
	}
	out, err := Smooth3D(data, dims, 3)
	if err != nil {
		t.Fatal(err)
	}
	// Interior voxels keep the constant; borders shrink toward zero
	// because the padding is zero.
	center := out[flatIndex(dims, 3, 3, 3)]
	if math.Abs(center-2.5) > 1e-12 {
		t.Errorf("interior value = %v, want 2.5", center)
	}
	corner := out[flatIndex(dims, 0, 0, 0)]
	want := 2.5 * (8.0 / 27.0) // only 2x2x2 of the 3x3x3 window is inside
	if math.Abs(corner-want) > 1e-12 {
		t.Errorf("corner value = %v, want %v", corner, want)
	}
}

func TestSmooth3DSpreadsASpike(t *testing.T) {
	dims := [3]int{5, 5, 5}
	data := make([]float64, 5*5*5)
	center := flatIndex(dims, 2, 2, 2)
	data[center] = 27

	out, err := Smooth3D(data, dims, 3)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(out[center]-1) > 1e-12 {
		t.Errorf("spike should average to 1 over the window, got %v", out[center])
	}
	neighbor := out[flatIndex(dims, 1, 2, 2)]
	if math.Abs(neighbor-1) > 1e-12 {
		t.Errorf("window neighbor should also read 1, got %v", neighbor)
	}
	far := out[flatIndex(dims, 0, 0, 0)]
	if far != 0 {
		t.Errorf("voxels outside the window must stay zero, got %v", far)
	}

	var sum float64
	for _, v := range out {
		sum += v
	}
	if math.Abs(sum-27) > 1e-9 {
		t.Errorf("mass should be conserved away from borders: sum = %v", sum)
	}
}

func TestSmooth3DValidation(t *testing.T) {
	dims := [3]int{4, 4, 4}
	data := make([]float64, 4*4*4)
	if _, err := Smooth3D(data, dims, 4); err == nil {
		t.Error("even window should be rejected")
	}
	if _, err := Smooth3D(data[:10], dims, 3); err == nil {
		t.Error("short data should be rejected")
	}
	out, err := Smooth3D(data, dims, 1)
	if err != nil {
		t.Fatal(err)
	}
	out[0] = 99
	if data[0] == 99 {
		t.Error("k < 3 must return a copy, not the input")
	}
}

func TestExtractEmptyVolume(t *testing.T) {
	dims := [3]int{8, 8, 8}
	data := make([]float64, 8*8*8)
	verts, faces, err := Extract(data, dims, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(verts) != 0 || len(faces) != 0 {
		t.Errorf("all-zero volume should give an empty surface, got %d verts, %d faces", len(verts), len(faces))
	}
}

func TestExtractFullVolume(t *testing.T) {
	dims := [3]int{4, 4, 4}
	data := make([]float64, 4*4*4)
	for i := range data {
		data[i] = 1
	}
	verts, faces, err := Extract(data, dims, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	// Every voxel is above iso, so no edge crosses it.
	if len(verts) != 0 || len(faces) != 0 {
		t.Errorf("uniform volume should give an empty surface, got %d verts, %d faces", len(verts), len(faces))
	}
}

func TestExtractCubeBlock(t *testing.T) {
	dims := [3]int{8, 8, 8}
	data := make([]float64, 8*8*8)
	for z := 2; z <= 5; z++ {
		for y := 2; y <= 5; y++ {
			for x := 2; x <= 5; x++ {
				data[flatIndex(dims, x, y, z)] = 1
			}
		}
	}

	verts, faces, err := Extract(data, dims, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(verts) == 0 || len(faces) == 0 {
		t.Fatal("solid block should produce a surface")
	}

	// The crossing at iso 0.5 sits halfway between block and background,
	// so every vertex lies in [1.5, 5.5] per axis.
	for _, v := range verts {
		for c := 0; c < 3; c++ {
			if v[c] < 1.5-1e-9 || v[c] > 5.5+1e-9 {
				t.Fatalf("vertex %v outside the expected shell", v)
			}
		}
	}

	for _, f := range faces {
		for _, idx := range f {
			if idx < 0 || int(idx) >= len(verts) {
				t.Fatalf("face index %d out of range", idx)
			}
		}
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			t.Fatalf("degenerate face %v", f)
		}
	}
}

func TestExtractNormalsPointOutward(t *testing.T) {
	dims := [3]int{10, 10, 10}
	data := make([]float64, 10*10*10)
	center := [3]float64{4.5, 4.5, 4.5}
	for z := 0; z < 10; z++ {
		for y := 0; y < 10; y++ {
			for x := 0; x < 10; x++ {
				dx := float64(x) - center[0]
				dy := float64(y) - center[1]
				dz := float64(z) - center[2]
				if math.Sqrt(dx*dx+dy*dy+dz*dz) < 3.2 {
					data[flatIndex(dims, x, y, z)] = 1
				}
			}
		}
	}

	verts, faces, err := Extract(data, dims, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(faces) < 50 {
		t.Fatalf("sphere should produce a rich surface, got %d faces", len(faces))
	}

	// For a sphere around the center, each face normal should roughly
	// align with the direction from the center to the face.
	for _, f := range faces {
		p1, p2, p3 := verts[f[0]], verts[f[1]], verts[f[2]]
		var u, v, n, out [3]float64
		for c := 0; c < 3; c++ {
			u[c] = p2[c] - p1[c]
			v[c] = p3[c] - p1[c]
			out[c] = (p1[c]+p2[c]+p3[c])/3 - center[c]
		}
		n[0] = u[1]*v[2] - u[2]*v[1]
		n[1] = u[2]*v[0] - u[0]*v[2]
		n[2] = u[0]*v[1] - u[1]*v[0]
		dot := n[0]*out[0] + n[1]*out[1] + n[2]*out[2]
		if dot < 0 {
			t.Fatalf("face %v has an inward normal", f)
		}
	}
}

func TestExtractVertexRadiusOnSphere(t *testing.T) {
	dims := [3]int{16, 16, 16}
	data := make([]float64, 16*16*16)
	center := [3]float64{7.5, 7.5, 7.5}
	radius := 5.0
	for z := 0; z < 16; z++ {
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				dx := float64(x) - center[0]
				dy := float64(y) - center[1]
				dz := float64(z) - center[2]
				if math.Sqrt(dx*dx+dy*dy+dz*dz) <= radius {
					data[flatIndex(dims, x, y, z)] = 1
				}
			}
		}
	}

	verts, _, err := Extract(data, dims, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(verts) == 0 {
		t.Fatal("expected a surface")
	}
	for _, v := range verts {
		dx := v[0] - center[0]
		dy := v[1] - center[1]
		dz := v[2] - center[2]
		r := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if r < radius-1.5 || r > radius+1.5 {
			t.Fatalf("vertex %v at radius %v, want about %v", v, r, radius)
		}
	}
}

func TestExtractWeldsSharedVertices(t *testing.T) {
	dims := [3]int{6, 6, 6}
	data := make([]float64, 6*6*6)
	for z := 2; z <= 3; z++ {
		for y := 2; y <= 3; y++ {
			for x := 2; x <= 3; x++ {
				data[flatIndex(dims, x, y, z)] = 1
			}
		}
	}
	verts, faces, err := Extract(data, dims, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	// A welded mesh reuses vertices: three slots per face would be the
	// soup upper bound, and welding must land well below it.
	if len(verts) >= 3*len(faces) {
		t.Errorf("no welding happened: %d verts for %d faces", len(verts), len(faces))
	}
	seen := make(map[int32]int)
	for _, f := range faces {
		for _, idx := range f {
			seen[idx]++
		}
	}
	shared := 0
	for _, count := range seen {
		if count > 1 {
			shared++
		}
	}
	if shared == 0 {
		t.Error("expected at least one vertex shared between faces")
	}
}

func BenchmarkExtract(b *testing.B) {
	dims := [3]int{16, 16, 16}
	data := make([]float64, 16*16*16)
	for z := 0; z < 16; z++ {
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				dx := float64(x - 8)
				dy := float64(y - 8)
				dz := float64(z - 8)
				if math.Sqrt(dx*dx+dy*dy+dz*dz) < 4 {
					data[flatIndex(dims, x, y, z)] = 1
				}
			}
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := Extract(data, dims, 0.5); err != nil {
			b.Fatal(err)
		}
	}
}
