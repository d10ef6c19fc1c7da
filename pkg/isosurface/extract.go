package isosurface

// The cube at (x, y, z) has its corners numbered
//
//	0:(x,y,z) 1:(x+1,y,z) 2:(x+1,y+1,z) 3:(x,y+1,z)
//	4:(x,y,z+1) 5:(x+1,y,z+1) 6:(x+1,y+1,z+1) 7:(x,y+1,z+1)
//
// and is split into six tetrahedra around the 0-6 diagonal. Neighboring
// cubes then agree on the diagonal of every shared face, so the surface
// has no cracks.
var cubeTets = [6][4]int{
	{0, 5, 1, 6},
	{0, 1, 2, 6},
	{0, 2, 3, 6},
	{0, 3, 7, 6},
	{0, 7, 4, 6},
	{0, 4, 5, 6},
}

var cornerOffset = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

type edgeKey struct {
	a, b int // flat grid indices, a < b
}

type extractor struct {
	data []float64
	dims [3]int
	iso  float64

	verts  [][3]float64
	faces  [][3]int32
	lookup map[edgeKey]int32
}

// Extract builds the iso-value surface of the volume as an indexed
// triangle mesh in voxel coordinates. Triangles are wound so their
// normals point from values above iso toward values below it. A volume
// entirely on one side of iso yields empty output and no error.
func Extract(data []float64, dims [3]int, iso float64) ([][3]float64, [][3]int32, error) {
	if err := checkDims(data, dims); err != nil {
		return nil, nil, err
	}

	ex := &extractor{
		data:   data,
		dims:   dims,
		iso:    iso,
		lookup: make(map[edgeKey]int32),
	}

	nx, ny, nz := dims[0], dims[1], dims[2]
	var corners [8]int
	for z := 0; z < nz-1; z++ {
		for y := 0; y < ny-1; y++ {
			for x := 0; x < nx-1; x++ {
				for c, off := range cornerOffset {
					corners[c] = ((z+off[2])*ny+y+off[1])*nx + x + off[0]
				}
				for _, tet := range cubeTets {
					ex.marchTet(corners[tet[0]], corners[tet[1]], corners[tet[2]], corners[tet[3]])
				}
			}
		}
	}
	return ex.verts, ex.faces, nil
}

// marchTet emits the crossing triangles of one tetrahedron.
func (ex *extractor) marchTet(a, b, c, d int) {
	nodes := [4]int{a, b, c, d}
	var inside, outside [4]int
	ni, no := 0, 0
	for _, n := range nodes {
		if ex.data[n] > ex.iso {
			inside[ni] = n
			ni++
		} else {
			outside[no] = n
			no++
		}
	}

	switch ni {
	case 0, 4:
		return
	case 1:
		ex.emit(inside[:1],
			ex.edgeVertex(inside[0], outside[0]),
			ex.edgeVertex(inside[0], outside[1]),
			ex.edgeVertex(inside[0], outside[2]))
	case 3:
		ex.emit(inside[:3],
			ex.edgeVertex(outside[0], inside[0]),
			ex.edgeVertex(outside[0], inside[1]),
			ex.edgeVertex(outside[0], inside[2]))
	case 2:
		// Quad ordered so consecutive corners share a tetrahedron node.
		q0 := ex.edgeVertex(inside[0], outside[0])
		q1 := ex.edgeVertex(inside[0], outside[1])
		q2 := ex.edgeVertex(inside[1], outside[1])
		q3 := ex.edgeVertex(inside[1], outside[0])
		ex.emit(inside[:2], q0, q1, q2)
		ex.emit(inside[:2], q0, q2, q3)
	}
}

// edgeVertex returns the index of the welded vertex where the surface
// crosses the grid edge (a, b), creating it on first use.
func (ex *extractor) edgeVertex(a, b int) int32 {
	key := edgeKey{a, b}
	if a > b {
		key = edgeKey{b, a}
	}
	if idx, ok := ex.lookup[key]; ok {
		return idx
	}

	va, vb := ex.data[a], ex.data[b]
	t := 0.5
	if va != vb {
		t = (ex.iso - va) / (vb - va)
	}
	pa := ex.gridPos(a)
	pb := ex.gridPos(b)
	var p [3]float64
	for i := 0; i < 3; i++ {
		p[i] = pa[i] + t*(pb[i]-pa[i])
	}

	idx := int32(len(ex.verts))
	ex.verts = append(ex.verts, p)
	ex.lookup[key] = idx
	return idx
}

// emit appends the triangle (i, j, k), flipping it when its normal faces
// the inside nodes instead of away from them. Triangles collapsed by
// welding are dropped.
func (ex *extractor) emit(insideNodes []int, i, j, k int32) {
	if i == j || j == k || i == k {
		return
	}
	p1, p2, p3 := ex.verts[i], ex.verts[j], ex.verts[k]

	var u, v, n [3]float64
	for c := 0; c < 3; c++ {
		u[c] = p2[c] - p1[c]
		v[c] = p3[c] - p1[c]
	}
	n[0] = u[1]*v[2] - u[2]*v[1]
	n[1] = u[2]*v[0] - u[0]*v[2]
	n[2] = u[0]*v[1] - u[1]*v[0]

	var ref [3]float64
	for _, node := range insideNodes {
		p := ex.gridPos(node)
		for c := 0; c < 3; c++ {
			ref[c] += p[c]
		}
	}
	var dot float64
	for c := 0; c < 3; c++ {
		centroid := (p1[c] + p2[c] + p3[c]) / 3
		dot += n[c] * (centroid - ref[c]/float64(len(insideNodes)))
	}

	if dot < 0 {
		j, k = k, j
	}
	ex.faces = append(ex.faces, [3]int32{i, j, k})
}

func (ex *extractor) gridPos(flat int) [3]float64 {
	nx, ny := ex.dims[0], ex.dims[1]
	x := flat % nx
	y := (flat / nx) % ny
	z := flat / (nx * ny)
	return [3]float64{float64(x), float64(y), float64(z)}
}
