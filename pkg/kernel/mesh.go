package kernel

import "math"

// Mesh is an indexed triangle mesh with shared vertices.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
// FaceIndex records, per triangle, which B-rep face produced it.
type Mesh struct {
	Vertices  []float32 `json:"vertices"`  // [x0,y0,z0, x1,y1,z1, ...]
	Normals   []float32 `json:"normals"`   // [nx0,ny0,nz0, ...]
	Indices   []uint32  `json:"indices"`   // [i0,i1,i2, ...] triangles
	FaceIndex []int32   `json:"faceIndex"` // one entry per triangle
	PartName  string    `json:"partName"`
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Vertex returns vertex i as float64 components.
func (m *Mesh) Vertex(i uint32) [3]float64 {
	return [3]float64{
		float64(m.Vertices[3*i]),
		float64(m.Vertices[3*i+1]),
		float64(m.Vertices[3*i+2]),
	}
}

// BoundingBox returns the axis-aligned bounds of all vertices.
// An empty mesh returns a zero box.
func (m *Mesh) BoundingBox() (min, max [3]float64) {
	if m.IsEmpty() {
		return min, max
	}
	for k := 0; k < 3; k++ {
		min[k] = math.Inf(1)
		max[k] = math.Inf(-1)
	}
	for i := 0; i < len(m.Vertices); i += 3 {
		for k := 0; k < 3; k++ {
			v := float64(m.Vertices[i+k])
			min[k] = math.Min(min[k], v)
			max[k] = math.Max(max[k], v)
		}
	}
	return min, max
}

// EdgeKey is an undirected mesh edge with A < B.
type EdgeKey struct {
	A, B uint32
}

func edgeKey(a, b uint32) EdgeKey {
	if a > b {
		a, b = b, a
	}
	return EdgeKey{a, b}
}

// EdgeUses counts how many triangles reference each undirected edge.
func (m *Mesh) EdgeUses() map[EdgeKey]int {
	uses := make(map[EdgeKey]int, len(m.Indices))
	for i := 0; i+2 < len(m.Indices); i += 3 {
		a, b, c := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		uses[edgeKey(a, b)]++
		uses[edgeKey(b, c)]++
		uses[edgeKey(c, a)]++
	}
	return uses
}

// BoundaryEdges returns the edges used by exactly one triangle.
func (m *Mesh) BoundaryEdges() []EdgeKey {
	var out []EdgeKey
	for k, n := range m.EdgeUses() {
		if n == 1 {
			out = append(out, k)
		}
	}
	return out
}

// NonManifoldEdges returns the edges used by more than two triangles.
func (m *Mesh) NonManifoldEdges() []EdgeKey {
	var out []EdgeKey
	for k, n := range m.EdgeUses() {
		if n > 2 {
			out = append(out, k)
		}
	}
	return out
}

// IsWatertight reports whether every edge is shared by exactly two
// triangles. An empty mesh is not watertight.
func (m *Mesh) IsWatertight() bool {
	if m.TriangleCount() == 0 {
		return false
	}
	for _, n := range m.EdgeUses() {
		if n != 2 {
			return false
		}
	}
	return true
}

// DegenerateTriangles returns the indices of triangles that repeat a
// vertex index.
func (m *Mesh) DegenerateTriangles() []int {
	var out []int
	for i := 0; i+2 < len(m.Indices); i += 3 {
		a, b, c := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		if a == b || b == c || a == c {
			out = append(out, i/3)
		}
	}
	return out
}
