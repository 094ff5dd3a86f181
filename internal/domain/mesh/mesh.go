// Package mesh provides the triangulated surface representation used for
// per-vertex learning: vertex/normal/face storage, a uniform-grid spatial
// index for ball and nearest-vertex queries, and the point-to-vertex feature
// interpolation the samplers are built on.
package mesh

import (
	"math"

	"github.com/bindscape/meshbind/pkg/errors"
)

// defaultCellSize is the spatial-index cell edge in the same unit as the
// vertex coordinates (angstroms for molecular surfaces).
const defaultCellSize = 2.0

type cellKey [3]int

// Mesh is an immutable triangulated surface with a uniform-grid index over
// its vertices. Construct with New; the zero value is not usable.
type Mesh struct {
	vertices [][3]float64
	normals  [][3]float64
	faces    [][3]int

	adjacency [][]int

	cell     float64
	grid     map[cellKey][]int
	minCell  cellKey
	maxCell  cellKey
}

// New builds a mesh and its spatial index. Normals may be nil; when present
// their count must match the vertex count. Face indices must be in range.
// cellSize <= 0 selects the default cell size.
func New(vertices, normals [][3]float64, faces [][3]int, cellSize float64) (*Mesh, error) {
	if normals != nil && len(normals) != len(vertices) {
		return nil, errors.ShapeMismatch("normals and vertices differ in length")
	}
	for _, f := range faces {
		for _, idx := range f {
			if idx < 0 || idx >= len(vertices) {
				return nil, errors.InvalidParameter("face references a vertex out of range")
			}
		}
	}
	if cellSize <= 0 {
		cellSize = defaultCellSize
	}

	m := &Mesh{
		vertices: vertices,
		normals:  normals,
		faces:    faces,
		cell:     cellSize,
		grid:     make(map[cellKey][]int),
	}
	for i, v := range vertices {
		key := m.keyOf(v)
		m.grid[key] = append(m.grid[key], i)
		if i == 0 {
			m.minCell, m.maxCell = key, key
			continue
		}
		for k := 0; k < 3; k++ {
			if key[k] < m.minCell[k] {
				m.minCell[k] = key[k]
			}
			if key[k] > m.maxCell[k] {
				m.maxCell[k] = key[k]
			}
		}
	}
	m.buildAdjacency()
	return m, nil
}

func (m *Mesh) keyOf(p [3]float64) cellKey {
	return cellKey{
		int(math.Floor(p[0] / m.cell)),
		int(math.Floor(p[1] / m.cell)),
		int(math.Floor(p[2] / m.cell)),
	}
}

func (m *Mesh) buildAdjacency() {
	m.adjacency = make([][]int, len(m.vertices))
	seen := make(map[[2]int]bool)
	addEdge := func(a, b int) {
		if a == b || seen[[2]int{a, b}] {
			return
		}
		seen[[2]int{a, b}] = true
		m.adjacency[a] = append(m.adjacency[a], b)
	}
	for _, f := range m.faces {
		addEdge(f[0], f[1])
		addEdge(f[1], f[0])
		addEdge(f[1], f[2])
		addEdge(f[2], f[1])
		addEdge(f[2], f[0])
		addEdge(f[0], f[2])
	}
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.vertices) }

// Vertex returns the coordinate of vertex i.
func (m *Mesh) Vertex(i int) [3]float64 { return m.vertices[i] }

// Vertices returns the vertex slice. Callers must not mutate it.
func (m *Mesh) Vertices() [][3]float64 { return m.vertices }

// Normals returns the per-vertex normals, or nil when absent.
func (m *Mesh) Normals() [][3]float64 { return m.normals }

// Faces returns the triangle index slice.
func (m *Mesh) Faces() [][3]int { return m.faces }

// Neighbors returns the indices of vertices sharing an edge with vertex i.
func (m *Mesh) Neighbors(i int) []int { return m.adjacency[i] }

func dist(a, b [3]float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	dz := a[2] - b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// VerticesInBall returns the indices of all vertices within radius r of p,
// in ascending index order.
func (m *Mesh) VerticesInBall(p [3]float64, r float64) []int {
	if r < 0 || len(m.vertices) == 0 {
		return nil
	}
	lo := m.keyOf([3]float64{p[0] - r, p[1] - r, p[2] - r})
	hi := m.keyOf([3]float64{p[0] + r, p[1] + r, p[2] + r})
	var out []int
	for x := lo[0]; x <= hi[0]; x++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for z := lo[2]; z <= hi[2]; z++ {
				for _, i := range m.grid[cellKey{x, y, z}] {
					if dist(p, m.vertices[i]) <= r {
						out = append(out, i)
					}
				}
			}
		}
	}
	// Grid cells are visited in key order, not index order.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// NearestVertex returns the index of the vertex closest to p and its
// distance. Returns (-1, +Inf) on an empty mesh.
func (m *Mesh) NearestVertex(p [3]float64) (int, float64) {
	if len(m.vertices) == 0 {
		return -1, math.Inf(1)
	}
	center := m.keyOf(p)
	maxRing := 0
	for k := 0; k < 3; k++ {
		if d := center[k] - m.minCell[k]; d > maxRing {
			maxRing = d
		}
		if d := m.maxCell[k] - center[k]; d > maxRing {
			maxRing = d
		}
	}

	best := -1
	bestD := math.Inf(1)
	for ring := 0; ring <= maxRing+1; ring++ {
		m.scanShell(center, ring, func(i int) {
			if d := dist(p, m.vertices[i]); d < bestD {
				best, bestD = i, d
			}
		})
		// Any vertex outside the scanned cube is at least (ring*cell) away
		// from p, so once the best hit beats that bound it is final.
		if best >= 0 && bestD <= float64(ring)*m.cell {
			break
		}
	}
	return best, bestD
}

// scanShell visits vertices in cells at exactly Chebyshev distance ring from
// the center cell.
func (m *Mesh) scanShell(center cellKey, ring int, visit func(int)) {
	if ring == 0 {
		for _, i := range m.grid[center] {
			visit(i)
		}
		return
	}
	for x := -ring; x <= ring; x++ {
		for y := -ring; y <= ring; y++ {
			for z := -ring; z <= ring; z++ {
				if max3(abs(x), abs(y), abs(z)) != ring {
					continue
				}
				key := cellKey{center[0] + x, center[1] + y, center[2] + z}
				for _, i := range m.grid[key] {
					visit(i)
				}
			}
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func max3(a, b, c int) int {
	if b > a {
		a = b
	}
	if c > a {
		a = c
	}
	return a
}
