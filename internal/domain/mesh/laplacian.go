package mesh

// Smooth runs iterations of Laplacian smoothing over per-vertex features:
// each pass replaces a vertex's features with the mean over the vertex and
// its edge neighbors. Vertices with no neighbors keep their values. The
// input is not modified.
func Smooth(m *Mesh, features [][]float64, iterations int) [][]float64 {
	if iterations <= 0 || len(features) == 0 {
		out := make([][]float64, len(features))
		for i, row := range features {
			out[i] = append([]float64(nil), row...)
		}
		return out
	}
	width := len(features[0])
	cur := make([][]float64, len(features))
	for i, row := range features {
		cur[i] = append([]float64(nil), row...)
	}
	next := make([][]float64, len(features))
	for i := range next {
		next[i] = make([]float64, width)
	}

	for it := 0; it < iterations; it++ {
		for v := range cur {
			neighbors := m.Neighbors(v)
			if len(neighbors) == 0 {
				copy(next[v], cur[v])
				continue
			}
			for k := 0; k < width; k++ {
				sum := cur[v][k]
				for _, nb := range neighbors {
					sum += cur[nb][k]
				}
				next[v][k] = sum / float64(len(neighbors)+1)
			}
		}
		cur, next = next, cur
	}
	return cur
}
