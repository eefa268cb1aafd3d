package graph

// ReconstructPath builds a path from source to sink by walking the parent
// map produced by a shortest-path search backward from sink, then
// reversing it. Returns nil if sink is unreachable from source.
func ReconstructPath(parent map[int64]int64, source, sink int64) []int64 {
	if _, exists := parent[sink]; !exists {
		return nil
	}

	var path []int64
	current := sink
	for current != source {
		path = append([]int64{current}, path...)
		p, exists := parent[current]
		if !exists || p == -1 {
			if current == source {
				break
			}
			return nil
		}
		current = p
	}
	path = append([]int64{source}, path...)

	return path
}

// FindMinCapacityOnPath returns the bottleneck (minimum) residual capacity
// among the edges of path, or 0 if the path is invalid.
func FindMinCapacityOnPath(g *ResidualGraph, path []int64) float64 {
	if len(path) < 2 {
		return 0
	}

	minCapacity := Infinity
	for i := 0; i < len(path)-1; i++ {
		edge := g.GetEdge(path[i], path[i+1])
		if edge == nil {
			return 0
		}
		if edge.Capacity < minCapacity {
			minCapacity = edge.Capacity
		}
	}

	if minCapacity == Infinity {
		return 0
	}
	return minCapacity
}

// AugmentPath pushes flow along path, updating residual capacities on both
// the forward and reverse edge of each hop.
func AugmentPath(g *ResidualGraph, path []int64, flow float64) {
	for i := 0; i < len(path)-1; i++ {
		g.UpdateFlow(path[i], path[i+1], flow)
	}
}
