// Package routeplan computes all-pairs shortest paths over the topology
// graph and reconstructs next-hop paths for static routing. The core
// triple loop follows the textbook Floyd-Warshall shape used by
// katalvlaran-lvlath's matrix/ops package, adapted here to also carry a
// next-hop matrix so route() can rebuild a path rather than only a cost.
package routeplan

import "math"

// Inf represents an unreachable pair.
const Inf = math.MaxFloat32

// Planner stores a dense n x n weight/next-hop matrix in row-major order.
type Planner struct {
	n        int
	weight   []float32
	nextHop  []int32
	pathBuf  []int32
}

// New allocates a planner for n nodes. Off-diagonal cells start at
// weight=+Inf and diagonal cells at 0; every cell's next_hop starts at its
// row's own node.
func New(n int) *Planner {
	p := &Planner{
		n:       n,
		weight:  make([]float32, n*n),
		nextHop: make([]int32, n*n),
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			idx := i*n + j
			if i == j {
				p.weight[idx] = 0
			} else {
				p.weight[idx] = Inf
			}
			p.nextHop[idx] = int32(i)
		}
	}
	return p
}

func (p *Planner) idx(i, j int) int { return i*p.n + j }

// SetWeight writes one cell of the direct-edge weight matrix. Negative
// weights are rejected by the builder, not here.
func (p *Planner) SetWeight(from, to int, w float32) {
	idx := p.idx(from, to)
	p.weight[idx] = w
	p.nextHop[idx] = int32(to)
}

// Plan runs the standard triple-loop Floyd-Warshall with next-hop
// reconstruction: for each intermediate k, each source i, each
// destination j, if w[i][k]+w[k][j] < w[i][j] then update both the
// weight and next_hop matrices.
func (p *Planner) Plan() {
	n := p.n
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			wik := p.weight[p.idx(i, k)]
			if wik == Inf {
				continue
			}
			for j := 0; j < n; j++ {
				wkj := p.weight[p.idx(k, j)]
				if wkj == Inf {
					continue
				}
				candidate := wik + wkj
				ij := p.idx(i, j)
				if candidate < p.weight[ij] {
					p.weight[ij] = candidate
					p.nextHop[ij] = p.nextHop[p.idx(i, k)]
				}
			}
		}
	}
}

// Weight returns the shortest-path cost between from and to after Plan has
// run. Inf means unreachable.
func (p *Planner) Weight(from, to int) float32 {
	return p.weight[p.idx(from, to)]
}

// Route returns the shortest path from start to end as a sequence of node
// ids, or ok=false if unreachable. The returned slice is a reusable
// buffer owned by the planner: only one outstanding path is valid at a
// time, and the next call to Route overwrites it.
func (p *Planner) Route(start, end int) (path []int32, ok bool) {
	if p.weight[p.idx(start, end)] == Inf {
		return nil, false
	}

	p.pathBuf = p.pathBuf[:0]
	p.pathBuf = append(p.pathBuf, int32(start))

	current := start
	for current != end {
		next := int(p.nextHop[p.idx(current, end)])
		if next == current {
			// No progress; the matrix is inconsistent with the reachability
			// check above, which should not happen after Plan().
			return nil, false
		}
		p.pathBuf = append(p.pathBuf, int32(next))
		current = next
		if len(p.pathBuf) > p.n {
			return nil, false
		}
	}

	return p.pathBuf, true
}
