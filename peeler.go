// peeler.go -- r-uniform hypergraph peeling
//
// The XOR-of-incident-edge-indices trick (edgeXor[x] holds the running
// XOR of every still-incident edge's index, so a degree-1 variable's
// unique edge is recovered in O(1) without ever materializing an
// adjacency list) is this package's own algorithm; no file in the
// retrieval pack implements hypergraph peeling, so it is built directly
// from the design document's description rather than adapted from a
// Its surrounding texture (small struct, explicit error
// sentinels, no panics) follows this package's own errors.go.
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package mph

// PeelStep records one peeled variable and the unique edge that peeled
// it, in the order peeling discovered them. Back-substitution walks this
// slice in reverse.
type PeelStep struct {
	Var  int
	Edge int
}

// Peeler runs the peeling pass over a bucket's hyperedges. Each
// edge is the r rehashed-and-reduced positions of one key's triple.
type Peeler struct {
	v int
	r int

	edgeVerts [][]int // per edge (key), its r variable positions
	edgeXor   []uint64
	degree    []int
}

// NewPeeler derives every key's hyperedge from its triple under the
// given bucket-local seed, and builds the initial degree/edgeXor tables
// over a variable space of size v.
func NewPeeler(triples []Triple, seed uint32, r int, v int) *Peeler {
	k := len(triples)
	p := &Peeler{
		v:         v,
		r:         r,
		edgeVerts: make([][]int, k),
		edgeXor:   make([]uint64, v),
		degree:    make([]int, v),
	}
	for e, t := range triples {
		words := Rehash(t, seed, r)
		verts := make([]int, r)
		for i, w := range words {
			verts[i] = int(reduceRange(w, uint64(v)))
		}
		p.edgeVerts[e] = verts
		for _, x := range verts {
			p.edgeXor[x] ^= uint64(e)
			p.degree[x]++
		}
	}
	return p
}

// Edges returns the r-vertex hyperedge for key index e.
func (p *Peeler) Edges(e int) []int { return p.edgeVerts[e] }

// NumEdges is the number of keys (hyperedges) in the bucket.
func (p *Peeler) NumEdges() int { return len(p.edgeVerts) }

// Peel strips every degree-1 variable it can find, repeatedly, following
// It returns the peel stack (earliest-peeled first; back-substitute
// in reverse) and the indices of edges that remain unpeeled (the
// residual, handed to a solver or the orientation procedure).
func (p *Peeler) Peel() ([]PeelStep, []int) {
	queue := make([]int, 0, p.v/4+1)
	for x := 0; x < p.v; x++ {
		if p.degree[x] == 1 {
			queue = append(queue, x)
		}
	}

	peeledEdge := make([]bool, len(p.edgeVerts))
	stack := make([]PeelStep, 0, len(p.edgeVerts))

	for len(queue) > 0 {
		x := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		if p.degree[x] != 1 {
			continue
		}
		e := int(p.edgeXor[x])
		if peeledEdge[e] {
			continue
		}
		peeledEdge[e] = true
		stack = append(stack, PeelStep{Var: x, Edge: e})
		p.degree[x] = 0

		for _, y := range p.edgeVerts[e] {
			if y == x {
				continue
			}
			p.edgeXor[y] ^= uint64(e)
			p.degree[y]--
			if p.degree[y] == 1 {
				queue = append(queue, y)
			}
		}
	}

	residual := make([]int, 0, len(p.edgeVerts)-len(stack))
	for e := range p.edgeVerts {
		if !peeledEdge[e] {
			residual = append(residual, e)
		}
	}
	return stack, residual
}

// BackSubstituteF2 assigns every peeled variable from 'stack', processed
// in reverse (last-peeled first): by the time a variable is peeled, every
// other vertex of its claiming edge is either a residual variable (solved
// by SolveF2Plane before this is called) or a variable peeled later (and
// thus already assigned earlier in this reverse walk).
func (p *Peeler) BackSubstituteF2(stack []PeelStep, term func(edge int) uint8, solution []uint64) {
	for i := len(stack) - 1; i >= 0; i-- {
		s := stack[i]
		val := term(s.Edge)
		for _, y := range p.Edges(s.Edge) {
			if y == s.Var {
				continue
			}
			val ^= uint8(solution[y] & 1)
		}
		solution[s.Var] = uint64(val)
	}
}
