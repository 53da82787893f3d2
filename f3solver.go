// f3solver.go -- lazy Gaussian elimination over GF(3), and 3-hypergraph
// orientation for the minimal-perfect-hash variant.
//
// Like f2solver.go and peeler.go, this has no direct precedent elsewhere
// in this package; the mod-3 arithmetic (add3/scale3) works on one uint8
// value at a time, and the dense core keeps one uint8 per coefficient: no
// packed 2-bit (broadword) arithmetic is used while solving.
// countNonzeroPairs, defined at the end of this file, is the one
// broadword identity here, and rank.go uses it at lookup time.
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

import "math/bits"

// add3 and scale3 are GF(3) arithmetic on values already known to be in
// {0,1,2}; mod3Reduce folds an accumulator that may have overflowed past
// 2 (after repeated adds) back into {0,1,2} without a division.
func mod3Reduce(x uint8) uint8 {
	for x >= 3 {
		x -= 3
	}
	return x
}

func add3(a, b uint8) uint8 { return mod3Reduce(a + b) }

// scale3 multiplies a GF(3) value by 1 or 2 (the only nonzero
// coefficients this system ever uses); 2*a mod 3 == (3-a) mod 3 for
// a in {1,2}, and 0 for a == 0.
func scale3(coeff, a uint8) uint8 {
	if coeff == 1 || a == 0 {
		return a
	}
	return mod3Reduce(3 - a)
}

// inv3 is the multiplicative inverse of a nonzero GF(3) element: both 1
// and 2 are self-inverse.
func inv3(c uint8) uint8 { return c }

// packTrits packs GF(3) values, 2 bits each, 32 to a uint64 word. The
// solvers in this file do not use it: solveDenseF3 keeps its rows as
// []uint8.
func packTrits(vals []uint8) []uint64 {
	words := make([]uint64, (len(vals)+31)/32)
	for i, v := range vals {
		words[i/32] |= uint64(v&3) << uint((i%32)*2)
	}
	return words
}

func unpackTrit(words []uint64, i int) uint8 {
	return uint8((words[i/32] >> uint((i%32)*2)) & 3)
}

// f3Equation is one residual GF(3) equation: variable -> coefficient (1
// or 2), plus a known term in {0,1,2}.
type f3Equation struct {
	coeffs map[int]uint8
	term   uint8
}

func newF3Equation(vars []int, coeff func(pos int) uint8, term uint8) *f3Equation {
	e := &f3Equation{coeffs: make(map[int]uint8, len(vars)), term: term}
	for i, v := range vars {
		c := coeff(i)
		if c == 0 {
			continue
		}
		if cur, ok := e.coeffs[v]; ok {
			nc := add3(cur, c)
			if nc == 0 {
				delete(e.coeffs, v)
			} else {
				e.coeffs[v] = nc
			}
		} else {
			e.coeffs[v] = c
		}
	}
	return e
}

// eliminate merges 'pivot' into e, scaled so that e's coefficient on 'x'
// becomes zero: e -= (e.coeffs[x] * inv3(pivot.coeffs[x])) * pivot.
func (e *f3Equation) eliminate(x int, pivot *f3Equation) {
	cx := e.coeffs[x]
	if cx == 0 {
		return
	}
	factor := mod3Reduce(cx * inv3(pivot.coeffs[x]))
	negFactor := mod3Reduce(3 - factor) // subtraction mod 3
	if factor == 0 {
		return
	}
	for v, c := range pivot.coeffs {
		scaled := scale3(negFactor, c)
		if scaled == 0 {
			continue
		}
		if cur, ok := e.coeffs[v]; ok {
			nc := add3(cur, scaled)
			if nc == 0 {
				delete(e.coeffs, v)
			} else {
				e.coeffs[v] = nc
			}
		} else {
			e.coeffs[v] = scaled
		}
	}
	e.term = add3(e.term, scale3(negFactor, pivot.term))
}

type f3PivotRecord struct {
	v int
	e *f3Equation
}

// SolveF3Plane is the GF(3) analogue of SolveF2Plane: residual edges,
// each with per-vertex coefficients (all 1 for an orientation-derived
// system; 1 or 2 for the general case), are reduced via the same
// idle/heavy/pivot classification, then a dense core is solved by plain
// elimination.
func SolveF3Plane(edges []int, vars func(edge int) []int, coeff func(edge, pos int) uint8, term func(edge int) uint8, solution []uint64) error {
	if len(edges) == 0 {
		return nil
	}

	eqs := make(map[int]*f3Equation, len(edges))
	weight := make(map[int]int)
	for _, e := range edges {
		eq := newF3Equation(vars(e), func(pos int) uint8 { return coeff(e, pos) }, term(e))
		eqs[e] = eq
		for v := range eq.coeffs {
			weight[v]++
		}
	}

	const (
		stIdle = iota
		stHeavy
		stSolved
	)
	state := make(map[int]int, len(weight))
	for v := range weight {
		state[v] = stIdle
	}

	priority := func(eq *f3Equation) int {
		n := 0
		for v := range eq.coeffs {
			if state[v] == stIdle {
				n++
			}
		}
		return n
	}

	queue := make([]int, 0, len(edges))
	inQueue := make(map[int]bool, len(edges))
	push := func(e int) {
		if !inQueue[e] {
			inQueue[e] = true
			queue = append(queue, e)
		}
	}
	for e := range eqs {
		if priority(eqs[e]) <= 1 {
			push(e)
		}
	}

	var pivots []f3PivotRecord
	var dense []*f3Equation
	active := func(e int) bool { _, ok := eqs[e]; return ok }

	drainQueue := func() error {
		for len(queue) > 0 {
			e := queue[0]
			queue = queue[1:]
			inQueue[e] = false
			if !active(e) {
				continue
			}
			eq := eqs[e]
			pr := priority(eq)

			switch {
			case pr == 0:
				if len(eq.coeffs) == 0 {
					if eq.term != 0 {
						return newBuildError(KindUnsolvable, -1, ErrUnsolvable)
					}
					delete(eqs, e)
					continue
				}
				dense = append(dense, eq)
				delete(eqs, e)

			case pr == 1:
				var x int
				for v := range eq.coeffs {
					if state[v] == stIdle {
						x = v
						break
					}
				}
				state[x] = stSolved
				pivots = append(pivots, f3PivotRecord{v: x, e: eq})
				delete(eqs, e)

				for oe, oeq := range eqs {
					if oeq.coeffs[x] != 0 {
						oeq.eliminate(x, eq)
						if priority(oeq) <= 1 {
							push(oe)
						}
					}
				}
			}
		}
		return nil
	}

	if err := drainQueue(); err != nil {
		return err
	}

	for len(eqs) > 0 {
		var promote int
		found := false
		for v, st := range state {
			if st != stIdle {
				continue
			}
			for _, eq := range eqs {
				if eq.coeffs[v] != 0 {
					promote, found = v, true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			break
		}
		state[promote] = stHeavy
		for e, eq := range eqs {
			if eq.coeffs[promote] != 0 && priority(eq) <= 1 {
				push(e)
			}
		}
		if err := drainQueue(); err != nil {
			return err
		}
	}

	if err := solveDenseF3(dense, solution); err != nil {
		return err
	}

	for i := len(pivots) - 1; i >= 0; i-- {
		rec := pivots[i]
		acc := rec.e.term
		pivotCoeff := rec.e.coeffs[rec.v]
		for v, c := range rec.e.coeffs {
			if v == rec.v {
				continue
			}
			acc = add3(acc, scale3(mod3Reduce(3-c), uint8(solution[v])))
		}
		solution[rec.v] = uint64(scale3(inv3(pivotCoeff), acc))
	}
	return nil
}

func solveDenseF3(dense []*f3Equation, solution []uint64) error {
	if len(dense) == 0 {
		return nil
	}

	seen := make(map[int]bool)
	var heavy []int
	for _, eq := range dense {
		for v := range eq.coeffs {
			if !seen[v] {
				seen[v] = true
				heavy = append(heavy, v)
			}
		}
	}
	idx := make(map[int]int, len(heavy))
	for i, v := range heavy {
		idx[v] = i
	}

	n := len(heavy)
	rows := make([][]uint8, len(dense))
	terms := make([]uint8, len(dense))
	for i, eq := range dense {
		row := make([]uint8, n)
		for v, c := range eq.coeffs {
			row[idx[v]] = c
		}
		rows[i] = row
		terms[i] = eq.term
	}

	rowOf := make([]int, n)
	for i := range rowOf {
		rowOf[i] = -1
	}

	r := 0
	for c := 0; c < n && r < len(rows); c++ {
		piv := -1
		for i := r; i < len(rows); i++ {
			if rows[i][c] != 0 {
				piv = i
				break
			}
		}
		if piv < 0 {
			continue
		}
		rows[r], rows[piv] = rows[piv], rows[r]
		terms[r], terms[piv] = terms[piv], terms[r]

		invp := inv3(rows[r][c])
		for j := c; j < n; j++ {
			rows[r][j] = scale3(invp, rows[r][j])
		}
		terms[r] = scale3(invp, terms[r])

		for i := 0; i < len(rows); i++ {
			if i == r || rows[i][c] == 0 {
				continue
			}
			factor := rows[i][c]
			negFactor := mod3Reduce(3 - factor)
			for j := c; j < n; j++ {
				rows[i][j] = add3(rows[i][j], scale3(negFactor, rows[r][j]))
			}
			terms[i] = add3(terms[i], scale3(negFactor, terms[r]))
		}
		rowOf[c] = r
		r++
	}

	for i := 0; i < len(rows); i++ {
		allZero := true
		for _, b := range rows[i] {
			if b != 0 {
				allZero = false
				break
			}
		}
		if allZero && terms[i] != 0 {
			return newBuildError(KindUnsolvable, -1, ErrUnsolvable)
		}
	}

	for c, v := range heavy {
		if rowOf[c] >= 0 {
			solution[v] = uint64(terms[rowOf[c]])
		} else {
			solution[v] = 0
		}
	}
	return nil
}

// --- 3-hypergraph orientation (MPHF variant) --------------------

// xorshift64 is a small deterministic PRNG seeded from the bucket's
// local seed, used only to break ties when more than one vertex is free
// for an edge; it has no bearing on correctness, only on which
// orientation among several valid ones is found.
type xorshift64 uint64

func (x *xorshift64) next() uint64 {
	v := uint64(*x)
	v ^= v << 13
	v ^= v >> 7
	v ^= v << 17
	*x = xorshift64(v)
	return v
}

// Orient implements the randomized orientation procedure: it attempts to
// assign each residual edge an injective "hinge" vertex, preferring
// edges with fewest free vertices first (mirroring Peel's degree-1
// preference). It returns (hinge map edge->vertex-position-in-edge, ok).
// ok is false if some edge could never get a free vertex — the graph is
// unorientable under this seed and the caller must reseed and resolve.
func Orient(p *Peeler, residual []int, seed uint32) (map[int]int, bool) {
	hinge := make(map[int]int, len(residual))
	assignedVertex := make(map[int]bool)

	pending := make(map[int]bool, len(residual))
	for _, e := range residual {
		pending[e] = true
	}

	rng := xorshift64(uint64(seed)*0x9E3779B97F4A7C15 + 1)

	for len(pending) > 0 {
		bestEdge := -1
		bestFree := 4
		var bestFreePos []int
		for e := range pending {
			var free []int
			for pos, v := range p.Edges(e) {
				if !assignedVertex[v] {
					free = append(free, pos)
				}
			}
			if len(free) < bestFree {
				bestFree = len(free)
				bestEdge = e
				bestFreePos = free
				if bestFree <= 1 {
					break
				}
			}
		}
		if bestEdge < 0 {
			break
		}
		if bestFree == 0 {
			return nil, false
		}
		choice := bestFreePos[0]
		if len(bestFreePos) > 1 {
			choice = bestFreePos[int(rng.next()%uint64(len(bestFreePos)))]
		}
		v := p.Edges(bestEdge)[choice]
		hinge[bestEdge] = choice
		assignedVertex[v] = true
		delete(pending, bestEdge)
	}
	return hinge, len(pending) == 0
}

// BackSubstituteF3 is the GF(3) analogue of (*Peeler).BackSubstituteF2:
// it assigns every peeled variable in reverse peel order, solving each
// claiming edge's equation for its one still-unknown variable.
func BackSubstituteF3(p *Peeler, stack []PeelStep, term func(edge int) uint8, coeff func(edge, pos int) uint8, solution []uint64) {
	for i := len(stack) - 1; i >= 0; i-- {
		s := stack[i]
		verts := p.Edges(s.Edge)
		var pivotCoeff uint8
		acc := term(s.Edge)
		for pos, v := range verts {
			c := coeff(s.Edge, pos)
			if v == s.Var {
				pivotCoeff = c
				continue
			}
			acc = add3(acc, scale3(mod3Reduce(3-c), uint8(solution[v])))
		}
		solution[s.Var] = uint64(scale3(inv3(pivotCoeff), acc))
	}
}

// countNonzeroPairs counts the number of
// nonzero 2-bit fields in a 64-bit word, via the standard broadword
// identity popcount((x | (x>>1)) & 0x5555...).
func countNonzeroPairs(x uint64) int {
	const mask = 0x5555555555555555
	return bits.OnesCount64((x | (x >> 1)) & mask)
}
