// f2solver.go -- lazy Gaussian elimination over GF(2)
//
// Grounded on the design document's own description: no file in the
// retrieval pack implements lazy Gaussian elimination, so the algorithm
// shape (idle/heavy/pivot classification, a priority queue bounded at 1,
// a dense fallback core) is taken directly from the specification. Error
// reporting follows this package's own errors.go (BuildError/ErrKind)
// rather than panicking mid-solve.
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

// f2Equation is one residual equation: the (mutable) set of variables
// still appearing in it, and its known term bit.
type f2Equation struct {
	vars map[int]bool
	term uint8
}

func newF2Equation(vars []int, term uint8) *f2Equation {
	e := &f2Equation{vars: make(map[int]bool, len(vars)), term: term}
	for _, v := range vars {
		e.toggle(v)
	}
	return e
}

// toggle XORs variable v's presence in the equation (appearing twice
// cancels out, same as in any GF(2) linear system).
func (e *f2Equation) toggle(v int) {
	if e.vars[v] {
		delete(e.vars, v)
	} else {
		e.vars[v] = true
	}
}

func (e *f2Equation) xorInto(o *f2Equation) {
	for v := range o.vars {
		e.toggle(v)
	}
	e.term ^= o.term
}

// f2PivotRecord is one entry of the solved (pivot) list, processed in
// reverse at the end to assign every pivot variable.
type f2PivotRecord struct {
	v int
	e *f2Equation
}

// SolveF2Plane solves one bit-plane of residual equations: edges is the
// set of hyperedges handed to the solver (after peeling), term(e) is the
// known bit for edge e, and solution receives a 0/1 assignment for every
// variable referenced. It mutates 'solution' in place for variables it
// resolves (idle/heavy/pivot) and leaves peeled variables to the caller's
// back-substitution pass. Returns ErrUnsolvable if the equations are
// inconsistent; a singular but consistent core is solved with its free
// variables set to 0.
func SolveF2Plane(p *Peeler, edges []int, term func(edge int) uint8, solution []uint64) error {
	if len(edges) == 0 {
		return nil
	}

	eqs := make(map[int]*f2Equation, len(edges))
	weight := make(map[int]int)
	for _, e := range edges {
		eq := newF2Equation(p.Edges(e), term(e))
		eqs[e] = eq
		for v := range eq.vars {
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

	priority := func(eq *f2Equation) int {
		n := 0
		for v := range eq.vars {
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

	var pivots []f2PivotRecord
	var dense []*f2Equation

	active := func(e int) bool {
		_, ok := eqs[e]
		return ok
	}

	// drainQueue processes every equation currently queued (and anything
	// it transitively re-queues) until priority-<=1 equations run out.
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
				if len(eq.vars) == 0 {
					if eq.term != 0 {
						return newBuildError(KindUnsolvable, -1, ErrUnsolvable)
					}
					delete(eqs, e)
					continue
				}
				// all remaining vars are heavy: bound for dense solve.
				dense = append(dense, eq)
				delete(eqs, e)

			case pr == 1:
				var x int
				for v := range eq.vars {
					if state[v] == stIdle {
						x = v
						break
					}
				}
				state[x] = stSolved
				pivots = append(pivots, f2PivotRecord{v: x, e: eq})
				delete(eqs, e)

				for oe, oeq := range eqs {
					if oeq.vars[x] {
						oeq.xorInto(eq)
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

	// promote idle variables to heavy, one at a time, draining the
	// queue back to empty after each promotion; order among idle
	// variables affects only dense-core size, never correctness.
	for len(eqs) > 0 {
		var promote int
		found := false
		for v, st := range state {
			if st != stIdle {
				continue
			}
			for _, eq := range eqs {
				if eq.vars[v] {
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
			if eq.vars[promote] && priority(eq) <= 1 {
				push(e)
			}
		}
		if err := drainQueue(); err != nil {
			return err
		}
	}

	if err := solveDenseF2(dense, state, solution); err != nil {
		return err
	}

	for i := len(pivots) - 1; i >= 0; i-- {
		rec := pivots[i]
		val := rec.e.term
		for v := range rec.e.vars {
			if v == rec.v {
				continue
			}
			val ^= uint8(solution[v] & 1)
		}
		solution[rec.v] = uint64(val)
	}
	return nil
}

// solveDenseF2 runs ordinary Gaussian elimination over the heavy
// variable core and assigns 'solution' for every heavy variable.
func solveDenseF2(dense []*f2Equation, state map[int]int, solution []uint64) error {
	if len(dense) == 0 {
		return nil
	}

	heavy := make([]int, 0)
	seen := make(map[int]bool)
	for _, eq := range dense {
		for v := range eq.vars {
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

	rows := make([][]uint8, len(dense))
	terms := make([]uint8, len(dense))
	for i, eq := range dense {
		row := make([]uint8, len(heavy))
		for v := range eq.vars {
			row[idx[v]] = 1
		}
		rows[i] = row
		terms[i] = eq.term
	}

	n := len(heavy)
	rowOf := make([]int, n)
	for i := range rowOf {
		rowOf[i] = -1
	}

	r := 0
	for c := 0; c < n && r < len(rows); c++ {
		piv := -1
		for i := r; i < len(rows); i++ {
			if rows[i][c] == 1 {
				piv = i
				break
			}
		}
		if piv < 0 {
			continue
		}
		rows[r], rows[piv] = rows[piv], rows[r]
		terms[r], terms[piv] = terms[piv], terms[r]
		for i := 0; i < len(rows); i++ {
			if i != r && rows[i][c] == 1 {
				for j := c; j < n; j++ {
					rows[i][j] ^= rows[r][j]
				}
				terms[i] ^= terms[r]
			}
		}
		rowOf[c] = r
		r++
	}

	// detect inconsistency: an all-zero row with a nonzero term.
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
			solution[v] = 0 // free variable: any value satisfies the system
		}
	}
	return nil
}
