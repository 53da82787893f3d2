// f3solver_test.go
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

import "testing"

func TestGF3Arithmetic(t *testing.T) {
	assert := newAsserter(t)

	for a := uint8(0); a < 3; a++ {
		for b := uint8(0); b < 3; b++ {
			got := add3(a, b)
			want := (a + b) % 3
			assert(got == want, "add3(%d,%d) = %d, want %d", a, b, got, want)
		}
	}

	for _, c := range []uint8{1, 2} {
		for a := uint8(0); a < 3; a++ {
			got := scale3(c, a)
			want := (c * a) % 3
			assert(got == want, "scale3(%d,%d) = %d, want %d", c, a, got, want)
		}
	}

	for _, c := range []uint8{1, 2} {
		got := mod3Reduce(c * inv3(c))
		assert(got == 1, "inv3(%d) is not a multiplicative inverse: c*inv3(c) mod 3 = %d", c, got)
	}
}

func TestPackUnpackTrits(t *testing.T) {
	assert := newAsserter(t)

	vals := make([]uint8, 70)
	for i := range vals {
		vals[i] = uint8(i % 3)
	}
	words := packTrits(vals)
	for i, v := range vals {
		assert(unpackTrit(words, i) == v, "unpackTrit(%d): got %d, want %d", i, unpackTrit(words, i), v)
	}
}

func TestSolveF3PlaneUnitCoeffs(t *testing.T) {
	assert := newAsserter(t)

	// a small residual system with unit coefficients, the form mphf.go's
	// fingerprint plane always uses: x0+x1+x2=1 (mod 3), x1+x2+x3=2.
	edges := [][]int{
		{0, 1, 2},
		{1, 2, 3},
	}
	terms := []uint8{1, 2}
	p := newManualPeeler(4, edges)

	coeffFn := func(e, pos int) uint8 { return 1 }
	termFn := func(e int) uint8 { return terms[e] }

	solution := make([]uint64, 4)
	err := SolveF3Plane([]int{0, 1}, func(e int) []int { return p.Edges(e) }, coeffFn, termFn, solution)
	assert(err == nil, "unexpected solve error: %v", err)

	for e, verts := range edges {
		var sum uint8
		for _, v := range verts {
			sum = add3(sum, uint8(solution[v]))
		}
		assert(sum == terms[e], "edge %d: sum=%d, want %d", e, sum, terms[e])
	}
}

func TestOrientSucceedsWithEnoughSlack(t *testing.T) {
	assert := newAsserter(t)

	edges := [][]int{
		{0, 1, 2},
		{1, 2, 3},
	}
	p := newManualPeeler(4, edges)

	hinge, ok := Orient(p, []int{0, 1}, 1)
	assert(ok, "expected orientation to succeed with slack vertices available")
	assert(len(hinge) == 2, "expected a hinge for every residual edge, got %d", len(hinge))

	seen := make(map[int]bool)
	for e, pos := range hinge {
		v := edges[e][pos]
		assert(!seen[v], "vertex %d assigned as hinge for more than one edge", v)
		seen[v] = true
	}
}

func TestOrientFailsByPigeonhole(t *testing.T) {
	assert := newAsserter(t)

	// 3 edges can never get 3 distinct hinge vertices out of a 2-vertex
	// domain, regardless of tie-break seed.
	edges := [][]int{
		{0, 1},
		{0, 1},
		{0, 1},
	}
	p := newManualPeeler(2, edges)

	_, ok := Orient(p, []int{0, 1, 2}, 42)
	assert(!ok, "expected orientation to fail: 3 edges, 2 vertices")
}
