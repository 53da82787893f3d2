// f2solver_test.go
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

func TestSolveF2PlaneConsistentTriangle(t *testing.T) {
	assert := newAsserter(t)

	edges := [][]int{
		{0, 1}, // x0 ^ x1 = 1
		{1, 2}, // x1 ^ x2 = 0
		{0, 2}, // x0 ^ x2 = 1
	}
	terms := []uint8{1, 0, 1}
	p := newManualPeeler(3, edges)

	solution := make([]uint64, 3)
	err := SolveF2Plane(p, []int{0, 1, 2}, func(e int) uint8 { return terms[e] }, solution)
	assert(err == nil, "unexpected solve error: %v", err)

	for e, verts := range edges {
		got := uint8(solution[verts[0]]&1) ^ uint8(solution[verts[1]]&1)
		assert(got == terms[e], "edge %d unsatisfied: got %d want %d", e, got, terms[e])
	}
}

func TestSolveF2PlaneInconsistentIsUnsolvable(t *testing.T) {
	assert := newAsserter(t)

	// the same triangle, but with an inconsistent right-hand side
	// (x0^x1=1, x1^x2=0, x0^x2=0 implies 1=0).
	edges := [][]int{
		{0, 1},
		{1, 2},
		{0, 2},
	}
	terms := []uint8{1, 0, 0}
	p := newManualPeeler(3, edges)

	solution := make([]uint64, 3)
	err := SolveF2Plane(p, []int{0, 1, 2}, func(e int) uint8 { return terms[e] }, solution)
	assert(err != nil, "expected an unsolvable-system error, got nil")
}

func TestSolveF2PlaneEmptyIsNoop(t *testing.T) {
	assert := newAsserter(t)
	p := newManualPeeler(1, [][]int{{0}})
	solution := make([]uint64, 1)
	err := SolveF2Plane(p, nil, func(int) uint8 { return 0 }, solution)
	assert(err == nil, "empty edge set should never fail: %v", err)
}
