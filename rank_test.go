// rank_test.go
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

func TestRankAgainstBruteForce(t *testing.T) {
	assert := newAsserter(t)

	const nfields = 10007 // deliberately not a multiple of any span size
	bv := NewBitVec(nfields * 2)

	// mark a pseudo-random, deterministic subset of fields as 3.
	marked := make([]bool, nfields)
	h := uint64(0x9e3779b97f4a7c15)
	for i := uint64(0); i < nfields; i++ {
		h ^= h << 13
		h ^= h >> 7
		h ^= h << 17
		if h%5 == 0 {
			bv.SetBits(i*2, 2, 3)
			marked[i] = true
		}
	}

	r := BuildRank(bv, nfields)

	var running uint64
	for i := uint64(0); i < nfields; i++ {
		got := r.Rank(i)
		assert(got == running, "Rank(%d): got %d, want %d", i, got, running)
		if marked[i] {
			assert(r.Get(i) == 3, "Get(%d): expected marked field to read 3", i)
			running++
		} else {
			assert(r.Get(i) == 0, "Get(%d): expected unmarked field to read 0", i)
		}
	}
	assert(r.Rank(nfields) == running, "Rank(nfields): got %d, want %d", r.Rank(nfields), running)
}

func TestRankEmptyAndSingleton(t *testing.T) {
	assert := newAsserter(t)

	bv := NewBitVec(2)
	r := BuildRank(bv, 1)
	assert(r.Rank(0) == 0, "Rank(0) on empty structure should be 0")

	bv.SetBits(0, 2, 3)
	r2 := BuildRank(bv, 1)
	assert(r2.Rank(0) == 0, "Rank before the only marked field should be 0")
	assert(r2.Rank(1) == 1, "Rank after the only marked field should be 1")
}
