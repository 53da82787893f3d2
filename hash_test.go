// hash_test.go -- test suite for the 192-bit keyed hash
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

func TestHashDeterministic(t *testing.T) {
	assert := newAsserter(t)

	for _, s := range keyw {
		a := HashKey([]byte(s), 0xdeadbeefbaadf00d)
		b := HashKey([]byte(s), 0xdeadbeefbaadf00d)
		assert(a == b, "hash(%q) not deterministic: %v != %v", s, a, b)
	}
}

func TestHashAvalanche(t *testing.T) {
	assert := newAsserter(t)

	a := HashKey([]byte("expectoration"), 1)
	b := HashKey([]byte("expectorations"), 1)
	assert(a != b, "hash collided on near-identical inputs")

	c := HashKey([]byte("expectoration"), 2)
	assert(a != c, "hash ignored the seed")
}

func TestRehashSpread(t *testing.T) {
	assert := newAsserter(t)

	t0 := HashKey([]byte("a-test-key"), 7)
	const v = uint64(997) // prime bucket width, not a power of two

	seen := make(map[uint64]int)
	for seed := uint32(0); seed < 4000; seed++ {
		words := Rehash(t0, seed, 4)
		for _, w := range words {
			e := reduceRange(w, v)
			assert(e < v, "reduceRange out of range: %d >= %d", e, v)
			seen[e]++
		}
	}
	assert(len(seen) > int(v)/2, "poor spread: only %d/%d distinct values", len(seen), v)
}
