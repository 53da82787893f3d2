// hash.go -- deterministic 192-bit keyed hash and hyperedge derivation
//
// Adapted from the SpookyHash V2 permutation (Bob Jenkins, public domain),
// as ported to Go by L.Bakst in github.com/tildeleb/hashland/spooky. We
// keep only the short-message path (every key in this package's domain is
// either a small byte string or a pre-hashed 192-bit triple, never a
// multi-kilobyte blob) and fold it into a single triple + multiword rehash
// in the style of this package's predecessor's bhash()/rhash() helpers.
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

// sc_const is SpookyHash's constant: nonzero, odd, an irregular mix of 1s
// and 0s, with no other required property.
const sc_const uint64 = 0xdeadbeefdeadbeef

// Triple is the 192-bit surrogate for a key used throughout the pipeline in
// place of the key's raw bytes. Two keys with equal triples are treated as
// equal; the hash store surfaces a genuine (or, at 192 bits, vanishingly
// unlikely accidental) collision as ErrDuplicateKey.
type Triple [3]uint64

// HashKey computes the 192-bit triple for 'key' under 'seed'. It is
// deterministic: identical (key, seed) pairs always yield the identical
// triple, on any platform, in any process.
func HashKey(key []byte, seed uint64) Triple {
	h0, h1 := spookyShort(key, seed, seed)
	h2, _ := spookyShort(key, h0^sc_const, h1+seed)
	return Triple{h0, h1, h2}
}

// Rehash derives 'r' pseudo-random 64-bit words from a triple and a
// bucket-local seed — one per hyperedge vertex (r=3 for the MPHF's F3
// system, r=4 for the static function's F2 system). Each word still needs
// to be reduced into [0, V) for a given bucket width V; see reduceRange.
func Rehash(t Triple, seed uint32, r int) []uint64 {
	out := make([]uint64, r)
	for i := 0; i < r; i++ {
		out[i] = rehashWord(t, seed, i)
	}
	return out
}

// rehashWord produces one pseudo-random word from a triple, a seed and a
// position index, via the same multiply-mix cascade this package's
// predecessor (opencoff/go-mph) used in bhash()/rhash() — we simply widen
// it to draw on all three words of the triple instead of one key.
func rehashWord(t Triple, seed uint32, idx int) uint64 {
	const m uint64 = 0x880355f21e6d1965
	h := m
	h ^= mix(t[idx%3])
	h *= m
	h ^= mix(uint64(seed))
	h *= m
	h ^= mix(uint64(idx))
	h *= m
	h = mix(h)
	return h
}

// reduceRange maps a uniformly-random 64-bit word into [0, V) using
// Lemire's multiply-shift (fixed-point) reduction: treat 'h' as a value in
// [0, 2^64) and 'V' as the range width; the high 64 bits of the 128-bit
// product h*V are, exactly, in [0, V). This is the modern replacement for
// the informal "mask-then-multiply-then-shift-by-leading-zeros" reduction:
// both are multiply-shift techniques, but this one is exact for every V (no
// off-by-construction edge case when V isn't a power of two), which matters
// because bucket widths here are arbitrary, not just powers of two (see
// DESIGN.md).
func reduceRange(h uint64, v uint64) uint64 {
	if v == 0 {
		return 0
	}
	hi, _ := bits.Mul64(h, v)
	return hi
}
