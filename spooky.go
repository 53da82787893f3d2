// spooky.go -- SpookyHash V2's short-message path
//
// Ported from github.com/tildeleb/hashland/spooky (itself a Go port of Bob
// Jenkins' public-domain SpookyHash V2) and restricted to the short-message
// (< 192 byte) code path, which is the only one this package's Hasher ever
// needs: every input here is either a small key or an already-192-bit
// triple being re-mixed, never a multi-kilobyte blob.
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

func rot64(x, k uint64) uint64 {
	return (x << k) | (x >> (64 - k))
}

// spookyShortMix mixes 4 64-bit words so that every bit of every input
// influences every bit of the output.
func spookyShortMix(h0, h1, h2, h3 uint64) (uint64, uint64, uint64, uint64) {
	h2 = rot64(h2, 50)
	h2 += h3
	h0 ^= h2
	h3 = rot64(h3, 52)
	h3 += h0
	h1 ^= h3
	h0 = rot64(h0, 30)
	h0 += h1
	h2 ^= h0
	h1 = rot64(h1, 41)
	h1 += h2
	h3 ^= h1
	h2 = rot64(h2, 54)
	h2 += h3
	h0 ^= h2
	h3 = rot64(h3, 48)
	h3 += h0
	h1 ^= h3
	h0 = rot64(h0, 38)
	h0 += h1
	h2 ^= h0
	h1 = rot64(h1, 37)
	h1 += h2
	h3 ^= h1
	h2 = rot64(h2, 62)
	h2 += h3
	h0 ^= h2
	h3 = rot64(h3, 34)
	h3 += h0
	h1 ^= h3
	h0 = rot64(h0, 5)
	h0 += h1
	h2 ^= h0
	h1 = rot64(h1, 36)
	h1 += h2
	h3 ^= h1
	return h0, h1, h2, h3
}

// spookyShortEnd finalizes 4 words of state into the pair the caller
// actually wants (h0, h1).
func spookyShortEnd(h0, h1, h2, h3 uint64) (uint64, uint64, uint64, uint64) {
	h3 ^= h2
	h2 = rot64(h2, 15)
	h3 += h2
	h0 ^= h3
	h3 = rot64(h3, 52)
	h0 += h3
	h1 ^= h0
	h0 = rot64(h0, 26)
	h1 += h0
	h2 ^= h1
	h1 = rot64(h1, 51)
	h2 += h1
	h3 ^= h2
	h2 = rot64(h2, 28)
	h3 += h2
	h0 ^= h3
	h3 = rot64(h3, 9)
	h0 += h3
	h1 ^= h0
	h0 = rot64(h0, 47)
	h1 += h0
	h2 ^= h1
	h1 = rot64(h1, 54)
	h2 += h1
	h3 ^= h2
	h2 = rot64(h2, 32)
	h3 += h2
	h0 ^= h3
	h3 = rot64(h3, 25)
	h0 += h3
	h1 ^= h0
	h0 = rot64(h0, 63)
	h1 += h0
	return h0, h1, h2, h3
}

func u8tou64le(p []byte) uint64 {
	return uint64(p[0]) | uint64(p[1])<<8 | uint64(p[2])<<16 | uint64(p[3])<<24 |
		uint64(p[4])<<32 | uint64(p[5])<<40 | uint64(p[6])<<48 | uint64(p[7])<<56
}

func u8tou32le(p []byte) uint64 {
	return uint64(p[0]) | uint64(p[1])<<8 | uint64(p[2])<<16 | uint64(p[3])<<24
}

// spookyShort is SpookyHash V2's short-message hash: it returns a 128-bit
// digest (as two uint64 words) of 'in', keyed by the pair (seed0, seed1).
func spookyShort(in []byte, seed0, seed1 uint64) (uint64, uint64) {
	a, b := seed0, seed1
	c, d := sc_const, sc_const

	length := len(in)
	remainder := length % 32

	if length >= 16 {
		for l := length; l >= 32; l -= 32 {
			c += u8tou64le(in)
			in = in[8:]
			d += u8tou64le(in)
			in = in[8:]
			a, b, c, d = spookyShortMix(a, b, c, d)
			a += u8tou64le(in)
			in = in[8:]
			b += u8tou64le(in)
			in = in[8:]
		}

		if remainder >= 16 {
			c += u8tou64le(in)
			in = in[8:]
			d += u8tou64le(in)
			in = in[8:]
			a, b, c, d = spookyShortMix(a, b, c, d)
			remainder -= 16
		}
	}

	d += uint64(length) << 56

	switch remainder {
	case 15:
		d += uint64(in[14]) << 48
		fallthrough
	case 14:
		d += uint64(in[13]) << 40
		fallthrough
	case 13:
		d += uint64(in[12]) << 32
		fallthrough
	case 12:
		d += u8tou32le(in[8:])
		c += u8tou64le(in)
	case 11:
		d += uint64(in[10]) << 16
		fallthrough
	case 10:
		d += uint64(in[9]) << 8
		fallthrough
	case 9:
		d += uint64(in[8])
		fallthrough
	case 8:
		c += u8tou64le(in)
	case 7:
		c += uint64(in[6]) << 48
		fallthrough
	case 6:
		c += uint64(in[5]) << 40
		fallthrough
	case 5:
		c += uint64(in[4]) << 32
		fallthrough
	case 4:
		c += u8tou32le(in)
	case 3:
		c += uint64(in[2]) << 16
		fallthrough
	case 2:
		c += uint64(in[1]) << 8
		fallthrough
	case 1:
		c += uint64(in[0])
	case 0:
		c += sc_const
		d += sc_const
	}

	a, b, c, d = spookyShortEnd(a, b, c, d)
	return a, b
}
