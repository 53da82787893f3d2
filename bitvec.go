// bitvec.go -- packed bit array and fixed-width-field view over it
//
// (c) Sudhi Herle 2018
//
// License GPLv2
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package mph

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
)

// BitVec is a packed array of bits, backed by a slice of 64-bit words. It
// is the building block for every variable vector in this package: the
// static-function system addresses it directly in wmax-bit chunks through
// GetBits/SetBits, and the MPHF system stores 2 bits per vertex in it.
type BitVec struct {
	v []uint64
}

// NewBitVec allocates a bit vector with room for at least 'nbits' bits,
// rounded up to the next multiple of 64.
func NewBitVec(nbits uint64) *BitVec {
	nbits += 63
	nbits &= ^(uint64(63))
	return &BitVec{v: make([]uint64, nbits/64)}
}

// Size returns the total number of addressable bits.
func (b *BitVec) Size() uint64 {
	return uint64(len(b.v)) * 64
}

// Words returns the number of 64-bit words backing this vector.
func (b *BitVec) Words() uint64 {
	return uint64(len(b.v))
}

// Set sets bit 'i'.
func (b *BitVec) Set(i uint64) {
	b.v[i/64] |= uint64(1) << (i % 64)
}

// Clear clears bit 'i'.
func (b *BitVec) Clear(i uint64) {
	b.v[i/64] &^= uint64(1) << (i % 64)
}

// IsSet reports whether bit 'i' is set.
func (b *BitVec) IsSet(i uint64) bool {
	return 1 == (1 & (b.v[i/64] >> (i % 64)))
}

// Reset clears every bit.
func (b *BitVec) Reset() {
	for i := range b.v {
		b.v[i] = 0
	}
}

// GetBits reads 'nbits' (0 < nbits <= 64) consecutive bits starting at bit
// offset 'from' and returns them right-justified in the low 'nbits' bits of
// the result. This is a "getLong(from, to)" slice operation:
// it underlies both LongBigList's fixed-width field reads and the
// compressed-function decoder's w_max-bit codeword window read, which is
// not aligned to any field boundary.
func (b *BitVec) GetBits(from uint64, nbits uint) uint64 {
	if nbits == 0 {
		return 0
	}
	word := from / 64
	off := from % 64
	lo := b.v[word] >> off
	if off+uint64(nbits) > 64 {
		hi := b.v[word+1] << (64 - off)
		lo |= hi
	}
	if nbits == 64 {
		return lo
	}
	return lo & ((uint64(1) << nbits) - 1)
}

// SetBits writes the low 'nbits' bits of 'val' starting at bit offset
// 'from', clearing any prior content in that range first.
func (b *BitVec) SetBits(from uint64, nbits uint, val uint64) {
	if nbits == 0 {
		return
	}
	if nbits < 64 {
		val &= (uint64(1) << nbits) - 1
	}
	word := from / 64
	off := from % 64

	mask := uint64(1)<<nbits - 1
	if nbits == 64 {
		mask = ^uint64(0)
	}

	b.v[word] = (b.v[word] &^ (mask << off)) | (val << off)
	if off+uint64(nbits) > 64 {
		rem := uint(off+uint64(nbits)) - 64
		hiMask := uint64(1)<<rem - 1
		b.v[word+1] = (b.v[word+1] &^ hiMask) | (val >> (64 - off))
	}
}

// MarshalBinary writes the bit vector as a little-endian word count
// followed by the words in native byte order.
func (b *BitVec) MarshalBinary(w io.Writer) (int, error) {
	var x [8]byte

	binary.LittleEndian.PutUint64(x[:], b.Words())

	n, err := writeAll(w, x[:])
	if err != nil {
		return 0, err
	}
	m, err := writeAll(w, u64sToByteSlice(b.v))
	return n + m, err
}

// unmarshalBitVec reconstructs a BitVec previously written with
// MarshalBinary. 'buf' is assumed to be memory mapped or otherwise
// directly addressable; the returned byte count is how much of 'buf' was
// consumed.
func unmarshalBitVec(buf []byte) (*BitVec, uint64, error) {
	if len(buf) < 8 {
		return nil, 0, ErrTooSmall
	}
	words := binary.LittleEndian.Uint64(buf[:8])
	if words > (1 << 40) {
		return nil, 0, fmt.Errorf("bitvec: length %d is invalid", words)
	}
	if uint64(len(buf)-8) < words*8 {
		return nil, 0, ErrTooSmall
	}

	v := bsToUint64Slice(buf[8:])
	b := &BitVec{v: v[:words]}
	return b, 8 + words*8, nil
}

// LongBigList is a fixed-width-field view over a BitVec: element 'i'
// occupies the bit range [i*width, i*width+width). It is the "w bits per
// variable" packed representation used by value-carrying static
// functions and, at width 2, by the MPHF system.
type LongBigList struct {
	bv    *BitVec
	width uint
}

// NewLongBigList allocates a list of 'n' fixed-width fields of 'width'
// bits each (1 <= width <= 64).
func NewLongBigList(n uint64, width uint) *LongBigList {
	return &LongBigList{
		bv:    NewBitVec(n * uint64(width)),
		width: width,
	}
}

// Width returns the field width in bits.
func (l *LongBigList) Width() uint { return l.width }

// Len returns the number of fields the backing storage can hold.
func (l *LongBigList) Len() uint64 {
	if l.width == 0 {
		return 0
	}
	return l.bv.Size() / uint64(l.width)
}

// Get returns the value of field 'i'.
func (l *LongBigList) Get(i uint64) uint64 {
	return l.bv.GetBits(i*uint64(l.width), l.width)
}

// Set stores 'val' (truncated to 'width' bits) into field 'i'.
func (l *LongBigList) Set(i uint64, val uint64) {
	l.bv.SetBits(i*uint64(l.width), l.width, val)
}

// Bits returns the backing BitVec, e.g. for marshaling or for rank
// structures that need raw word access.
func (l *LongBigList) Bits() *BitVec { return l.bv }

func popcount(x uint64) uint64 {
	return uint64(bits.OnesCount64(x))
}

// growableBits is an append-only BitVec used by ConstructionPipeline's
// single consumer goroutine ("Packed variable vector: only appended
// by the consumer thread; no external reader during build"), since a
// bucket's final bit width isn't known as a single up-front total until
// every bucket has been sized.
type growableBits struct {
	bv    *BitVec
	nbits uint64
}

func newGrowableBits() *growableBits {
	return &growableBits{bv: NewBitVec(1024)}
}

// Append copies the low 'n' bits of each word in 'src' (src holds
// exactly n bits, padded to a word boundary) onto the end, returning the
// bit offset the copy started at.
func (g *growableBits) Append(src *BitVec, n uint64) uint64 {
	start := g.nbits
	g.ensure(start + n)

	var i uint64
	for ; i+64 <= n; i += 64 {
		g.bv.SetBits(start+i, 64, src.GetBits(i, 64))
	}
	if rem := n - i; rem > 0 {
		g.bv.SetBits(start+i, uint(rem), src.GetBits(i, uint(rem)))
	}
	g.nbits = start + n
	return start
}

func (g *growableBits) ensure(nbits uint64) {
	if nbits <= g.bv.Size() {
		return
	}
	newSize := g.bv.Size() * 2
	for newSize < nbits {
		newSize *= 2
	}
	nv := NewBitVec(newSize)
	copy(nv.v, g.bv.v)
	g.bv = nv
}

// Bits returns the underlying BitVec, valid for exactly g.nbits bits.
func (g *growableBits) Bits() *BitVec { return g.bv }

// Len is the number of bits actually appended so far.
func (g *growableBits) Len() uint64 { return g.nbits }
