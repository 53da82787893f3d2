// huffman.go -- canonical Huffman codes, built from an observed frequency
// table, for FunctionArtifact's compressed-function variant.
//
// Construction is the textbook two-pass algorithm: build a Huffman tree
// with a min-heap to get codeword lengths, then canonicalize (sort by
// length then symbol, assign codewords in that order) so the decoder
// needs only per-length (first-codeword, symbol-base) pairs rather than a
// full trie. LengthLimitedHuffman runs a package-merge-free approximation
// of Huffman's algorithm on a flattened frequency table to cap codeword
// length, trading a small amount of redundancy for a guaranteed bound.
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

import (
	"container/heap"
	"sort"
)

// HuffmanCodec is a canonical Huffman code over a fixed, known set of
// values. Values outside that set still encode correctly: they go out as
// an escape codeword (given the smallest observed frequency, so it is
// among the longest codewords in the table) followed by the value in a
// fixed-width raw field.
type HuffmanCodec struct {
	lengths  map[uint64]uint // value -> codeword length
	codes    map[uint64]uint64
	escape   uint64 // reserved value used as the escape codeword
	rawWidth uint   // width of the raw field following an escape
	escLen   uint   // codeword length of the escape symbol alone
	tableLen uint   // longest canonical codeword length in firstCode/base/count
	maxLen   uint   // longest codeword, counting an escape as escLen+rawWidth

	firstCode []uint64 // per length, first canonical codeword
	base      []int    // per length, index into symOrder of its first symbol
	count     []int    // per length, number of symbols with that length
	symOrder  []uint64 // symbols in canonical (length, value) order
}

type huffNode struct {
	freq        uint64
	value       uint64
	isLeaf      bool
	left, right *huffNode
}

type huffHeap []*huffNode

func (h huffHeap) Len() int { return len(h) }
func (h huffHeap) Less(i, j int) bool {
	if h[i].freq != h[j].freq {
		return h[i].freq < h[j].freq
	}
	// break ties deterministically so repeated builds over the same
	// frequency table always produce the same tree.
	return h[i].minValue() < h[j].minValue()
}
func (h huffHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *huffHeap) Push(x interface{}) { *h = append(*h, x.(*huffNode)) }
func (h *huffHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (n *huffNode) minValue() uint64 {
	if n.isLeaf {
		return n.value
	}
	l, r := n.left.minValue(), n.right.minValue()
	if l < r {
		return l
	}
	return r
}

// NewHuffmanCodec builds a canonical Huffman codec from observed value
// frequencies. rawWidth is the bit width used to escape-encode any value
// not present in freq (it must be wide enough for every value the caller
// will ever actually encode). An empty freq table is an error.
func NewHuffmanCodec(freq map[uint64]uint64, rawWidth uint) (*HuffmanCodec, error) {
	return newHuffmanCodec(freq, rawWidth, 0)
}

// NewLengthLimitedHuffmanCodec is NewHuffmanCodec with an upper bound on
// codeword length: after the ordinary Huffman lengths are computed, any
// length exceeding 'limit' is clamped and clampLengths restores Kraft's
// inequality by lengthening the longest codewords still below the limit.
// limit must be at least ceil(log2(len(freq)+1)) (+1 for the escape
// symbol) or construction fails with ErrValueTooLarge.
func NewLengthLimitedHuffmanCodec(freq map[uint64]uint64, rawWidth uint, limit uint) (*HuffmanCodec, error) {
	if limit == 0 || (limit < 64 && uint64(len(freq))+1 > uint64(1)<<limit) {
		return nil, ErrValueTooLarge
	}
	return newHuffmanCodec(freq, rawWidth, limit)
}

func newHuffmanCodec(freq map[uint64]uint64, rawWidth uint, limit uint) (*HuffmanCodec, error) {
	if len(freq) == 0 {
		return nil, ErrEmptyFrequencies
	}

	lengths := huffmanLengths(freq)

	if limit > 0 {
		lengths = clampLengths(lengths, limit)
	}

	// the escape symbol is a synthetic value guaranteed not to collide
	// with a real one: one past the largest observed value.
	var escape uint64
	for v := range freq {
		if v+1 > escape {
			escape = v + 1
		}
	}
	// give the escape symbol the smallest observed frequency, so it
	// lands among the longest codewords (it should be rare).
	minFreq := ^uint64(0)
	for _, f := range freq {
		if f < minFreq {
			minFreq = f
		}
	}
	if minFreq == 0 {
		minFreq = 1
	}
	escFreq := map[uint64]uint64{escape: minFreq}
	escLengths := huffmanLengths(mergeFreq(freq, escFreq))
	if limit > 0 {
		escLengths = clampLengths(escLengths, limit)
	}

	c := &HuffmanCodec{
		lengths:  escLengths,
		escape:   escape,
		rawWidth: rawWidth,
		codes:    make(map[uint64]uint64, len(escLengths)),
	}
	c.canonicalize()
	return c, nil
}

func mergeFreq(a, b map[uint64]uint64) map[uint64]uint64 {
	out := make(map[uint64]uint64, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] += v
	}
	return out
}

// huffmanLengths runs the standard min-heap Huffman algorithm and returns
// each value's codeword length (not yet canonicalized into codewords).
func huffmanLengths(freq map[uint64]uint64) map[uint64]uint {
	if len(freq) == 1 {
		lengths := make(map[uint64]uint, 1)
		for v := range freq {
			lengths[v] = 1
		}
		return lengths
	}

	h := make(huffHeap, 0, len(freq))
	for v, f := range freq {
		h = append(h, &huffNode{freq: f, value: v, isLeaf: true})
	}
	heap.Init(&h)

	for h.Len() > 1 {
		a := heap.Pop(&h).(*huffNode)
		b := heap.Pop(&h).(*huffNode)
		parent := &huffNode{freq: a.freq + b.freq, left: a, right: b}
		heap.Push(&h, parent)
	}

	lengths := make(map[uint64]uint, len(freq))
	var walk func(n *huffNode, depth uint)
	walk = func(n *huffNode, depth uint) {
		if n.isLeaf {
			if depth == 0 {
				depth = 1
			}
			lengths[n.value] = depth
			return
		}
		walk(n.left, depth+1)
		walk(n.right, depth+1)
	}
	walk(h[0], 0)
	return lengths
}

// clampLengths enforces a maximum codeword length by repeatedly
// shrinking the Kraft sum: any length above 'limit' is pulled down to
// 'limit', then the resulting (now over-full) code space is rebalanced
// by lengthening the longest codewords still below 'limit', using the
// classic "overflow" procedure from length-limited Huffman coding.
func clampLengths(lengths map[uint64]uint, limit uint) map[uint64]uint {
	type entry struct {
		value uint64
		len   uint
	}
	entries := make([]entry, 0, len(lengths))
	for v, l := range lengths {
		if l > limit {
			l = limit
		}
		entries = append(entries, entry{v, l})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].len != entries[j].len {
			return entries[i].len < entries[j].len
		}
		return entries[i].value < entries[j].value
	})

	// Kraft sum in units of 1/2^limit.
	unit := func(l uint) uint64 { return uint64(1) << (limit - l) }
	var sum uint64
	for _, e := range entries {
		sum += unit(e.len)
	}
	full := uint64(1) << limit

	// while over budget, lengthen the codeword at the tail (longest,
	// i.e. cheapest to lengthen further) until we fit.
	i := len(entries) - 1
	for sum > full && i >= 0 {
		if entries[i].len < limit {
			sum -= unit(entries[i].len)
			entries[i].len++
			sum += unit(entries[i].len)
		} else {
			i--
		}
		if i < 0 {
			i = len(entries) - 1
		}
	}

	out := make(map[uint64]uint, len(entries))
	for _, e := range entries {
		out[e.value] = e.len
	}
	return out
}

// canonicalize assigns canonical codewords given each symbol's length:
// sort by (length, value), then walk assigning code 0 to the first
// symbol and, at each step, code = (prev_code + 1) << (len_delta).
func (c *HuffmanCodec) canonicalize() {
	type entry struct {
		value uint64
		len   uint
	}
	entries := make([]entry, 0, len(c.lengths))
	maxLen := uint(0)
	for v, l := range c.lengths {
		entries = append(entries, entry{v, l})
		if l > maxLen {
			maxLen = l
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].len != entries[j].len {
			return entries[i].len < entries[j].len
		}
		return entries[i].value < entries[j].value
	})

	c.tableLen = maxLen
	c.maxLen = maxLen
	c.escLen = c.lengths[c.escape]
	if total := c.escLen + c.rawWidth; total > c.maxLen {
		c.maxLen = total
	}
	c.firstCode = make([]uint64, maxLen+1)
	c.base = make([]int, maxLen+1)
	c.count = make([]int, maxLen+1)
	c.symOrder = make([]uint64, len(entries))

	for _, e := range entries {
		c.count[e.len]++
	}

	var code uint64
	prevLen := uint(0)
	for i, e := range entries {
		code <<= (e.len - prevLen)
		if prevLen == 0 {
			code = 0
		}
		c.codes[e.value] = code
		c.symOrder[i] = e.value
		if prevLen != e.len {
			c.firstCode[e.len] = code
			c.base[e.len] = i
		}
		prevLen = e.len
		code++
	}
}

// huffmanFromLengths rebuilds a HuffmanCodec from an explicit (already
// decided) length table, skipping frequency analysis entirely. Used to
// reconstruct a persisted codec from a marshaled artifact, where only the
// final lengths (not the training frequencies) are stored.
func huffmanFromLengths(lengths map[uint64]uint, escape uint64, rawWidth uint) *HuffmanCodec {
	c := &HuffmanCodec{
		lengths:  lengths,
		escape:   escape,
		rawWidth: rawWidth,
		codes:    make(map[uint64]uint64, len(lengths)),
	}
	c.canonicalize()
	return c
}

func (c *HuffmanCodec) CodewordLength(v uint64) uint {
	if l, ok := c.lengths[v]; ok {
		return l
	}
	return c.escLen + c.rawWidth
}

func (c *HuffmanCodec) Encode(v uint64) uint64 {
	if code, ok := c.codes[v]; ok {
		return code
	}
	escCode := c.codes[c.escape]
	return (escCode << c.rawWidth) | (v & widthMask(c.rawWidth))
}

func (c *HuffmanCodec) MaxCodewordLength() uint {
	return c.maxLen
}

func (c *HuffmanCodec) NewDecoder() Decoder {
	return &huffmanDecoder{c}
}

type huffmanDecoder struct {
	c *HuffmanCodec
}

func (d *huffmanDecoder) Decode(window uint64) (uint64, uint) {
	c := d.c
	var code uint64
	for l := uint(1); l <= c.tableLen; l++ {
		code = (code << 1) | ((window >> (64 - l)) & 1)
		if c.count[l] == 0 {
			continue
		}
		if code >= c.firstCode[l] && code-c.firstCode[l] < uint64(c.count[l]) {
			idx := c.base[l] + int(code-c.firstCode[l])
			v := c.symOrder[idx]
			if v == c.escape {
				raw := (window << l) >> (64 - c.rawWidth)
				return raw, l + c.rawWidth
			}
			return v, l
		}
	}
	// unreachable for a well-formed code and a window sourced from a
	// genuine codeword; fall back to treating it as an escape.
	raw := window >> (64 - c.rawWidth)
	return raw, c.escLen + c.rawWidth
}
