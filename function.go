// function.go -- static functions and compressed functions
//
// Grounded on this package's predecessor's BBHash/CHD artifact split
// (bbhash.go/bbhash_marshal.go): a plain, uncompressed construction and a
// value-carrying one share almost everything, differing only in how a
// key's payload is turned into bits, exactly as CHDHash and BBHash shared
// a DBWriter/DBReader persistence layer. Here the split is
// folded into one type (FunctionArtifact) parameterized by a Codec: a
// plain static function is simply one built with a BinaryCodec, which
// keeps the bucket solver (buildBucketSolver) a single implementation
// instead of two near-duplicates.
//
// The r=4 F2 bit-plane construction below stores each bucket's variable
// space in fixed-size w_max-bit CHUNKS rather than packing codewords into
// an overlapping bitstream (the literal reading of "XOR of the w_max-bit
// words data[e_i..e_i+w_max) across the r edges" in the design document).
// That literal form lets codewords of different keys share bits, at the
// cost of a solver that must track per-bit-plane variable shifts; this
// implementation instead gives every key's r hyperedge positions their
// own w_max-bit chunk, reusing ONE peeling pass across all w_max bit
// planes (same hyperedge topology every plane, only the known term bit
// changes) and paying a few percent of extra space for a much simpler,
// still-correct construction. See DESIGN.md.
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
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/opencoff/go-mmap"
)

// densityNumer/densityDenom is delta (approx 1.03),
// expressed as an exact rational so bucket-width arithmetic never
// depends on floating point rounding across platforms.
const densityNumer = 103
const densityDenom = 100

func ceilDiv(n, numer, denom uint64) uint64 {
	if n == 0 {
		return 0
	}
	return (n*numer + denom - 1) / denom
}

// FunctionArtifact is a built, immutable static function (or, when Codec
// is non-nil and non-trivial, a compressed function): Get maps every key
// in the original key set to its associated value, and is unspecified
// but safe for any other input.
type FunctionArtifact struct {
	seed        uint64
	bucketLg    uint
	bucketState []uint64 // len = nbuckets+1; entry i is packBucketState(bucket i's seed, its starting bit offset)
	bits        *BitVec
	codec       Codec
	wmax        uint

	// non-nil only when this artifact was loaded via Open(); Close()
	// unmaps and closes the backing file, mirroring DBReader.Close in
	// dbreader.go.
	mm *mmap.Mapping
	fd *os.File
}

// r is fixed at 4 for the static/compressed function variant.
const functionR = 4

// Build constructs a plain (fixed-width) static function mapping each key
// to its parallel value. Values are stored at the minimal width that can
// hold every observed value.
func Build(keys [][]byte, values []uint64, opts Options) (*FunctionArtifact, error) {
	width := minWidthFor(values)
	return buildFunction(keys, values, BinaryCodec{Width: width}, opts)
}

// BuildCompressed constructs a compressed function: a canonical
// Huffman codec is trained on the observed value distribution (or the
// caller may pass one in opts.Codec to skip training), then every key's
// codeword is solved bit-plane by bit-plane exactly like the plain case.
func BuildCompressed(keys [][]byte, values []uint64, opts Options) (*FunctionArtifact, error) {
	codec := opts.Codec
	if codec == nil {
		freq := make(map[uint64]uint64, len(values))
		for _, v := range values {
			freq[v]++
		}
		width := minWidthFor(values)
		hc, err := NewLengthLimitedHuffmanCodec(freq, width, 2*width+8)
		if err != nil {
			return nil, err
		}
		codec = hc
	}
	return buildFunction(keys, values, codec, opts)
}

func minWidthFor(values []uint64) uint {
	var max uint64
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	w := uint(0)
	for (uint64(1) << w) <= max {
		w++
	}
	if w == 0 {
		w = 1
	}
	return w
}

// BuildIndirect constructs a static function the same way Build does,
// except each key's value is recorded in the store as a uint64 index
// (via Store.AddAllIndirect) and resolved back to raw bytes through vs
// at solve time rather than carried directly in memory. A shared ARC
// cache in front of vs absorbs the repeated resolutions of the same
// index across a bucket's local-seed retries.
func BuildIndirect(keys [][]byte, indices []uint64, vs ValueStore, opts Options) (*FunctionArtifact, error) {
	if len(keys) == 0 {
		return nil, newBuildError(KindInvalidInput, -1, ErrEmptyKeySet)
	}
	if len(indices) != len(keys) {
		return nil, newBuildError(KindInvalidInput, -1, ErrMismatchedValues)
	}

	cached, err := newCachedValueStore(vs, opts.threads()*256)
	if err != nil {
		return nil, err
	}

	codec := opts.Codec
	if codec == nil {
		width, err := indirectMinWidth(indices, cached)
		if err != nil {
			return nil, err
		}
		codec = BinaryCodec{Width: width}
	}

	store, err := NewStore(opts.tempDir())
	if err != nil {
		return nil, err
	}
	defer store.Close()
	store.BucketSize(opts.bucketTargetSize())

	if err := store.AddAllIndirect(keys, indices); err != nil {
		return nil, err
	}

	solve := indirectBucketSolver(codec, cached)
	bits, bucketState, seed, err := buildWithReseed(store, opts, solve)
	if err != nil {
		return nil, err
	}

	return &FunctionArtifact{
		seed:        seed,
		bucketLg:    store.bucketLg,
		bucketState: bucketState,
		bits:        bits,
		codec:       codec,
		wmax:        codec.MaxCodewordLength(),
	}, nil
}

// indirectMinWidth mirrors minWidthFor for a value set accessed only
// through a ValueStore: BinaryCodec still needs the widest observed
// value up front, so this takes one resolving pass through vs (which,
// via cached, only ever round-trips to the backing store once per
// distinct index).
func indirectMinWidth(indices []uint64, vs ValueStore) (uint, error) {
	var max uint64
	for _, idx := range indices {
		raw, err := vs.Resolve(idx)
		if err != nil {
			return 0, newBuildError(KindIoError, -1, err)
		}
		v := binary.LittleEndian.Uint64(raw)
		if v > max {
			max = v
		}
	}
	w := uint(0)
	for (uint64(1) << w) <= max {
		w++
	}
	if w == 0 {
		w = 1
	}
	return w, nil
}

func buildFunction(keys [][]byte, values []uint64, codec Codec, opts Options) (*FunctionArtifact, error) {
	if len(keys) == 0 {
		return nil, newBuildError(KindInvalidInput, -1, ErrEmptyKeySet)
	}
	if len(values) != len(keys) {
		return nil, newBuildError(KindInvalidInput, -1, ErrMismatchedValues)
	}

	store, err := NewStore(opts.tempDir())
	if err != nil {
		return nil, err
	}
	defer store.Close()
	store.BucketSize(opts.bucketTargetSize())

	rawValues := make([][]byte, len(values))
	for i, v := range values {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		rawValues[i] = b[:]
	}
	if err := store.AddAllValues(keys, rawValues); err != nil {
		return nil, err
	}

	solve := buildBucketSolver(codec)
	bits, bucketState, seed, err := buildWithReseed(store, opts, solve)
	if err != nil {
		return nil, err
	}

	return &FunctionArtifact{
		seed:        seed,
		bucketLg:    store.bucketLg,
		bucketState: bucketState,
		bits:        bits,
		codec:       codec,
		wmax:        codec.MaxCodewordLength(),
	}, nil
}

// buildBucketSolver closes over a codec to produce a bucketSolveFn usable
// by runPipeline/buildWithReseed: peel once, then solve one GF(2) plane
// per codeword bit, reusing the peeling topology across all planes.
func buildBucketSolver(codec Codec) bucketSolveFn {
	return valueResolvingBucketSolver(codec, func(b *Bucket, i int) (uint64, error) {
		return binary.LittleEndian.Uint64(b.Values[i]), nil
	})
}

// indirectBucketSolver is buildBucketSolver's counterpart for
// BuildIndirect: each bucket carries value-store indices (Bucket.Indices)
// instead of raw bytes, resolved through vs.
func indirectBucketSolver(codec Codec, vs ValueStore) bucketSolveFn {
	return valueResolvingBucketSolver(codec, func(b *Bucket, i int) (uint64, error) {
		raw, err := vs.Resolve(b.Indices[i])
		if err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(raw), nil
	})
}

// valueResolvingBucketSolver is the common bit-plane solver shared by the
// direct-value and indirect-value build paths; only how a bucket's i'th
// value is obtained differs between them.
func valueResolvingBucketSolver(codec Codec, valueAt func(b *Bucket, i int) (uint64, error)) bucketSolveFn {
	wmax := codec.MaxCodewordLength()
	return func(b *Bucket, localSeed uint32) (*BitVec, uint64, error) {
		k := len(b.Triples)
		if k == 0 {
			return NewBitVec(0), 0, nil
		}

		vals := make([]uint64, k)
		lens := make([]uint, k)
		var total uint64
		for i := range b.Triples {
			v, err := valueAt(b, i)
			if err != nil {
				return nil, 0, newBuildError(KindIoError, b.Index, err)
			}
			vals[i] = v
			l := codec.CodewordLength(v)
			lens[i] = l
			total += uint64(l)
		}

		nchunks := ceilDiv(total, densityNumer, densityDenom) + 1
		if nchunks < uint64(k) {
			nchunks = uint64(k) + 1
		}

		p := NewPeeler(b.Triples, localSeed, functionR, int(nchunks))
		stack, residual := p.Peel()

		planes := make([][]uint64, wmax)
		for j := uint(0); j < wmax; j++ {
			sol := make([]uint64, nchunks)
			var planeEdges []int
			for _, e := range residual {
				if j >= wmax-lens[e] {
					planeEdges = append(planeEdges, e)
				}
			}
			bit := j
			termFn := func(e int) uint8 {
				// codewords sit left-justified in the wmax-bit chunk, so
				// Get's decoder finds the first codeword bit at the top.
				shift := wmax - lens[e]
				if bit < shift {
					return 0
				}
				return uint8((codec.Encode(vals[e]) >> (bit - shift)) & 1)
			}
			if err := SolveF2Plane(p, planeEdges, termFn, sol); err != nil {
				return nil, 0, err
			}
			p.BackSubstituteF2(stack, termFn, sol)
			planes[j] = sol
		}

		out := NewBitVec(nchunks * uint64(wmax))
		for c := uint64(0); c < nchunks; c++ {
			var word uint64
			for j := uint(0); j < wmax; j++ {
				if planes[j][c] != 0 {
					word |= uint64(1) << j
				}
			}
			out.SetBits(c*uint64(wmax), wmax, word)
		}
		return out, nchunks * uint64(wmax), nil
	}
}

// Get returns the value associated with key, and true. Behavior for a key
// outside the original build set is unspecified but safe (no panic, no
// out-of-bounds access): it returns some value and true, or false if the
// computed bucket/offset lands outside the artifact.
func (f *FunctionArtifact) Get(key []byte) (uint64, bool) {
	t := HashKey(key, f.seed)
	nbuckets := len(f.bucketState) - 1
	if nbuckets <= 0 {
		return 0, false
	}
	bucketIdx := t[0] >> (64 - f.bucketLg)
	if bucketIdx >= uint64(nbuckets) {
		return 0, false
	}

	state := f.bucketState[bucketIdx]
	localSeed := unpackSeed(state)
	startChunk := unpackOffset(state) / uint64(f.wmax)
	endOffset := unpackOffset(f.bucketState[bucketIdx+1])
	nchunks := (endOffset / uint64(f.wmax)) - startChunk
	if nchunks == 0 {
		return 0, false
	}

	words := Rehash(t, localSeed, functionR)
	var xorWord uint64
	for _, w := range words {
		pos := startChunk + reduceRange(w, nchunks)
		bitOff := pos * uint64(f.wmax)
		if bitOff+uint64(f.wmax) > f.bits.Size() {
			return 0, false
		}
		xorWord ^= f.bits.GetBits(bitOff, f.wmax)
	}
	window := xorWord << (64 - f.wmax)
	v, _ := f.codec.NewDecoder().Decode(window)
	return v, true
}

// NumBits returns the packed variable vector's size in bits, not
// counting the bucket_state table or codec metadata.
func (f *FunctionArtifact) NumBits() uint64 { return f.bits.Size() }

// Size is the artifact's approximate total footprint in bytes.
func (f *FunctionArtifact) Size() uint64 {
	return f.bits.Size()/8 + uint64(len(f.bucketState))*8 + 64
}

// DumpMeta returns a short human-readable summary, in the same
// DumpMeta/Stat style (see bbhash.go), for diagnostics and logging.
func (f *FunctionArtifact) DumpMeta() string {
	return fmt.Sprintf("mph.FunctionArtifact: buckets=%d bits=%d wmax=%d seed=%#x",
		len(f.bucketState)-1, f.bits.Size(), f.wmax, f.seed)
}

// MarshalBinary writes a self-contained artifact: header, bucket_state
// table, codec metadata, then the packed variable vector.
func (f *FunctionArtifact) MarshalBinary(w io.Writer) (int, error) {
	ew := newErrWriter(w)
	var hdr [8 + 1 + 1 + 4]byte
	binary.LittleEndian.PutUint64(hdr[0:8], f.seed)
	hdr[8] = byte(f.bucketLg)
	hdr[9] = byte(f.wmax)
	binary.LittleEndian.PutUint32(hdr[10:14], uint32(len(f.bucketState)))
	ew.Write(hdr[:])

	bsBuf := make([]byte, 8*len(f.bucketState))
	for i, s := range f.bucketState {
		binary.LittleEndian.PutUint64(bsBuf[i*8:], s)
	}
	ew.Write(bsBuf)

	if err := writeCodec(ew, f.codec); err != nil {
		return 0, err
	}
	if err := ew.Error(); err != nil {
		return 0, err
	}

	n, err := f.bits.MarshalBinary(ew)
	if err != nil {
		return 0, err
	}
	if err := ew.Error(); err != nil {
		return 0, err
	}
	return len(hdr) + len(bsBuf) + n, nil
}

// DeserializeFunction reconstructs a FunctionArtifact from a buffer
// produced by MarshalBinary (e.g. a memory-mapped file's contents).
func DeserializeFunction(buf []byte) (*FunctionArtifact, error) {
	if len(buf) < 14 {
		return nil, ErrTooSmall
	}
	f := &FunctionArtifact{}
	f.seed = binary.LittleEndian.Uint64(buf[0:8])
	f.bucketLg = uint(buf[8])
	f.wmax = uint(buf[9])
	nstate := int(binary.LittleEndian.Uint32(buf[10:14]))
	off := 14

	if len(buf[off:]) < nstate*8 {
		return nil, ErrTooSmall
	}
	f.bucketState = make([]uint64, nstate)
	for i := 0; i < nstate; i++ {
		f.bucketState[i] = binary.LittleEndian.Uint64(buf[off+i*8:])
	}
	off += nstate * 8

	codec, n, err := readCodec(buf[off:])
	if err != nil {
		return nil, err
	}
	f.codec = codec
	off += n

	bits, _, err := unmarshalBitVec(buf[off:])
	if err != nil {
		return nil, err
	}
	f.bits = bits
	return f, nil
}

// Save writes the artifact to a new file at fn, truncating any existing
// content, in the format DeserializeFunction/OpenFunction expect.
func (f *FunctionArtifact) Save(fn string) error {
	fd, err := os.OpenFile(fn, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer fd.Close()
	_, err = f.MarshalBinary(fd)
	return err
}

// OpenFunction memory-maps a previously Save()'d artifact file, following
// the NewDBReader pattern (mmap.New(fd).Map(...), then
// reinterpret the mapped bytes without copying). The returned artifact's
// Close method unmaps the file.
func OpenFunction(fn string) (*FunctionArtifact, error) {
	fd, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	st, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, err
	}

	mm := mmap.New(fd)
	mapping, err := mm.Map(st.Size(), 0, mmap.PROT_READ, mmap.F_READAHEAD)
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("mph: can't mmap %s: %w", fn, err)
	}

	f, err := DeserializeFunction(mapping.Bytes())
	if err != nil {
		mapping.Unmap()
		fd.Close()
		return nil, err
	}
	f.mm = mapping
	f.fd = fd
	return f, nil
}

// Close unmaps and closes the backing file if this artifact was loaded
// via OpenFunction; it is a no-op for an artifact built in-process.
func (f *FunctionArtifact) Close() error {
	if f.mm != nil {
		f.mm.Unmap()
		f.mm = nil
	}
	if f.fd != nil {
		err := f.fd.Close()
		f.fd = nil
		return err
	}
	return nil
}
