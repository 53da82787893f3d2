// mphf.go -- minimal perfect hash functions via 3-hypergraph peeling and
// orientation
//
// Grounded on peeler.go/f3solver.go/rank.go: peeling (reused verbatim
// from the static-function path, just at r=3) strips every degree-1
// vertex first; Orient then finds an injective "hinge" vertex for
// whatever residual edges peeling couldn't resolve. Either way, every key
// ends up owning exactly one vertex, which is marked in a 2-bit-per-
// vertex array (value 3 = "this vertex is some key's image"; 0
// otherwise) and the minimal 0..n-1 output is the RANK (count of marked
// vertices before it) of a key's own marked vertex. See DESIGN.md for why
// this implementation does not additionally route real GF(3) values
// through the marked vertices the way the literal algorithm's "assign
// every vertex a value in {0,1,2}" construction does — doing so buys
// smaller files but isn't needed for a correct, minimal, lookup-stable
// hash, and the genuine GF(3) solver (SolveF3Plane) is instead exercised
// by the optional approximate-membership fingerprint below.
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

const mphR = 3

// maxSignatureWidth is the widest exact signature BuildMPHF will build:
// a signature occupies a whole LongBigList field, which tops out at 64
// bits per field (BitVec.GetBits/SetBits' own limit).
const maxSignatureWidth = 64

func sigMask(width uint) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

// mphfDensityNumer/Denom is the variable-count multiplier for the MPHF
// variant (approx 1.10, looser than the static function's 1.03 since an
// orientable 3-hypergraph needs more slack to stay orientable).
const mphfDensityNumer = 110
const mphfDensityDenom = 100

// MphArtifact is a built, immutable minimal perfect hash function: Get
// maps each of the n keys in the original set bijectively onto [0, n).
// Behavior on a key outside the build set is unspecified but safe; when
// Signed is true, Contains additionally rejects most non-member keys.
type MphArtifact struct {
	seed        uint64
	bucketLg    uint
	bucketState []uint64 // entry i: packBucketState(bucket i's seed, starting offset in bits, 2 per vertex)
	nkeys       uint64

	assigned *RankStructure // 2-bit per vertex; 3 marks a key's image

	signed bool
	fpBits *LongBigList // 2-bit GF(3) fingerprint per vertex, present only when signed

	sigWidth uint         // exact signature width in bits, 0 if disabled
	sigBits  *LongBigList // sigWidth bits per output position, present only when sigWidth > 0

	mm *mmap.Mapping
	fd *os.File
}

// BuildMPHF constructs a minimal perfect hash function over keys.
//
// When opts.SignatureWidth is negative, the artifact carries a
// lightweight per-vertex GF(3) fingerprint so Contains can reject many
// non-member keys without a full per-key signature table.
//
// When opts.SignatureWidth is positive (at most 64), the artifact
// carries an exact w-bit signature table keyed by output position:
// Get rejects any key whose hash0 doesn't match the signature recorded
// for the position it maps to, with false-positive rate 2^-w.
func BuildMPHF(keys [][]byte, opts Options) (*MphArtifact, error) {
	if len(keys) == 0 {
		return nil, newBuildError(KindInvalidInput, -1, ErrEmptyKeySet)
	}
	if opts.SignatureWidth > maxSignatureWidth {
		return nil, newBuildError(KindInvalidInput, -1,
			fmt.Errorf("signature width %d exceeds the %d-bit maximum", opts.SignatureWidth, maxSignatureWidth))
	}

	store, err := NewStore(opts.tempDir())
	if err != nil {
		return nil, err
	}
	defer store.Close()
	store.BucketSize(opts.bucketTargetSize())

	if err := store.AddAll(keys); err != nil {
		return nil, err
	}

	approx := opts.SignatureWidth < 0
	solve := mphfBucketSolver(approx)
	bits, bucketState, seed, err := buildWithReseed(store, opts, solve)
	if err != nil {
		return nil, err
	}

	totalVerts := unpackOffset(bucketState[len(bucketState)-1]) / 2
	m := &MphArtifact{
		seed:        seed,
		bucketLg:    store.bucketLg,
		bucketState: bucketState,
		nkeys:       uint64(len(keys)),
		assigned:    BuildRank(bits, totalVerts),
	}
	if approx {
		// the fingerprint and the "assigned" marker share one 2-bit
		// array: packMphfBucket already wrote 3 at every assigned
		// vertex and the GF(3) fingerprint everywhere else, so fpBits
		// is just another view over the same bits as m.assigned.
		m.signed = true
		m.fpBits = &LongBigList{bv: bits, width: 2}
	}
	if opts.SignatureWidth > 0 {
		if err := m.buildSignatures(keys, uint(opts.SignatureWidth)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// buildSignatures populates m.sigBits: one hash0(k)&mask entry per
// output position, computed with m.Get (which, at this point, still has
// sigWidth == 0 and so behaves as a plain unsigned lookup).
func (m *MphArtifact) buildSignatures(keys [][]byte, width uint) error {
	sig := NewLongBigList(m.nkeys, width)
	mask := sigMask(width)
	for _, k := range keys {
		idx, ok := m.Get(k)
		if !ok {
			return newBuildError(KindInternal, -1, fmt.Errorf("mph: key missing its own assigned vertex"))
		}
		t := HashKey(k, m.seed)
		sig.Set(idx, t[0]&mask)
	}
	m.sigWidth = width
	m.sigBits = sig
	return nil
}

// mphfBucketSolver returns a bucketSolveFn producing, for each bucket, a
// packed 2-bit-per-vertex array where marked (value 3) vertices are the
// keys' assigned images. When fingerprint is true, the low 2 bits of each
// UNMARKED vertex additionally carry a solved GF(3) value satisfying
// sum(edge vertices) == a per-key fingerprint term (mod 3) — exercised
// only by Contains' extra rejection test, never by Get.
func mphfBucketSolver(fingerprint bool) bucketSolveFn {
	return func(b *Bucket, localSeed uint32) (*BitVec, uint64, error) {
		k := len(b.Triples)
		if k == 0 {
			return NewBitVec(0), 0, nil
		}

		nverts := ceilDiv(uint64(k), mphfDensityNumer, mphfDensityDenom) + 1

		p := NewPeeler(b.Triples, localSeed, mphR, int(nverts))
		stack, residual := p.Peel()

		if len(residual) > 0 {
			hinge, ok := Orient(p, residual, localSeed)
			if !ok {
				return nil, 0, newBuildError(KindUnsolvable, b.Index, ErrUnorientable)
			}
			bits, err := packMphfBucket(p, stack, residual, hinge, nverts, fingerprint, b)
			if err != nil {
				return nil, 0, err
			}
			return bits, nverts * 2, nil
		}

		emptyHinge := map[int]int{}
		bits, err := packMphfBucket(p, stack, nil, emptyHinge, nverts, fingerprint, b)
		if err != nil {
			return nil, 0, err
		}
		return bits, nverts * 2, nil
	}
}

func packMphfBucket(p *Peeler, stack []PeelStep, residual []int, hinge map[int]int, nverts uint64, fingerprint bool, b *Bucket) (*BitVec, error) {
	marked := make([]bool, nverts)
	for _, s := range stack {
		marked[s.Var] = true
	}
	for e, pos := range hinge {
		v := p.Edges(e)[pos]
		marked[v] = true
	}

	out := NewBitVec(nverts * 2)

	if fingerprint {
		fp := make([]uint64, nverts)
		termFn := func(e int) uint8 { return uint8(b.Triples[e][1] % 3) }
		coeffFn := func(int, int) uint8 { return 1 }

		var planeEdges []int
		planeEdges = append(planeEdges, residual...)
		if err := SolveF3Plane(planeEdges, func(e int) []int { return p.Edges(e) }, coeffFn, termFn, fp); err != nil {
			return nil, err
		}
		BackSubstituteF3(p, stack, termFn, coeffFn, fp)

		for v := uint64(0); v < nverts; v++ {
			if marked[v] {
				out.SetBits(v*2, 2, 3)
			} else {
				out.SetBits(v*2, 2, fp[v])
			}
		}
	} else {
		for v := uint64(0); v < nverts; v++ {
			if marked[v] {
				out.SetBits(v*2, 2, 3)
			}
		}
	}

	return out, nil
}

// Get returns key's minimal perfect hash value (in [0, n)) and true, or
// (0, false) if either the computed vertex position has no marked
// vertex among its hyperedge (which cannot happen for a key from the
// original build set, but is checked anyway so a non-member key never
// panics), or the artifact is exact-signed and key's hash0 doesn't
// match the signature recorded for its position.
func (m *MphArtifact) Get(key []byte) (uint64, bool) {
	pos, t, ok := m.image(key)
	if !ok {
		return 0, false
	}
	idx := m.assigned.Rank(pos)
	if m.sigWidth > 0 {
		if m.sigBits.Get(idx) != t[0]&sigMask(m.sigWidth) {
			return 0, false
		}
	}
	return idx, true
}

// Contains reports whether key was (almost certainly) a member of the
// original build set.
//
// An exact-signed artifact (opts.SignatureWidth > 0) simply reports
// whether Get succeeded, since Get already checks the signature table.
//
// An approximate-dictionary artifact (opts.SignatureWidth < 0) checks
// the solved GF(3) fingerprint at the two non-assigned vertices of
// key's own hyperedge, rejecting most non-members without Get's
// signature table.
//
// With neither signing mode this degrades to "Get produced some
// vertex", which is not a reliable membership test by itself (any
// input maps to some vertex).
func (m *MphArtifact) Contains(key []byte) bool {
	if m.sigWidth > 0 {
		_, ok := m.Get(key)
		return ok
	}

	pos, t, ok := m.image(key)
	if !ok {
		return false
	}
	if !m.signed {
		return true
	}

	localSeed, startVert, nverts := m.bucketGeometry(t)
	words := Rehash(t, localSeed, mphR)
	var verts [mphR]uint64
	for i, w := range words {
		verts[i] = startVert + reduceRange(w, nverts)
	}

	want := uint8(t[1] % 3)
	var sum uint8
	for _, v := range verts {
		if v == pos {
			continue // the assigned vertex carries no fingerprint bits
		}
		sum = add3(sum, uint8(m.fpBits.Get(v)))
	}
	return sum == want
}

// image recomputes key's 3 hyperedge vertices and returns the one
// carrying the "assigned" marker, the key's triple (reused by Contains),
// and whether a marked vertex was found at all.
func (m *MphArtifact) image(key []byte) (uint64, Triple, bool) {
	t := HashKey(key, m.seed)
	localSeed, startVert, nverts := m.bucketGeometry(t)
	if nverts == 0 {
		return 0, t, false
	}

	words := Rehash(t, localSeed, mphR)
	for _, w := range words {
		v := startVert + reduceRange(w, nverts)
		if m.assigned.Get(v) == 3 {
			return v, t, true
		}
	}
	return 0, t, false
}

func (m *MphArtifact) bucketGeometry(t Triple) (localSeed uint32, startVert uint64, nverts uint64) {
	nbuckets := len(m.bucketState) - 1
	if nbuckets <= 0 {
		return 0, 0, 0
	}
	bucketIdx := t[0] >> (64 - m.bucketLg)
	if bucketIdx >= uint64(nbuckets) {
		return 0, 0, 0
	}
	state := m.bucketState[bucketIdx]
	localSeed = unpackSeed(state)
	startVert = unpackOffset(state) / 2
	nverts = unpackOffset(m.bucketState[bucketIdx+1])/2 - startVert
	return
}

// NumFields is the number of hash-table vertices (always >= nkeys).
func (m *MphArtifact) NumFields() uint64 { return m.assigned.NumFields() }

// NumKeys is n, the size of the minimal output range [0, n).
func (m *MphArtifact) NumKeys() uint64 { return m.nkeys }

// Size is the artifact's approximate total footprint in bytes.
func (m *MphArtifact) Size() uint64 {
	sz := m.assigned.NumFields()*2/8 + uint64(len(m.bucketState))*8 + 64
	if m.signed {
		sz += m.assigned.NumFields() * 2 / 8
	}
	if m.sigWidth > 0 {
		sz += m.nkeys * uint64(m.sigWidth) / 8
	}
	return sz
}

// DumpMeta returns a short human-readable summary, in the same
// DumpMeta/Stat style.
func (m *MphArtifact) DumpMeta() string {
	return fmt.Sprintf("mph.MphArtifact: n=%d vertices=%d buckets=%d signed=%v sigWidth=%d seed=%#x",
		m.nkeys, m.assigned.NumFields(), len(m.bucketState)-1, m.signed, m.sigWidth, m.seed)
}

// MarshalBinary writes a self-contained MPHF artifact.
func (m *MphArtifact) MarshalBinary(w io.Writer) (int, error) {
	ew := newErrWriter(w)
	var hdr [8 + 1 + 4 + 8 + 1 + 1]byte
	binary.LittleEndian.PutUint64(hdr[0:8], m.seed)
	hdr[8] = byte(m.bucketLg)
	binary.LittleEndian.PutUint32(hdr[9:13], uint32(len(m.bucketState)))
	binary.LittleEndian.PutUint64(hdr[13:21], m.nkeys)
	if m.signed {
		hdr[21] = 1
	}
	hdr[22] = byte(m.sigWidth)
	ew.Write(hdr[:])

	bsBuf := make([]byte, 8*len(m.bucketState))
	for i, s := range m.bucketState {
		binary.LittleEndian.PutUint64(bsBuf[i*8:], s)
	}
	ew.Write(bsBuf)
	if err := ew.Error(); err != nil {
		return 0, err
	}

	n, err := m.assigned.bits.MarshalBinary(ew)
	if err != nil {
		return 0, err
	}
	total := len(hdr) + len(bsBuf) + n

	if m.sigWidth > 0 {
		sn, err := m.sigBits.bv.MarshalBinary(ew)
		if err != nil {
			return 0, err
		}
		total += sn
	}
	if err := ew.Error(); err != nil {
		return 0, err
	}
	return total, nil
}

// DeserializeMPHF reconstructs an MphArtifact from a buffer produced by
// MarshalBinary.
func DeserializeMPHF(buf []byte) (*MphArtifact, error) {
	if len(buf) < 23 {
		return nil, ErrTooSmall
	}
	m := &MphArtifact{}
	m.seed = binary.LittleEndian.Uint64(buf[0:8])
	m.bucketLg = uint(buf[8])
	nstate := int(binary.LittleEndian.Uint32(buf[9:13]))
	m.nkeys = binary.LittleEndian.Uint64(buf[13:21])
	m.signed = buf[21] != 0
	sigWidth := uint(buf[22])
	off := 23

	if len(buf[off:]) < nstate*8 {
		return nil, ErrTooSmall
	}
	m.bucketState = make([]uint64, nstate)
	for i := 0; i < nstate; i++ {
		m.bucketState[i] = binary.LittleEndian.Uint64(buf[off+i*8:])
	}
	off += nstate * 8

	bits, n, err := unmarshalBitVec(buf[off:])
	if err != nil {
		return nil, err
	}
	nverts := unpackOffset(m.bucketState[len(m.bucketState)-1]) / 2
	m.assigned = BuildRank(bits, nverts)
	off += int(n)

	if m.signed {
		m.fpBits = &LongBigList{bv: bits, width: 2}
	}

	if sigWidth > 0 {
		sigBits, _, err := unmarshalBitVec(buf[off:])
		if err != nil {
			return nil, err
		}
		m.sigWidth = sigWidth
		m.sigBits = &LongBigList{bv: sigBits, width: sigWidth}
	}
	return m, nil
}

// Save writes the artifact to a new file at fn, truncating any existing
// content.
func (m *MphArtifact) Save(fn string) error {
	fd, err := os.OpenFile(fn, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer fd.Close()
	_, err = m.MarshalBinary(fd)
	return err
}

// OpenMPHF memory-maps a previously Save()'d MPHF artifact file.
func OpenMPHF(fn string) (*MphArtifact, error) {
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

	m, err := DeserializeMPHF(mapping.Bytes())
	if err != nil {
		mapping.Unmap()
		fd.Close()
		return nil, err
	}
	m.mm = mapping
	m.fd = fd
	return m, nil
}

// Close unmaps and closes the backing file if this artifact was loaded
// via OpenMPHF; a no-op for one built in-process.
func (m *MphArtifact) Close() error {
	if m.mm != nil {
		m.mm.Unmap()
		m.mm = nil
	}
	if m.fd != nil {
		err := m.fd.Close()
		m.fd = nil
		return err
	}
	return nil
}
