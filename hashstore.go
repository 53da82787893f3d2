// hashstore.go -- disk-backed partitioning of keys into buckets
//
// Grounded on this package's predecessor's DBWriter/DBReader record format
// (dbwriter.go/dbreader.go in the retrieval pack's opencoff/go-mph): a
// siphash-2-4 checksum guards every spilled record so disk corruption is
// caught opportunistically rather than via one whole-file digest, and
// records are length-prefixed and written through a buffered os.File the
// same way. The partitioning scheme itself (top bits of a hash select a
// spill file, files are merged into logical buckets by further bit
// grouping) is this component's own
// algorithm.
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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dchest/siphash"
)

// Transform names the key-to-bits strategy a Store uses. Bytes is, today,
// the only one: every key is already a []byte and is hashed as-is.
type Transform int

const (
	TransformBytes Transform = iota
)

func (t Transform) String() string {
	switch t {
	case TransformBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// spillFileBits is the fixed log2 number of spill files a Store
// partitions into on add_all. A bucket_size() request for more buckets
// than this is clamped (see DESIGN.md, BucketedHashStore open decisions).
const spillFileBits = 10 // 1024 spill files

// valueMode selects what, if anything, rides alongside each key.
type valueMode int

const (
	noValues valueMode = iota
	rawValues
	indirectValues
)

// Bucket is one partition of the key set: all triples (and, if present,
// payloads) sharing the top bucketLog2 bits of their first hash word.
type Bucket struct {
	Index   int
	Triples []Triple
	Values  [][]byte // raw value bytes, or nil if Store carries no values
	Indices []uint64 // value-store indices, non-nil only in indirect mode
}

// TriplesOnly returns the bucket's triples alone, e.g. for a pass that only
// needs the hyperedges (MPHF construction has no payload to carry).
func (b *Bucket) TriplesOnly() []Triple { return b.Triples }

// Store streams a (possibly huge) key set to disk, partitioned by hash,
// so a later pass can process it one bounded bucket at a time. It also
// keeps every added key and payload in memory so Reset can replay them,
// so the whole key set stays in memory for the store's lifetime.
type Store struct {
	mu      sync.Mutex
	tempDir string
	salt    []byte // siphash key for spill-record checksums

	seed      uint64
	mode      valueMode
	transform Transform

	files    []*os.File
	writers  []*bufio.Writer
	dirPath  string
	n        uint64
	bucketLg uint // b: desired log2(bucket count), from BucketSize
	frozen   bool

	// retained verbatim so Reset (triggered by a duplicate-key reseed,
	// can replay the same key set under a new seed without the
	// caller re-streaming it.
	keys    [][]byte
	values  [][]byte
	indices []uint64
}

// NewStore creates a store that spills temporary files under tempDir (or
// os.TempDir() if empty).
func NewStore(tempDir string) (*Store, error) {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	s := &Store{
		tempDir:   tempDir,
		transform: TransformBytes,
		bucketLg:  spillFileBits,
	}
	if err := s.Reset(rand64()); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset discards any prior spilled state and adopts a new hash seed,
// then replays every key (and payload) previously added to it under
// that seed. This is how a caller responds to ErrDuplicateKey from
// Iter: the retained key set is automatically re-streamed, so no
// explicit re-add is needed.
func (s *Store) Reset(seed uint64) error {
	s.mu.Lock()
	keys, values, indices, mode := s.keys, s.values, s.indices, s.mode
	s.mu.Unlock()

	if err := s.reinit(seed); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	return s.addAll(keys, values, indices, false)
}

func (s *Store) reinit(seed uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeFilesLocked()

	dir, err := os.MkdirTemp(s.tempDir, "govmph-store-*")
	if err != nil {
		return err
	}
	s.dirPath = dir
	s.salt = randbytes(16)
	s.seed = seed
	s.n = 0
	s.frozen = false

	nfiles := 1 << spillFileBits
	s.files = make([]*os.File, nfiles)
	s.writers = make([]*bufio.Writer, nfiles)
	for i := 0; i < nfiles; i++ {
		fn := filepath.Join(dir, fmt.Sprintf("b%04x", i))
		fd, err := os.OpenFile(fn, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			s.closeFilesLocked()
			return err
		}
		s.files[i] = fd
		s.writers[i] = bufio.NewWriterSize(fd, 32*1024)
	}
	return nil
}

func (s *Store) closeFilesLocked() {
	for _, w := range s.writers {
		if w != nil {
			w.Flush()
		}
	}
	for _, f := range s.files {
		if f != nil {
			f.Close()
		}
	}
	if s.dirPath != "" {
		os.RemoveAll(s.dirPath)
	}
	s.files = nil
	s.writers = nil
	s.dirPath = ""
}

// Close removes the store's temporary files. Safe to call once a build
// has consumed Iter(); a zero value Store need not be closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeFilesLocked()
	return nil
}

// BucketSize sets the target log2(bucket count).
// It is clamped to spillFileBits, the store's fixed spill-file
// granularity.
func (s *Store) BucketSize(log2Buckets uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log2Buckets > spillFileBits {
		log2Buckets = spillFileBits
	}
	s.bucketLg = log2Buckets
}

func (s *Store) Size() uint64      { return s.n }
func (s *Store) Seed() uint64      { return s.seed }
func (s *Store) Transform() Transform { return s.transform }

// AddAll streams a key set into the store with no payload (the MPHF use
// case: only membership and hyperedges matter).
func (s *Store) AddAll(keys [][]byte) error {
	return s.addAll(keys, nil, nil, true)
}

// AddAllValues streams a key set and a parallel value list (the static
// function use case). len(values) must equal len(keys).
func (s *Store) AddAllValues(keys [][]byte, values [][]byte) error {
	if len(values) != len(keys) {
		return newBuildError(KindInvalidInput, -1, ErrMismatchedValues)
	}
	return s.addAll(keys, values, nil, true)
}

// AddAllIndirect is AddAllValues for indirect mode: indices name slots in
// an external ValueStore rather than carrying value bytes directly.
func (s *Store) AddAllIndirect(keys [][]byte, indices []uint64) error {
	if len(indices) != len(keys) {
		return newBuildError(KindInvalidInput, -1, ErrMismatchedValues)
	}
	return s.addAll(keys, nil, indices, true)
}

// addAll appends records to the spill files. When retain is true (every
// public entry point) the key set is also kept in memory so a later
// reseed (Reset) can replay it without the caller's help.
func (s *Store) addAll(keys [][]byte, values [][]byte, indices []uint64, retain bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return newBuildError(KindInternal, -1, ErrFrozen)
	}
	if values != nil {
		s.mode = rawValues
	} else if indices != nil {
		s.mode = indirectValues
	}
	if retain {
		s.keys = append(s.keys, keys...)
		s.values = append(s.values, values...)
		s.indices = append(s.indices, indices...)
	}

	for i, k := range keys {
		t := HashKey(k, s.seed)
		fileIdx := t[0] >> (64 - spillFileBits)

		var payload []byte
		switch s.mode {
		case rawValues:
			payload = values[i]
		case indirectValues:
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], indices[i])
			payload = b[:]
		}
		if err := s.writeRecord(int(fileIdx), t, payload); err != nil {
			return newBuildError(KindIoError, -1, err)
		}
		s.n++
	}
	return nil
}

// writeRecord appends one (triple, payload) record, checksummed with
// siphash over the salt fixed at Reset. Layout: cksum(8) | triple(24) |
// len(4) | payload(len).
func (s *Store) writeRecord(fileIdx int, t Triple, payload []byte) error {
	w := s.writers[fileIdx]

	buf := make([]byte, 24+4+len(payload))
	binary.LittleEndian.PutUint64(buf[0:8], t[0])
	binary.LittleEndian.PutUint64(buf[8:16], t[1])
	binary.LittleEndian.PutUint64(buf[16:24], t[2])
	binary.LittleEndian.PutUint32(buf[24:28], uint32(len(payload)))
	copy(buf[28:], payload)

	h := siphash.New(s.salt)
	h.Write(buf)
	cksum := h.Sum64()

	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], cksum)

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return nil
}

type storeRecord struct {
	t       Triple
	payload []byte
}

func (s *Store) readRecords(fileIdx int) ([]storeRecord, error) {
	w := s.writers[fileIdx]
	if err := w.Flush(); err != nil {
		return nil, err
	}
	f := s.files[fileIdx]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r := bufio.NewReaderSize(f, 32*1024)

	var recs []storeRecord
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		cksum := binary.LittleEndian.Uint64(hdr[:])

		var fixed [28]byte
		if _, err := io.ReadFull(r, fixed[:]); err != nil {
			return nil, err
		}
		plen := binary.LittleEndian.Uint32(fixed[24:28])
		payload := make([]byte, plen)
		if plen > 0 {
			if _, err := io.ReadFull(r, payload); err != nil {
				return nil, err
			}
		}

		buf := make([]byte, 28+len(payload))
		copy(buf, fixed[:])
		copy(buf[28:], payload)

		h := siphash.New(s.salt)
		h.Write(buf)
		if h.Sum64() != cksum {
			return nil, fmt.Errorf("govmph: corrupted spill record in bucket file %d", fileIdx)
		}

		var t Triple
		t[0] = binary.LittleEndian.Uint64(buf[0:8])
		t[1] = binary.LittleEndian.Uint64(buf[8:16])
		t[2] = binary.LittleEndian.Uint64(buf[16:24])
		recs = append(recs, storeRecord{t: t, payload: payload})
	}
	return recs, nil
}

// BucketIterator yields Buckets in ascending index order.
type BucketIterator struct {
	s        *Store
	perGroup int // spill files merged per logical bucket
	nbuckets int
	next     int
}

// Iter freezes the store (no further AddAll calls) and returns an
// iterator over its buckets in ascending index order.
func (s *Store) Iter() (*BucketIterator, error) {
	s.mu.Lock()
	s.frozen = true
	nfiles := 1 << spillFileBits
	perGroup := 1 << (spillFileBits - s.bucketLg)
	nbuckets := nfiles / perGroup
	s.mu.Unlock()

	return &BucketIterator{s: s, perGroup: perGroup, nbuckets: nbuckets}, nil
}

// Next returns the next bucket, or ok=false once exhausted.
func (it *BucketIterator) Next() (*Bucket, bool, error) {
	if it.next >= it.nbuckets {
		return nil, false, nil
	}
	idx := it.next
	it.next++

	var all []storeRecord
	start := idx * it.perGroup
	for i := start; i < start+it.perGroup; i++ {
		recs, err := it.s.readRecords(i)
		if err != nil {
			return nil, false, newBuildError(KindIoError, idx, err)
		}
		all = append(all, recs...)
	}

	sort.Slice(all, func(i, j int) bool { return tripleLess(all[i].t, all[j].t) })
	for i := 1; i < len(all); i++ {
		if all[i].t == all[i-1].t {
			return nil, false, newBuildError(KindDuplicateKey, idx, ErrDuplicateKey)
		}
	}

	b := &Bucket{Index: idx, Triples: make([]Triple, len(all))}
	switch it.s.mode {
	case rawValues:
		b.Values = make([][]byte, len(all))
	case indirectValues:
		b.Indices = make([]uint64, len(all))
	}
	for i, r := range all {
		b.Triples[i] = r.t
		switch it.s.mode {
		case rawValues:
			b.Values[i] = r.payload
		case indirectValues:
			b.Indices[i] = binary.LittleEndian.Uint64(r.payload)
		}
	}
	return b, true, nil
}

func tripleLess(a, b Triple) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	if a[1] != b[1] {
		return a[1] < b[1]
	}
	return a[2] < b[2]
}
