// sliceconv.go -- zero-copy reinterpretation between []byte and fixed-width
// integer slices, used when marshaling packed bit/word arrays and when
// reading them back out of a memory-mapped artifact file.
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
	"unsafe"
)

// u64sToByteSlice reinterprets a []uint64 as a []byte without copying. The
// result shares storage with 'v' and is native-endian; callers write it
// to disk as is, so the persisted words are little-endian only on
// little-endian archs.
func u64sToByteSlice(v []uint64) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*8)
}

// bsToUint64Slice is the inverse of u64sToByteSlice: it reinterprets a
// byte slice (assumed 8-byte aligned, as mmap'd pages are) as a []uint64.
func bsToUint64Slice(b []byte) []uint64 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), len(b)/8)
}

func u32sToByteSlice(v []uint32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}

func bsToUint32Slice(b []byte) []uint32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func u16sToByteSlice(v []uint16) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*2)
}

func bsToUint16Slice(b []byte) []uint16 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
}

// toLittleEndianUint64/32 convert a native-endian word (as produced by
// bsToUint64Slice/bsToUint32Slice over a little-endian-encoded mmap region)
// into the little-endian value the artifact format actually specifies.
// On little-endian archs this is the identity; on big-endian archs it
// byte-swaps.
func toLittleEndianUint64(v uint64) uint64 { return toLEUint64(v) }
func toLittleEndianUint32(v uint32) uint32 { return toLEUint32(v) }

// leUint64 is a small helper for writing little-endian headers
// without importing encoding/binary at every call site.
func leUint64(v uint64) [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b
}
