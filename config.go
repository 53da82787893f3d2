// config.go -- construction-time configuration
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

import "runtime"

// Options configures a Build/BuildMPHF call. The zero value is not valid;
// use DefaultOptions() and override individual fields. Number-of-threads is
// the only process-wide knob this package has, and it lives here as an
// explicit field rather than as global state.
type Options struct {
	// BucketLog2Size is the log2 of the number of buckets the key set is
	// split into (handed to Store.BucketSize, which clamps it to 10); it
	// governs parallelism granularity and peak memory. It is not a target
	// bucket size: the bucket count does not depend on the number of
	// keys. 0 selects 8 (256 buckets).
	BucketLog2Size uint

	// Threads is the number of concurrent solver goroutines. <= 0
	// means min(runtime.NumCPU(), 16), falling back to 4 if that
	// comes back as 0 (e.g. GOMAXPROCS oddities).
	Threads int

	// Codec selects the prefix code used by BuildCompressed and
	// BuildIndirect; Build ignores it. Nil makes BuildCompressed train a
	// length-limited Huffman codec on the values, and makes BuildIndirect
	// store values at a fixed bit width.
	Codec Codec

	// SignatureWidth controls MphArtifact's membership signature. 0
	// disables it: Contains degrades to "Get produced some vertex", and
	// Get never rejects a non-member key.
	//
	// A positive width w builds an exact w-bit signature table (at most
	// 64), keyed by the key's own output position: each slot holds
	// hash0(k) & ((1<<w)-1) for the one key that built it. Get then
	// checks a candidate key's hash0 against its slot before returning,
	// rejecting non-members with false-positive rate 2^-w; Contains
	// becomes a thin wrapper around Get. BuildMPHF rejects a width above
	// 64 with ErrInvalidInput.
	//
	// A negative value selects "approximate dictionary" mode instead: a
	// 2-bit GF(3) fingerprint is solved into every non-assigned vertex,
	// and Contains checks it against a per-key term, rejecting most
	// non-members without a full per-key signature table. Get is
	// unaffected by this mode (only Contains uses the fingerprint).
	SignatureWidth int

	// TempDir is where BucketedHashStore spills bucket files. "" means
	// os.TempDir().
	TempDir string
}

// DefaultOptions returns sensible defaults: automatic bucket sizing,
// automatic thread count, no compression, no signature, system temp dir.
func DefaultOptions() Options {
	return Options{
		BucketLog2Size: 0,
		Threads:        0,
		Codec:          nil,
		SignatureWidth: 0,
		TempDir:        "",
	}
}

func (o *Options) threads() int {
	if o.Threads > 0 {
		return o.Threads
	}
	n := runtime.NumCPU()
	if n > 16 {
		n = 16
	}
	if n <= 0 {
		n = 4
	}
	return n
}

func (o *Options) bucketTargetSize() uint {
	if o.BucketLog2Size > 0 {
		return o.BucketLog2Size
	}
	return 8
}

func (o *Options) tempDir() string {
	if o.TempDir != "" {
		return o.TempDir
	}
	return ""
}
