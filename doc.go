// doc.go - top level documentation
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

// Package mph builds and queries static functions and minimal perfect hash
// functions (MPHFs) over key sets too large to comfortably fit a naive
// in-memory hash table: a static function maps every key in a fixed set K
// to a value v(k) using space close to the entropy of the value
// distribution; an MPHF maps K bijectively onto [0, |K|).
//
// Construction streams keys (and, optionally, a value or value-index per
// key) through a BucketedHashStore, which partitions them on disk by the
// top bits of a 192-bit keyed hash. A ConstructionPipeline then solves each
// bucket independently and in parallel: a Peeler strips degree-1 vertices
// from the bucket's r-uniform hypergraph (r=3 for MPHF, r=4 for static
// functions), and whatever remains after peeling is handed to a lazy
// Gaussian-elimination solver over F2 (or, for MPHF, an F3 solver fed by a
// randomized hypergraph-orientation pass). Results are reassembled in
// bucket order by a ReorderingQueue into one contiguous packed bit array.
//
// The public entry points are Build (FunctionArtifact, values stored at a
// fixed bit width), BuildCompressed (values entropy-coded with a prefix
// code), BuildIndirect (values fetched through a ValueStore at solve time)
// and BuildMPHF (MphArtifact, a bijection
// onto [0, n) with an optional signature to reject non-members at a
// tunable false-positive rate). Both produced artifacts are immutable,
// trivially safe to share across goroutines, and can be written to and
// read back from a single binary blob.
package mph
