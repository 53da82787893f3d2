// valuestore.go -- external value resolution for indirect-mode builds
//
// Grounded on DBReader's cache field in dbreader.go: an
// *arc.ARCCache[uint64, []byte] opportunistically memoizes records
// fetched from disk by index, trading a little memory for far fewer
// random reads against the backing store. Indirect-mode construction
// has the same access pattern one level earlier: a bucket's solver
// closure reads each key's value once per local-seed attempt, so every
// reseed retry of that bucket reads it again, and the same index is
// resolved repeatedly during a single build even though each key is
// logically looked up "once."
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
	"github.com/hashicorp/golang-lru/arc/v2"
)

// ValueStore resolves a value-store index (recorded by Store.AddAllIndirect,
// see BuildIndirect) back to the value's raw bytes. Callers
// supply one when values are large enough, or held in a place remote
// enough, that copying every value into memory up front isn't
// attractive; implementations must be safe for concurrent use, since
// BuildIndirect calls Resolve from opts.Threads solver goroutines.
type ValueStore interface {
	Resolve(index uint64) ([]byte, error)
}

// MapValueStore is the simplest ValueStore: an in-memory slice indexed
// directly by position. Mainly useful for tests and for callers who
// already hold the values in memory but still want to exercise the
// indirect build path (e.g. to keep the packed variable vector free of
// large values it would otherwise store as fixed-width raw bytes).
type MapValueStore [][]byte

// Resolve implements ValueStore.
func (m MapValueStore) Resolve(index uint64) ([]byte, error) {
	if index >= uint64(len(m)) {
		return nil, newBuildError(KindInvalidInput, -1, ErrNoKey)
	}
	return m[index], nil
}

// cachedValueStore wraps a ValueStore with a bounded ARC cache, exactly
// as DBReader.Find does for disk-backed lookups: repeated resolution of
// the same index (across reseed retries) hits the cache
// instead of the backing store.
type cachedValueStore struct {
	backing ValueStore
	cache   *arc.ARCCache[uint64, []byte]
}

// newCachedValueStore wraps backing with an ARC cache holding up to size
// entries (at least 128, matching NewDBReader's floor for the same
// reason: a handful of hot records are worth keeping even for a small
// build).
func newCachedValueStore(backing ValueStore, size int) (*cachedValueStore, error) {
	if size < 128 {
		size = 128
	}
	cache, err := arc.NewARC[uint64, []byte](size)
	if err != nil {
		return nil, err
	}
	return &cachedValueStore{backing: backing, cache: cache}, nil
}

func (c *cachedValueStore) Resolve(index uint64) ([]byte, error) {
	if v, ok := c.cache.Get(index); ok {
		return v, nil
	}
	v, err := c.backing.Resolve(index)
	if err != nil {
		return nil, err
	}
	c.cache.Add(index, v)
	return v, nil
}
