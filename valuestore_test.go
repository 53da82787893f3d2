// valuestore_test.go
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
	"errors"
	"testing"
)

func TestMapValueStoreResolvesByIndex(t *testing.T) {
	assert := newAsserter(t)

	vs := MapValueStore{[]byte("zero"), []byte("one"), []byte("two")}

	v, err := vs.Resolve(1)
	assert(err == nil, "Resolve(1): %v", err)
	assert(string(v) == "one", "Resolve(1) = %q, want %q", v, "one")

	_, err = vs.Resolve(99)
	assert(err != nil, "expected an error resolving an out-of-range index")
}

func TestCachedValueStoreFallsBackAndMemoizes(t *testing.T) {
	assert := newAsserter(t)

	calls := 0
	backing := countingValueStore{calls: &calls, vs: MapValueStore{[]byte("a"), []byte("b")}}

	cached, err := newCachedValueStore(backing, 4)
	assert(err == nil, "newCachedValueStore: %v", err)

	for i := 0; i < 5; i++ {
		v, err := cached.Resolve(0)
		assert(err == nil, "Resolve(0): %v", err)
		assert(string(v) == "a", "Resolve(0) = %q, want %q", v, "a")
	}
	assert(calls == 1, "expected the backing store to be hit exactly once, got %d", calls)

	v, err := cached.Resolve(1)
	assert(err == nil, "Resolve(1): %v", err)
	assert(string(v) == "b", "Resolve(1) = %q, want %q", v, "b")
	assert(calls == 2, "expected a second backing hit for a new index, got %d", calls)
}

type countingValueStore struct {
	calls *int
	vs    ValueStore
}

func (c countingValueStore) Resolve(index uint64) ([]byte, error) {
	*c.calls++
	return c.vs.Resolve(index)
}

func TestBuildIndirectRoundTrips(t *testing.T) {
	assert := newAsserter(t)

	keys := testKeyBytes()
	values := make(MapValueStore, len(keys))
	indices := make([]uint64, len(keys))
	for i := range keys {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(i*7+3))
		values[i] = b[:]
		indices[i] = uint64(i)
	}

	fn, err := BuildIndirect(keys, indices, values, testOptions(t))
	assert(err == nil, "BuildIndirect: %v", err)

	for i, k := range keys {
		got, ok := fn.Get(k)
		assert(ok, "Get(%q) reported not-found", k)
		want := binary.LittleEndian.Uint64(values[i])
		assert(got == want, "Get(%q): got %d, want %d", k, got, want)
	}
}

func TestBuildIndirectRejectsMismatchedValueCount(t *testing.T) {
	assert := newAsserter(t)

	keys := testKeyBytes()
	values := make(MapValueStore, len(keys))
	_, err := BuildIndirect(keys, make([]uint64, len(keys)-1), values, testOptions(t))
	assert(err != nil, "expected an error when indices and keys have different lengths")

	var be *BuildError
	assert(errors.As(err, &be), "expected a *BuildError, got %T: %v", err, err)
	assert(be.Kind == KindInvalidInput, "expected KindInvalidInput, got %v", be.Kind)
}
