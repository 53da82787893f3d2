// integration_test.go -- end-to-end scenarios exercising the whole
// construction pipeline rather than one package in isolation.
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
	"fmt"
	"testing"

	"github.com/opencoff/go-fasthash"
)

// genKeys synthesizes n distinct byte-slice keys by hashing the index under
// a fixed seed, the same way bbhash_test.go turns keyw into uint64 keys.
func genKeys(n int) [][]byte {
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		var idx [8]byte
		binary.LittleEndian.PutUint64(idx[:], uint64(i))
		h := fasthash.Hash64(0xdeadbeefbaadf00d, idx[:])
		out[i] = []byte(fmt.Sprintf("synthetic-key-%06d-%016x", i, h))
	}
	return out
}

func TestBuildMPHFUnderConcurrencyStress(t *testing.T) {
	assert := newAsserter(t)

	keys := genKeys(5000)
	opts := testOptions(t)
	opts.BucketLog2Size = 6
	opts.Threads = 8

	m, err := BuildMPHF(keys, opts)
	assert(err == nil, "BuildMPHF: %v", err)

	seen := make([]bool, len(keys))
	for _, k := range keys {
		v, ok := m.Get(k)
		assert(ok, "Get(%q) reported not-found", k)
		assert(v < uint64(len(keys)), "Get(%q) out of range: %d", k, v)
		assert(!seen[v], "collision at index %d", v)
		seen[v] = true
	}
}

func TestBuildFunctionUnderConcurrencyStress(t *testing.T) {
	assert := newAsserter(t)

	keys := genKeys(5000)
	values := make([]uint64, len(keys))
	for i := range values {
		values[i] = uint64(i * i % 104729)
	}
	opts := testOptions(t)
	opts.BucketLog2Size = 6
	opts.Threads = 8

	fn, err := Build(keys, values, opts)
	assert(err == nil, "Build: %v", err)

	for i, k := range keys {
		got, ok := fn.Get(k)
		assert(ok, "Get(%q) reported not-found", k)
		assert(got == values[i], "Get(%q): got %d, want %d", k, got, values[i])
	}
}

func TestBuildFunctionTerminalErrorOnTrueDuplicateKey(t *testing.T) {
	assert := newAsserter(t)

	keys := append(append([][]byte{}, testKeyBytes()...), []byte(keyw[0]))
	values := make([]uint64, len(keys))

	_, err := Build(keys, values, testOptions(t))
	assert(err != nil, "expected a terminal error building from a key set with a genuine duplicate")

	var be *BuildError
	assert(errors.As(err, &be), "expected a *BuildError, got %T: %v", err, err)
	assert(be.Kind == KindDuplicateKey, "expected KindDuplicateKey, got %v", be.Kind)
}
