// function_test.go
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
	"bytes"
	"testing"
)

func testOptions(t *testing.T) Options {
	o := DefaultOptions()
	o.TempDir = t.TempDir()
	o.BucketLog2Size = 2
	return o
}

func TestBuildPlainFunctionIdentity(t *testing.T) {
	assert := newAsserter(t)

	keys := testKeyBytes()
	values := make([]uint64, len(keys))
	for i := range values {
		values[i] = uint64(i * 3)
	}

	fn, err := Build(keys, values, testOptions(t))
	assert(err == nil, "Build: %v", err)

	for i, k := range keys {
		got, ok := fn.Get(k)
		assert(ok, "Get(%q) reported not-found", k)
		assert(got == values[i], "Get(%q): got %d, want %d", k, got, values[i])
	}
}

func TestBuildFunctionMarshalRoundtrip(t *testing.T) {
	assert := newAsserter(t)

	keys := testKeyBytes()
	values := make([]uint64, len(keys))
	for i := range values {
		values[i] = uint64(i)
	}

	fn, err := Build(keys, values, testOptions(t))
	assert(err == nil, "Build: %v", err)

	var buf bytes.Buffer
	_, err = fn.MarshalBinary(&buf)
	assert(err == nil, "MarshalBinary: %v", err)

	fn2, err := DeserializeFunction(buf.Bytes())
	assert(err == nil, "DeserializeFunction: %v", err)

	for i, k := range keys {
		got, ok := fn2.Get(k)
		assert(ok, "Get(%q) reported not-found after roundtrip", k)
		assert(got == values[i], "Get(%q) after roundtrip: got %d, want %d", k, got, values[i])
	}
}

func TestBuildCompressedFunctionIdentityAndSize(t *testing.T) {
	assert := newAsserter(t)

	keys := testKeyBytes()
	values := make([]uint64, len(keys))
	for i := range values {
		// heavily skewed: almost every key maps to 0.
		if i%5 == 0 {
			values[i] = uint64(i)
		}
	}

	opts := testOptions(t)
	fn, err := BuildCompressed(keys, values, opts)
	assert(err == nil, "BuildCompressed: %v", err)

	for i, k := range keys {
		got, ok := fn.Get(k)
		assert(ok, "Get(%q) reported not-found", k)
		assert(got == values[i], "Get(%q): got %d, want %d", k, got, values[i])
	}

	plain, err := Build(keys, values, testOptions(t))
	assert(err == nil, "Build: %v", err)
	assert(fn.NumBits() <= plain.NumBits(), "compressed function (%d bits) is not smaller than plain (%d bits) for a skewed distribution", fn.NumBits(), plain.NumBits())
}

func TestBuildRejectsEmptyAndMismatched(t *testing.T) {
	assert := newAsserter(t)

	_, err := Build(nil, nil, testOptions(t))
	assert(err != nil, "expected an error building from an empty key set")

	_, err = Build(testKeyBytes(), []uint64{1, 2, 3}, testOptions(t))
	assert(err != nil, "expected an error building with mismatched key/value counts")
}
