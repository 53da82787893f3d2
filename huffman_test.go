// huffman_test.go
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

import "testing"

func TestHuffmanRoundtrip(t *testing.T) {
	assert := newAsserter(t)

	freq := map[uint64]uint64{
		0: 9000,
		1: 500,
		2: 300,
		3: 100,
		4: 50,
		5: 30,
		6: 15,
		7: 5,
	}
	c, err := NewHuffmanCodec(freq, 32)
	assert(err == nil, "NewHuffmanCodec: %v", err)

	// skewed values compress: the dominant symbol should need fewer
	// bits than a fixed-width encoding of the same domain (3 bits).
	assert(c.CodewordLength(0) < 3, "skewed symbol did not compress: %d bits", c.CodewordLength(0))

	roundtripCodec(t, c, []uint64{0, 1, 2, 3, 4, 5, 6, 7})

	// a value absent from the training set still roundtrips via escape.
	roundtripCodec(t, c, []uint64{9999})
}

func TestHuffmanEmptyFrequencies(t *testing.T) {
	assert := newAsserter(t)
	_, err := NewHuffmanCodec(map[uint64]uint64{}, 32)
	assert(err == ErrEmptyFrequencies, "expected ErrEmptyFrequencies, got %v", err)
}

func TestLengthLimitedHuffman(t *testing.T) {
	assert := newAsserter(t)

	freq := map[uint64]uint64{}
	for i := uint64(0); i < 64; i++ {
		freq[i] = 1 << (64 - i) % 1000000007
		if freq[i] == 0 {
			freq[i] = 1
		}
	}
	c, err := NewLengthLimitedHuffmanCodec(freq, 8, 10)
	assert(err == nil, "NewLengthLimitedHuffmanCodec: %v", err)

	for v := range freq {
		assert(c.CodewordLength(v) <= 10, "codeword for %d exceeds limit: %d bits", v, c.CodewordLength(v))
	}

	keys := make([]uint64, 0, len(freq))
	for v := range freq {
		keys = append(keys, v)
	}
	roundtripCodec(t, c, keys)
}
