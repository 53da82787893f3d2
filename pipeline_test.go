// pipeline_test.go
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
	"errors"
	"testing"
)

func TestPackUnpackBucketState(t *testing.T) {
	assert := newAsserter(t)

	cases := []struct {
		seed   uint32
		offset uint64
	}{
		{0, 0},
		{1, 12345},
		{maxLocalSeed, 1 << 40},
		{maxLocalSeed / 2, (uint64(1) << (64 - seedBits)) - 1},
	}
	for _, c := range cases {
		state := packBucketState(c.seed, c.offset)
		assert(unpackSeed(state) == c.seed, "unpackSeed(packBucketState(%d,%d)): got %d", c.seed, c.offset, unpackSeed(state))
		assert(unpackOffset(state) == c.offset, "unpackOffset(packBucketState(%d,%d)): got %d", c.seed, c.offset, unpackOffset(state))
	}
}

func TestSolveBucketWithRetriesSucceedsEventually(t *testing.T) {
	assert := newAsserter(t)

	b := &Bucket{Index: 3}
	const succeedAt = 7
	solve := func(bb *Bucket, localSeed uint32) (*BitVec, uint64, error) {
		if localSeed < succeedAt {
			return nil, 0, newBuildError(KindUnsolvable, bb.Index, ErrUnsolvable)
		}
		bv := NewBitVec(4)
		return bv, 4, nil
	}

	sol, err := solveBucketWithRetries(b, solve)
	assert(err == nil, "solveBucketWithRetries: %v", err)
	assert(sol.seed == succeedAt, "expected acceptance at local seed %d, got %d", succeedAt, sol.seed)
	assert(sol.index == 3, "expected bucket index 3, got %d", sol.index)
}

func TestSolveBucketWithRetriesExhaustsSeedSpace(t *testing.T) {
	assert := newAsserter(t)

	b := &Bucket{Index: 0}
	solve := func(bb *Bucket, localSeed uint32) (*BitVec, uint64, error) {
		return nil, 0, newBuildError(KindUnsolvable, bb.Index, ErrUnsolvable)
	}

	_, err := solveBucketWithRetries(b, solve)
	assert(err != nil, "expected an error once the local seed space is exhausted")

	var be *BuildError
	assert(errors.As(err, &be), "expected a *BuildError, got %T: %v", err, err)
	assert(be.Kind == KindUnsolvable, "expected KindUnsolvable, got %v", be.Kind)
}

func TestSolveBucketWithRetriesPropagatesFatalError(t *testing.T) {
	assert := newAsserter(t)

	b := &Bucket{Index: 0}
	solve := func(bb *Bucket, localSeed uint32) (*BitVec, uint64, error) {
		return nil, 0, newBuildError(KindIoError, bb.Index, errShortWrite("test", 3))
	}

	_, err := solveBucketWithRetries(b, solve)
	assert(err != nil, "expected the fatal error to propagate immediately")

	var be *BuildError
	assert(errors.As(err, &be) && be.Kind == KindIoError, "expected KindIoError to pass through unretried, got %v", err)
}

func TestRunPipelineAssemblesAllBucketsInOrder(t *testing.T) {
	assert := newAsserter(t)

	s, err := NewStore(t.TempDir())
	assert(err == nil, "NewStore: %v", err)
	defer s.Close()
	s.BucketSize(3)

	keys := testKeyBytes()
	assert(s.AddAll(keys) == nil, "AddAll failed")

	opts := DefaultOptions()
	opts.Threads = 4

	solve := func(b *Bucket, localSeed uint32) (*BitVec, uint64, error) {
		bv := NewBitVec(uint64(len(b.Triples)))
		for i := range b.Triples {
			bv.SetBits(uint64(i), 1, 1)
		}
		return bv, uint64(len(b.Triples)), nil
	}

	bits, state, err := runPipeline(s, opts, solve)
	assert(err == nil, "runPipeline: %v", err)
	assert(bits != nil, "expected a non-nil global bit vector")

	var total uint64
	for i := 1; i < len(state); i++ {
		off := unpackOffset(state[i])
		prevOff := unpackOffset(state[i-1])
		assert(off >= prevOff, "bucket_state offsets are not non-decreasing at index %d", i)
		total = off
	}
	assert(total == uint64(len(keys)), "expected %d total packed bits, got %d", len(keys), total)
}
