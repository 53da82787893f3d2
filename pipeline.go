// pipeline.go -- per-bucket parallel construction pipeline
//
// Grounded on this package's predecessor's concurrent() helper in
// bbhash.go (bounded channel + worker pool + WaitGroup), generalized with
// a ReorderingQueue so a single consumer can append bucket solutions in
// strict ascending order while workers finish out of order. The
// seed/offset packing of bucket_state mirrors the general
// habit of packing small header fields into one machine word rather than
// a struct (see dbwriter.go's 64-byte header).
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
	"sync"
)

// seedBits is the number of bits reserved in a bucket-state word
// for the accepted local seed; the remainder holds the cumulative offset.
const seedBits = 10
const maxLocalSeed = (1 << seedBits) - 1

func packBucketState(seed uint32, offset uint64) uint64 {
	return (uint64(seed) << (64 - seedBits)) | (offset & ((uint64(1) << (64 - seedBits)) - 1))
}

func unpackSeed(state uint64) uint32 {
	return uint32(state >> (64 - seedBits))
}

func unpackOffset(state uint64) uint64 {
	return state & ((uint64(1) << (64 - seedBits)) - 1)
}

// bucketSolveFn solves one bucket under a given local seed, returning the
// packed solution bits (exactly 'nbits' of them, in bits.GetBits(0,...)
// order) or a *BuildError with Kind KindUnsolvable/ErrUnorientable to
// request a reseed. Any other error is fatal and aborts the whole build.
type bucketSolveFn func(b *Bucket, localSeed uint32) (bits *BitVec, nbits uint64, err error)

type bucketSolved struct {
	index int
	bits  *BitVec
	nbits uint64
	seed  uint32
}

// runPipeline drives the producer -> N workers -> single consumer
// topology to completion, or returns the first fatal error.
func runPipeline(store *Store, opts Options, solve bucketSolveFn) (*BitVec, []uint64, error) {
	it, err := store.Iter()
	if err != nil {
		return nil, nil, err
	}

	threads := opts.threads()
	jobs := make(chan *Bucket, threads*4)
	queue := NewReorderingQueue(threads * 128)
	errCh := make(chan error, threads+1)
	var once sync.Once
	reportFatal := func(err error) {
		once.Do(func() {
			errCh <- err
		})
	}

	go func() {
		defer close(jobs)
		for {
			b, ok, err := it.Next()
			if err != nil {
				reportFatal(err)
				return
			}
			if !ok {
				return
			}
			jobs <- b
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range jobs {
				sol, err := solveBucketWithRetries(b, solve)
				if err != nil {
					reportFatal(err)
					queue.Close(err)
					return
				}
				if err := queue.Put(sol.index, sol); err != nil {
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		queue.Close(nil)
	}()

	global := newGrowableBits()
	var bucketState []uint64
	bucketState = append(bucketState, packBucketState(0, 0))

	for {
		v, ok := queue.Take()
		if !ok {
			break
		}
		sol := v.(*bucketSolved)
		for len(bucketState) <= sol.index+1 {
			bucketState = append(bucketState, 0)
		}
		start := global.Append(sol.bits, sol.nbits)
		bucketState[sol.index] = packBucketState(sol.seed, start)
		bucketState[sol.index+1] = packBucketState(0, global.Len())
	}

	select {
	case err := <-errCh:
		return nil, nil, err
	default:
	}

	return global.Bits(), bucketState, nil
}

// solveBucketWithRetries runs the bucket-local seed-reseed loop: on a
// recoverable failure (UNSOLVABLE / UNORIENTABLE) it bumps the local
// seed and tries again, bounded by the SEED_BITS-wide local seed space.
func solveBucketWithRetries(b *Bucket, solve bucketSolveFn) (*bucketSolved, error) {
	for seed := uint32(1); seed <= maxLocalSeed; seed++ {
		bits, nbits, err := solve(b, seed)
		if err == nil {
			return &bucketSolved{index: b.Index, bits: bits, nbits: nbits, seed: seed}, nil
		}
		var be *BuildError
		if errors.As(err, &be) && recoverable(be.Kind) {
			continue
		}
		return nil, err
	}
	return nil, newBuildError(KindUnsolvable, b.Index, ErrUnsolvable)
}

func recoverable(k ErrKind) bool {
	return k == KindUnsolvable
}

// buildWithReseed retries an entire store build (all buckets) up to 3
// times on a global ErrDuplicateKey: each retry resets the store with a
// new random seed (replaying its retained keys) and reruns construction
// from scratch.
func buildWithReseed(store *Store, opts Options, solve bucketSolveFn) (*BitVec, []uint64, uint64, error) {
	const maxGlobalRetries = 3
	for attempt := 0; ; attempt++ {
		bits, state, err := runPipeline(store, opts, solve)
		if err == nil {
			return bits, state, store.Seed(), nil
		}
		var be *BuildError
		if errors.As(err, &be) && be.Kind == KindDuplicateKey && attempt < maxGlobalRetries {
			if rerr := store.Reset(rand64()); rerr != nil {
				return nil, nil, 0, rerr
			}
			continue
		}
		return nil, nil, 0, err
	}
}
