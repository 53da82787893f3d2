// reorderqueue_test.go
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
	"testing"
	"time"
)

func TestReorderingQueueDeliversInAscendingOrder(t *testing.T) {
	assert := newAsserter(t)

	const n = 200
	q := NewReorderingQueue(8)

	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			// stagger completion order: higher indices finish first.
			time.Sleep(time.Duration(n-idx) * time.Microsecond)
			assert(q.Put(idx, idx*idx) == nil, "Put(%d): unexpected error", idx)
		}(i)
	}

	go func() {
		wg.Wait()
		q.Close(nil)
	}()

	got := make([]int, 0, n)
	for {
		v, ok := q.Take()
		if !ok {
			break
		}
		got = append(got, v.(int))
	}

	assert(len(got) == n, "expected %d items, got %d", n, len(got))
	for i, v := range got {
		assert(v == i*i, "item %d: got %d, want %d", i, v, i*i)
	}
}

func TestReorderingQueuePutBlocksOnBackpressure(t *testing.T) {
	assert := newAsserter(t)

	q := NewReorderingQueue(2)
	assert(q.Put(0, "a") == nil, "Put(0): unexpected error")
	assert(q.Put(1, "b") == nil, "Put(1): unexpected error")

	done := make(chan struct{})
	go func() {
		// the queue already holds 2 items (capacity 2); this Put must
		// block until a Take drains the expected index 0.
		q.Put(2, "c")
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("Put(2) returned before backpressure was relieved")
	case <-time.After(20 * time.Millisecond):
	}

	v, ok := q.Take()
	assert(ok, "Take: expected a value")
	assert(v == "a", "Take: got %v, want \"a\"", v)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Put(2) still blocked after backpressure was relieved")
	}
}

func TestReorderingQueueCloseWithErrorUnblocksProducers(t *testing.T) {
	assert := newAsserter(t)

	q := NewReorderingQueue(1)
	assert(q.Put(1, "x") == nil, "Put(1): unexpected error")

	sentinel := errors.New("boom")
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Put(2, "y")
	}()

	time.Sleep(5 * time.Millisecond)
	q.Close(sentinel)

	err := <-errCh
	assert(errors.Is(err, sentinel), "blocked Put did not observe the close error: %v", err)

	_, ok := q.Take()
	assert(ok, "expected the one buffered item (index 1) to still be drainable")
	_, ok = q.Take()
	assert(!ok, "expected Take to report drained+closed once index 1 is gone")
}
