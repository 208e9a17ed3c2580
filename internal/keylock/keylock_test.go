package keylock

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLockExclusive(t *testing.T) {
	t.Parallel()

	r := New()
	unlock, ok := r.TryLock("a")
	require.True(t, ok)
	assert.True(t, r.Held("a"))

	_, ok = r.TryLock("a")
	assert.False(t, ok, "second lock on the same key must fail")

	other, ok := r.TryLock("b")
	require.True(t, ok, "different keys are independent")
	other()

	unlock()
	assert.False(t, r.Held("a"))

	again, ok := r.TryLock("a")
	require.True(t, ok)
	again()
}

func TestUnlockIdempotent(t *testing.T) {
	t.Parallel()

	r := New()
	unlock, ok := r.TryLock("a")
	require.True(t, ok)
	unlock()

	second, ok := r.TryLock("a")
	require.True(t, ok)

	// stale unlock from the first holder must not release the second
	unlock()
	assert.True(t, r.Held("a"))
	second()
	assert.Equal(t, 0, r.Len())
}

func TestTryLockConcurrent(t *testing.T) {
	t.Parallel()

	r := New()
	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := r.TryLock("same"); ok {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}
