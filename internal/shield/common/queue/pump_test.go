package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPump_PreservesOrder(t *testing.T) {
	p := NewPump[int]()
	defer p.Close()

	for i := range 1000 {
		require.True(t, p.Push(i))
	}
	for i := range 1000 {
		select {
		case v := <-p.Out():
			assert.Equal(t, i, v)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %d", i)
		}
	}
	assert.Eventually(t, func() bool { return p.Pending() == 0 }, time.Second, time.Millisecond)
}

func TestPump_PushNeverBlocks(t *testing.T) {
	p := NewPump[string]()
	defer p.Close()

	done := make(chan struct{})
	go func() {
		for range 10_000 {
			p.Push("x")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Push blocked without a reader")
	}
	assert.GreaterOrEqual(t, p.Pending(), 9_999)
}

func TestPump_ConcurrentProducers(t *testing.T) {
	p := NewPump[int]()
	defer p.Close()

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				p.Push(g*100 + i)
			}
		}()
	}
	wg.Wait()

	seen := map[int]bool{}
	for range 800 {
		v := <-p.Out()
		assert.False(t, seen[v], "duplicate %d", v)
		seen[v] = true
	}
	assert.Len(t, seen, 800)
}

func TestPump_Close(t *testing.T) {
	p := NewPump[int]()
	p.Push(1)
	p.Close()
	p.Close()

	assert.False(t, p.Push(2))
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-p.Out():
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}
