package driver

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolRunBlocksUntilDone(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	var ran int32
	p.Run(func() { atomic.StoreInt32(&ran, 1) })
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestPoolRunsConcurrentWorkOnDistinctGoroutines(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var active int32
	var maxSeen int32
	done := make(chan struct{}, 4)
	for i := 0; i < 4; i++ {
		go func() {
			p.Run(func() {
				n := atomic.AddInt32(&active, 1)
				for {
					cur := atomic.LoadInt32(&maxSeen)
					if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&active, -1)
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&maxSeen), int32(2), "a 4-worker pool must run submitted work concurrently")
}

func TestNewPoolAcceptsNonPositiveWorkerCount(t *testing.T) {
	p := NewPool(0)
	defer p.Close()
	assert.NotNil(t, p)
}
