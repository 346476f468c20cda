package driver

import (
	"runtime"

	"go.nestdb.dev/driver/cursor"
)

// workItem is one unit of work submitted to a Pool.
type workItem struct {
	fn   func()
	done chan struct{}
}

// Pool is the long-lived worker with a single-consumer request channel
// called for in spec.md §9's design note on the process-wide runtime: the
// synchronous facade over the cooperative-suspension model is realized as
// a bounded set of goroutines reading from one channel, not a hidden
// package-level global.
type Pool struct {
	work chan workItem
	done chan struct{}
}

// NewPool starts a Pool with n workers; n<=0 defaults to GOMAXPROCS.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		work: make(chan workItem),
		done: make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	for {
		select {
		case item := <-p.work:
			item.fn()
			close(item.done)
		case <-p.done:
			return
		}
	}
}

// Run submits fn to the pool and blocks until it has completed.
func (p *Pool) Run(fn func()) {
	item := workItem{fn: fn, done: make(chan struct{})}
	p.work <- item
	<-item.done
}

// Close stops all workers. It does not wait for in-flight Run calls.
func (p *Pool) Close() { close(p.done) }

// Pool satisfies cursor.Dispatcher, so cursor.RunNext's getMore dispatch
// can run on the same worker pool RunSync uses.
var _ cursor.Dispatcher = (*Pool)(nil)
