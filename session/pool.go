package session

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// poolKey is a throwaway identity used only to index the LRU; the pool's
// real payload is the *ServerSession stored as the value.
type poolKey uint64

// poolEntry pairs a recyclable session with the moment it was returned,
// so Get can tell a still-fresh id from one past its idle timeout.
type poolEntry struct {
	ss         *ServerSession
	returnedAt time.Time
}

// Pool is a bounded cache of recyclable server-side session ids, the
// client-side analogue of the server's session pool: ids released by a
// clean (non-dirty) session are kept around for a future caller instead
// of being discarded, the way go/network/frontend.go's sniCache keeps a
// bounded set of resolved values instead of re-resolving every time.
type Pool struct {
	mu    sync.Mutex
	cache *lru.Cache[poolKey, poolEntry]
	next  poolKey

	// timeout bounds how long a recycled id may sit in the pool before
	// NewServerSession is preferred instead, mirroring the server's own
	// logical-session idle timeout. timeout<=0 disables expiry.
	timeout time.Duration
}

// NewPool builds a Pool holding at most size recyclable session ids, each
// usable for up to timeout since being returned.
func NewPool(size int, timeout time.Duration) *Pool {
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[poolKey, poolEntry](size)
	if err != nil {
		// Only returns an error for a non-positive size, excluded above.
		panic(err)
	}
	return &Pool{cache: cache, timeout: timeout}
}

// Get returns a recyclable session id if one is available and not past
// its idle timeout, or allocates a fresh one otherwise. Entries found
// past the idle timeout are discarded, not returned.
func (p *Pool) Get() *ServerSession {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for {
		key, ok := p.oldestLocked()
		if !ok {
			break
		}
		entry, _ := p.cache.Get(key)
		p.cache.Remove(key)
		if entry.ss == nil {
			continue
		}
		if p.timeout > 0 && now.Sub(entry.returnedAt) > p.timeout {
			continue
		}
		return entry.ss
	}
	return NewServerSession()
}

// oldestLocked returns the least recently used key currently held (the
// LRU lists its keys oldest first), the next candidate to recycle.
func (p *Pool) oldestLocked() (poolKey, bool) {
	keys := p.cache.Keys()
	if len(keys) == 0 {
		return 0, false
	}
	return keys[0], true
}

// Put returns ss to the pool for future reuse, per "a clean session's
// handle is eligible to be recycled".
func (p *Pool) Put(ss *ServerSession) {
	if ss == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.cache.Add(p.next, poolEntry{ss: ss, returnedAt: time.Now()})
}

// Len reports how many ids are currently recyclable.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.Len()
}
