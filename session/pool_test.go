package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolGetRecyclesPutSessions(t *testing.T) {
	p := NewPool(4, time.Minute)
	ss := NewServerSession()
	p.Put(ss)
	require.Equal(t, 1, p.Len())

	got := p.Get()
	assert.Same(t, ss, got)
	assert.Equal(t, 0, p.Len())
}

func TestPoolGetAllocatesFreshWhenEmpty(t *testing.T) {
	p := NewPool(4, time.Minute)
	got := p.Get()
	require.NotNil(t, got)
	assert.Equal(t, 0, p.Len())
}

func TestPoolPutIgnoresNil(t *testing.T) {
	p := NewPool(4, time.Minute)
	p.Put(nil)
	assert.Equal(t, 0, p.Len())
}

func TestPoolGetDiscardsEntriesPastIdleTimeout(t *testing.T) {
	p := NewPool(4, 1*time.Millisecond)
	ss := NewServerSession()
	p.Put(ss)
	time.Sleep(5 * time.Millisecond)

	got := p.Get()
	assert.NotSame(t, ss, got, "an entry past its idle timeout must not be recycled")
	assert.Equal(t, 0, p.Len())
}

func TestPoolGetIgnoresTimeoutWhenZero(t *testing.T) {
	p := NewPool(4, 0)
	ss := NewServerSession()
	p.Put(ss)
	time.Sleep(5 * time.Millisecond)

	got := p.Get()
	assert.Same(t, ss, got, "a zero timeout must disable expiry")
}

func TestPoolEvictsBeyondSize(t *testing.T) {
	p := NewPool(2, time.Minute)
	p.Put(NewServerSession())
	p.Put(NewServerSession())
	p.Put(NewServerSession())
	assert.LessOrEqual(t, p.Len(), 2)
}
