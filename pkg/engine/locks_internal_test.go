package engine

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectLocks_SerialisePerSubject(t *testing.T) {
	l := newSubjectLocks()
	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("s1")
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Zero(t, l.size(), "idle entries are released")
}

func TestSubjectLocks_IndependentSubjects(t *testing.T) {
	l := newSubjectLocks()
	unlockA := l.lock("a")
	unlockB := l.lock("b")
	assert.Equal(t, 2, l.size())
	unlockA()
	unlockB()
	assert.Zero(t, l.size())
}
