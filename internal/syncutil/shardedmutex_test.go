package syncutil

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	var m ShardedMutex
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("acct_shared001")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("counter = %d, want 100", counter)
	}
}

func TestLockDifferentKeysDoNotDeadlock(t *testing.T) {
	var m ShardedMutex

	unlockA := m.Lock("acct_a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := m.Lock("acct_b_other_shard")
		unlockB()
		close(done)
	}()
	<-done
}
