package protection

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyMutexSerializesPerKey(t *testing.T) {
	km := NewKeyMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("alice")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestKeyMutexReleasesEntries(t *testing.T) {
	km := NewKeyMutex()

	unlock := km.Lock("alice")
	unlock()

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks, "released keys should not linger in the table")
}

func TestKeyMutexDifferentKeysDoNotBlock(t *testing.T) {
	km := NewKeyMutex()

	unlockA := km.Lock("alice")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("bob")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on a different key blocked")
	}
}
