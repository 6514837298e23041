package services

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestUserLocksReleaseEntries(t *testing.T) {
	var locks userLocks
	for i := 0; i < 100; i++ {
		unlock := locks.lock(fmt.Sprintf("user-%d", i))
		unlock()
	}
	if n := locks.size(); n != 0 {
		t.Fatalf("expected no retained locks, got %d", n)
	}
}

func TestUserLocksSerialisePerUser(t *testing.T) {
	var locks userLocks
	unlock := locks.lock("u1")

	acquired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		release := locks.lock("u1")
		close(acquired)
		release()
	}()

	otherDone := make(chan struct{})
	go func() {
		locks.lock("u2")()
		close(otherDone)
	}()
	select {
	case <-otherDone:
	case <-time.After(time.Second):
		t.Fatal("another user must not wait on u1")
	}

	select {
	case <-acquired:
		t.Fatal("second caller acquired u1 while it was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	wg.Wait()
	if n := locks.size(); n != 0 {
		t.Fatalf("expected no retained locks, got %d", n)
	}
}
