package lock

import (
	"sync"
	"testing"
)

func TestSpinLockTryLock(t *testing.T) {
	var sl SpinLock
	if !sl.TryLock() {
		t.Fatalf("TryLock on a free lock failed")
	}
	if sl.TryLock() {
		t.Fatalf("TryLock succeeded while held")
	}
	if !sl.IsLocked() {
		t.Fatalf("IsLocked false while held")
	}
	sl.UnLock()
	if sl.IsLocked() {
		t.Fatalf("IsLocked true after UnLock")
	}
}

func TestSpinLockExclusion(t *testing.T) {
	var sl SpinLock
	var wg sync.WaitGroup
	counter := 0
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				sl.Lock()
				counter++
				sl.UnLock()
			}
		}()
	}
	wg.Wait()
	if counter != 8000 {
		t.Fatalf("expected 8000 increments, got %d", counter)
	}
}
