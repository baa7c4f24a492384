package sync

import (
	"testing"
	"time"
)

func TestMutexAliases(t *testing.T) {
	var (
		mu   Mutex
		rw   RWMutex
		wg   WaitGroup
		once Once
	)

	count := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			once.Do(func() {
				mu.Lock()
				count++
				mu.Unlock()
			})
			rw.RLock()
			_ = count
			rw.RUnlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutines did not finish")
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	var _ Locker = &mu
}
