package dynamic

import (
	"context"
	"sync"
	"testing"
	"time"
)

func testPool(size int) *BrowserPool {
	return &BrowserPool{
		size:        size,
		contexts:    make(chan *browserContext, size),
		allocCancel: func() {},
	}
}

func TestAcquireAfterCloseReturnsError(t *testing.T) {
	bp := testPool(1)
	bp.contexts <- &browserContext{ctx: context.Background(), cancel: func() {}}

	if err := bp.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := bp.acquire(10 * time.Millisecond); err == nil {
		t.Fatal("acquire after Close returned no error")
	}
}

func TestReleaseAfterCloseCancelsContext(t *testing.T) {
	bp := testPool(1)
	cancelled := false
	bc := &browserContext{ctx: context.Background(), cancel: func() { cancelled = true }}

	if err := bp.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	bp.release(bc)
	if !cancelled {
		t.Error("released context was not cancelled after Close")
	}
}

func TestConcurrentReleaseAndClose(t *testing.T) {
	bp := testPool(2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bp.release(&browserContext{ctx: context.Background(), cancel: func() {}})
		}()
	}
	bp.Close()
	wg.Wait()

	// Contexts returned before Close are drained by it; contexts returned
	// after are cancelled instead of re-queued.
	if got := bp.Available(); got != 0 {
		t.Errorf("Available() = %d after Close, want 0", got)
	}
}
