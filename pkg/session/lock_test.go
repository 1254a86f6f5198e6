package session

import (
	"context"
	"fmt"
	"testing"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager()
	ctx := context.Background()
	count := 10000

	// 1. Run a turn on many sessions
	for i := 0; i < count; i++ {
		sid := fmt.Sprintf("session-%d", i)
		_ = mgr.WithTurn(ctx, sid, func(context.Context) error { return nil })
	}

	// 2. Every lock entry must be gone once its turn is over
	if n := mgr.activeLocks(); n != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after turns", n)
	}
}
