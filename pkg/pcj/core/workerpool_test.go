package core

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jabolina/pcj/pkg/pcj/metrics"
)

func TestWorkerPool_RunsSubmittedTasks(t *testing.T) {
	pool := NewWorkerPool(4, metrics.New())
	defer pool.Stop()

	var n int32
	var wg sync.WaitGroup
	wg.Add(20)
	for i := 0; i < 20; i++ {
		pool.Submit(func() {
			atomic.AddInt32(&n, 1)
			wg.Done()
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks never completed")
	}
	if got := atomic.LoadInt32(&n); got != 20 {
		t.Fatalf("expected 20 tasks run, got %d", got)
	}
}

func TestWorkerPool_StopDrainsAndExits(t *testing.T) {
	pool := NewWorkerPool(1, nil)
	var ran bool
	pool.Submit(func() { ran = true })
	pool.Stop()
	if !ran {
		t.Fatal("expected submitted task to run before Stop returned")
	}
}

func TestWorkerPool_ZeroOrNegativeDefaultsToOne(t *testing.T) {
	pool := NewWorkerPool(0, nil)
	defer pool.Stop()
	done := make(chan struct{})
	pool.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran with defaulted worker count")
	}
}
