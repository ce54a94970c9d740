package core

import (
	"testing"
	"time"
)

func TestUnboundedQueue_FIFO(t *testing.T) {
	q := newUnboundedQueue()
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	for i := 0; i < 5; i++ {
		v, ok := q.Pop()
		if !ok || v.(int) != i {
			t.Fatalf("expected %d, got %v (ok=%v)", i, v, ok)
		}
	}
}

func TestUnboundedQueue_PopBlocksUntilPush(t *testing.T) {
	q := newUnboundedQueue()
	result := make(chan interface{}, 1)
	go func() {
		v, _ := q.Pop()
		result <- v
	}()
	time.Sleep(10 * time.Millisecond)
	q.Push("hello")
	select {
	case v := <-result:
		if v != "hello" {
			t.Fatalf("expected hello, got %v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("pop never returned")
	}
}

func TestUnboundedQueue_CloseWakesWaiters(t *testing.T) {
	q := newUnboundedQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected ok=false after close")
		}
	case <-time.After(time.Second):
		t.Fatal("pop never woke on close")
	}
}
