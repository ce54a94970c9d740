package storage

import (
	"testing"
	"time"

	"github.com/jabolina/pcj/pkg/pcj/types"
)

func TestPutThenGet_ReturnsPutValue(t *testing.T) {
	s := New()
	if err := s.Put("main", "y", []int{1, 2, 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, err := s.Get("main", "y")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got := v.([]int)
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("unexpected value: %#v", got)
	}
}

func TestGet_UnregisteredVariableFails(t *testing.T) {
	s := New()
	if err := s.Register("main", []string{"other"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := s.Get("main", "never-put")
	if !types.Is(err, types.ErrKindNoSuchVariable) {
		t.Fatalf("expected NoSuchVariable, got %v", err)
	}
}

func TestAccumulate_ComposesAssociatively(t *testing.T) {
	s := New()
	sum := func(current, incoming interface{}) interface{} {
		return current.(int) + incoming.(int)
	}
	for _, v := range []int{1, 2, 3, 4} {
		if err := s.Accumulate("main", "total", sum, v); err != nil {
			t.Fatalf("accumulate: %v", err)
		}
	}
	got, err := s.Get("main", "total")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.(int) != 10 {
		t.Fatalf("expected 10, got %v", got)
	}
}

func TestMonitor_WakesOnNextPut(t *testing.T) {
	s := New()
	done := make(chan struct{})
	woke := make(chan error, 1)
	go func() {
		woke <- s.Monitor("main", "x", done)
	}()
	time.Sleep(10 * time.Millisecond)
	if err := s.Put("main", "x", 42); err != nil {
		t.Fatalf("put: %v", err)
	}
	select {
	case err := <-woke:
		if err != nil {
			t.Fatalf("monitor: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("monitor never woke")
	}
}

func TestPut_DifferentTypeOnSecondWriteFails(t *testing.T) {
	s := New()
	if err := s.Put("main", "y", 42); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("main", "y", "now a string"); !types.Is(err, types.ErrKindTypeMismatch) {
		t.Fatalf("expected TypeMismatch, got %v", err)
	}
	v, err := s.Get("main", "y")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.(int) != 42 {
		t.Fatalf("expected the rejected put to leave the original value in place, got %v", v)
	}
}

func TestAccumulate_DifferentTypeFails(t *testing.T) {
	s := New()
	sum := func(current, incoming interface{}) interface{} {
		return current.(int) + incoming.(int)
	}
	if err := s.Accumulate("main", "total", sum, 1); err != nil {
		t.Fatalf("accumulate: %v", err)
	}
	if err := s.Accumulate("main", "total", sum, "oops"); !types.Is(err, types.ErrKindTypeMismatch) {
		t.Fatalf("expected TypeMismatch, got %v", err)
	}
}

func TestRegistry_UnknownThreadFails(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Lookup(999); !types.Is(err, types.ErrKindUnknownThread) {
		t.Fatalf("expected UnknownThread, got %v", err)
	}
	if s := r.ForThread(7); s == nil {
		t.Fatal("expected a Storages instance")
	}
	if _, err := r.Lookup(7); err != nil {
		t.Fatalf("expected thread 7 to now exist: %v", err)
	}
}
