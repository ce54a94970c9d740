package main

import (
	"errors"
	"net"
	"testing"

	"github.com/jabolina/pcj/pkg/pcj/config"
	"github.com/jabolina/pcj/pkg/pcj/logging"
	"github.com/jabolina/pcj/pkg/pcj/runtime"
	"github.com/jabolina/pcj/pkg/pcj/types"
)

func TestParseThreadIDs(t *testing.T) {
	ids, err := parseThreadIDs("0, 3 ,7")
	if err != nil {
		t.Fatalf("parseThreadIDs: %v", err)
	}
	want := []types.GlobalThreadID{0, 3, 7}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}

func TestParseThreadIDs_RejectsEmpty(t *testing.T) {
	if _, err := parseThreadIDs(""); err == nil {
		t.Fatal("expected an error for an empty thread id list")
	}
}

func TestParseThreadIDs_RejectsNonNumeric(t *testing.T) {
	if _, err := parseThreadIDs("1,abc"); err == nil {
		t.Fatal("expected an error for a non-numeric thread id")
	}
}

func TestRunLocalThreads_PropagatesAnEntryPointError(t *testing.T) {
	rt := singleNodeRuntime(t)
	defer rt.Shutdown()

	boom := errors.New("boom")
	err := runLocalThreads(rt, func(rt *runtime.Runtime, self types.GlobalThreadID) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}

func TestRunLocalThreads_SucceedsWhenEveryThreadSucceeds(t *testing.T) {
	rt := singleNodeRuntime(t)
	defer rt.Shutdown()

	err := runLocalThreads(rt, func(rt *runtime.Runtime, self types.GlobalThreadID) error {
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func freeTestPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func singleNodeRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	rt, err := runtime.Bootstrap(runtime.Options{
		Hostname:       "127.0.0.1",
		Port:           freeTestPort(t),
		TotalThreads:   1,
		LocalThreadIDs: []types.GlobalThreadID{0},
		Config:         config.Default(2),
		Log:            logging.NewDefaultLogger(),
	})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return rt
}
