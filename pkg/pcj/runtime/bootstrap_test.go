package runtime

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jabolina/pcj/pkg/pcj/config"
	"github.com/jabolina/pcj/pkg/pcj/logging"
	"github.com/jabolina/pcj/pkg/pcj/types"
	"github.com/jabolina/pcj/pkg/pcj/wire"
)

// freePort asks the OS for an ephemeral port and immediately releases
// it, the same trick net/http/httptest uses to hand a test a concrete
// address before anything binds it for real.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// bootstrapCluster launches n single-threaded nodes against real
// loopback TCP sockets and blocks until every one of them has finished
// Bootstrap, returning them indexed by physical id (node 0 first).
func bootstrapCluster(t *testing.T, n int) []*Runtime {
	t.Helper()
	node0Port := freePort(t)
	ports := make([]int, n)
	ports[0] = node0Port
	for i := 1; i < n; i++ {
		ports[i] = freePort(t)
	}

	results := make([]*Runtime, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			opts := Options{
				Hostname:       "127.0.0.1",
				Port:           ports[i],
				TotalThreads:   n,
				LocalThreadIDs: []types.GlobalThreadID{types.GlobalThreadID(i)},
				Config:         config.Default(2),
				Log:            logging.NewDefaultLogger(),
			}
			if i != 0 {
				opts.Node0Host = "127.0.0.1"
				opts.Node0Port = node0Port
			}
			rt, err := Bootstrap(opts)
			results[i] = rt
			errs[i] = err
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("node %d bootstrap failed: %v", i, err)
		}
	}
	return results
}

func shutdownAll(t *testing.T, nodes []*Runtime) {
	t.Helper()
	var wg sync.WaitGroup
	for _, rt := range nodes {
		rt := rt
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rt.Shutdown(); err != nil {
				t.Errorf("shutdown: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestBootstrap_FormsMeshAndAssignsDenseIDs(t *testing.T) {
	const n = 4
	nodes := bootstrapCluster(t, n)
	defer shutdownAll(t, nodes)

	seen := make(map[types.PhysicalID]bool)
	for i, rt := range nodes {
		self := rt.Self()
		if seen[self] {
			t.Fatalf("physical id %d assigned to more than one node", self)
		}
		seen[self] = true
		if i == 0 && self != 0 {
			t.Fatalf("coordinator did not retain physical id 0, got %d", self)
		}
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct physical ids, got %d", n, len(seen))
	}
}

func TestBootstrap_GlobalGroupJoinOrderIsIdentical(t *testing.T) {
	const n = 3
	nodes := bootstrapCluster(t, n)
	defer shutdownAll(t, nodes)

	for _, rt := range nodes {
		threads := rt.LocalThreads()
		if len(threads) != 1 {
			t.Fatalf("node %d: expected one local thread, got %d", rt.Self(), len(threads))
		}
	}
}

func TestBootstrap_BarrierSynchronizesAcrossAllNodes(t *testing.T) {
	const n = 4
	nodes := bootstrapCluster(t, n)
	defer shutdownAll(t, nodes)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, rt := range nodes {
		i, rt := i, rt
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = rt.Barrier("global")
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("barrier did not complete across all nodes")
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("node %d: barrier failed: %v", i, err)
		}
	}
}

func TestBootstrap_PutThenGetAcrossNodes(t *testing.T) {
	const n = 2
	nodes := bootstrapCluster(t, n)
	defer shutdownAll(t, nodes)

	target := nodes[0].LocalThreads()[0]
	if err := nodes[1].Put(target, "vars", "greeting", "hello"); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, err := nodes[1].Get(target, "vars", "greeting")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != "hello" {
		t.Fatalf("expected \"hello\", got %v", v)
	}
}

func TestBootstrap_ReduceCombinesAcrossNodes(t *testing.T) {
	const n = 3
	nodes := bootstrapCluster(t, n)
	defer shutdownAll(t, nodes)

	// A node's own contribution is an int, while partial sums from child
	// nodes arrive decoded as int64, so the fold accepts both.
	sum := func(current, incoming interface{}) interface{} {
		toInt64 := func(v interface{}) int64 {
			if i, ok := v.(int); ok {
				return int64(i)
			}
			return v.(int64)
		}
		return toInt64(current) + toInt64(incoming)
	}
	for _, rt := range nodes {
		rt.RegisterAccumulator("vars", "total", sum)
	}

	results := make([]interface{}, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i, rt := range nodes {
		i, rt := i, rt
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = rt.Reduce("global", "vars", "total", i+1)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("node %d: reduce failed: %v", i, err)
		}
	}
	want := 0
	for i := 0; i < n; i++ {
		want += i + 1
	}
	// Reduce's values round-trip through the msgpack wire codec, which
	// always decodes integers back as int64 regardless of the sent
	// type's width.
	for i, v := range results {
		if v != int64(want) {
			t.Fatalf("node %d: expected reduced total %d, got %v", i, want, v)
		}
	}
}

func TestBootstrap_ShutdownDrainsByeTreeOnAllNodes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	const n = 3
	nodes := bootstrapCluster(t, n)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, rt := range nodes {
		i, rt := i, rt
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = rt.Shutdown()
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete across all nodes")
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("node %d: shutdown failed: %v", i, err)
		}
	}
}

func TestBootstrapHandshake_RejectsMismatchedProtocolVersion(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	coord := newHelloCoordinator(types.NodeInfo{Physical: 0})
	hs := &bootstrapHandshake{log: logging.NewDefaultLogger(), coord: coord}

	go func() {
		hello, err := types.EncodeFrame(&types.Hello{Hostname: "127.0.0.1", Port: 9999, Protocol: "0.0.1-incompatible"})
		if err != nil {
			return
		}
		_, _ = client.Write(hello.Encode())
	}()

	_, err := hs.handshake(server)
	if err == nil {
		t.Fatal("expected handshake to reject a mismatched protocol version")
	}
	if !types.Is(err, types.ErrKindConnectFailed) {
		t.Fatalf("expected a ConnectFailed-kind error, got %v", err)
	}
}

func TestBootstrapHandshake_AcceptsMatchingProtocolVersion(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	coord := newHelloCoordinator(types.NodeInfo{Physical: 0})
	hs := &bootstrapHandshake{log: logging.NewDefaultLogger(), coord: coord}

	go func() {
		hello, err := types.EncodeFrame(&types.Hello{Hostname: "127.0.0.1", Port: 9999, Protocol: ProtocolVersion})
		if err != nil {
			return
		}
		_, _ = client.Write(hello.Encode())
		_, _ = wire.ReadFrame(client)
	}()

	id, err := hs.handshake(server)
	if err != nil {
		t.Fatalf("expected handshake to accept a matching protocol version, got %v", err)
	}
	if id != 1 {
		t.Fatalf("expected assigned id 1, got %d", id)
	}
}

func TestOptions_IsCoordinator(t *testing.T) {
	cases := []struct {
		opts Options
		want bool
	}{
		{Options{}, true},
		{Options{Node0Host: "127.0.0.1", Node0Port: 9000}, false},
	}
	for _, c := range cases {
		if got := c.opts.IsCoordinator(); got != c.want {
			t.Fatalf("IsCoordinator() = %v, want %v", got, c.want)
		}
	}
}

func TestOptions_AddressFormatting(t *testing.T) {
	opts := Options{Hostname: "10.0.0.1", Port: 4000, Node0Host: "10.0.0.2", Node0Port: 5000}
	if got, want := opts.node0Addr(), "10.0.0.2:5000"; got != want {
		t.Fatalf("node0Addr() = %q, want %q", got, want)
	}
	if got, want := opts.selfAddr(), fmt.Sprintf(":%d", 4000); got != want {
		t.Fatalf("selfAddr() = %q, want %q", got, want)
	}
}
