package collective

import (
	"testing"
	"time"

	"github.com/jabolina/pcj/pkg/pcj/group"
	"github.com/jabolina/pcj/pkg/pcj/logging"
	"github.com/jabolina/pcj/pkg/pcj/metrics"
	"github.com/jabolina/pcj/pkg/pcj/storage"
	"github.com/jabolina/pcj/pkg/pcj/topology"
	"github.com/jabolina/pcj/pkg/pcj/types"
)

// testCluster simulates N single-threaded-per-node processes in one
// test binary: one Engine per physical id, wired together by a fake
// Sender that hands messages to the target engine on its own
// goroutine, the same decoupling a real Networker gives the collective
// state engine.
type testCluster struct {
	engines  map[types.PhysicalID]*Engine
	groups   map[types.PhysicalID]*group.Registry
	storages map[types.PhysicalID]*storage.Registry
	inbox    map[types.PhysicalID]chan func()
}

func newTestCluster(t *testing.T, n int) *testCluster {
	t.Helper()
	nodes := make([]types.Node, n)
	for i := 0; i < n; i++ {
		nodes[i] = types.Node{Physical: types.PhysicalID(i), LocalThreads: []types.GlobalThreadID{types.GlobalThreadID(i)}}
	}

	c := &testCluster{
		engines:  make(map[types.PhysicalID]*Engine),
		groups:   make(map[types.PhysicalID]*group.Registry),
		storages: make(map[types.PhysicalID]*storage.Registry),
		inbox:    make(map[types.PhysicalID]chan func()),
	}

	for i := 0; i < n; i++ {
		self := types.PhysicalID(i)
		topo := topology.New()
		topo.Self().Set(self)
		topo.SetNodes(nodes)

		groups := group.NewRegistry(topo)
		global := groups.Global()
		for j := 0; j < n; j++ {
			global.Join(types.GroupThreadID(j), types.GlobalThreadID(j))
		}

		storages := storage.NewRegistry()
		log := logging.NewDefaultLogger()
		reg := metrics.New()

		selfFn := func(id types.PhysicalID) func() (types.PhysicalID, bool) {
			return func() (types.PhysicalID, bool) { return id, true }
		}(self)

		eng := NewEngine(log, reg, topo, groups, storages, selfFn)
		c.engines[self] = eng
		c.groups[self] = groups
		c.storages[self] = storages
		c.inbox[self] = make(chan func(), 1024)
	}

	for i := 0; i < n; i++ {
		self := types.PhysicalID(i)
		c.engines[self].SetSender(&fakeSender{from: self, cluster: c})
		go c.drain(self)
	}

	t.Cleanup(func() {
		for _, ch := range c.inbox {
			close(ch)
		}
	})

	return c
}

func (c *testCluster) drain(id types.PhysicalID) {
	for fn := range c.inbox[id] {
		fn()
	}
}

type fakeSender struct {
	from    types.PhysicalID
	cluster *testCluster
}

func (s *fakeSender) Send(to types.PhysicalID, msg types.Message) error {
	from := s.from
	eng := s.cluster.engines[to]
	s.cluster.inbox[to] <- func() { eng.Handle(from, msg) }
	return nil
}

func awaitFuture(t *testing.T, f *types.Future) (interface{}, error) {
	t.Helper()
	select {
	case <-f.Done():
		return f.Get()
	case <-time.After(3 * time.Second):
		t.Fatal("future never signaled")
		return nil, nil
	}
}
