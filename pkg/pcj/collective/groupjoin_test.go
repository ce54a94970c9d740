package collective

import (
	"sync"
	"testing"

	"github.com/jabolina/pcj/pkg/pcj/types"
)

func TestEngine_GroupJoinAssignsFirstSlot(t *testing.T) {
	const n = 3
	c := newTestCluster(t, n)

	joiner := types.PhysicalID(1)
	fut := c.engines[joiner].GroupJoin("workers", types.GlobalThreadID(1))
	v, err := awaitFuture(t, fut)
	if err != nil {
		t.Fatalf("group-join failed: %v", err)
	}
	if v != types.GroupThreadID(0) {
		t.Fatalf("expected first joiner assigned group-thread 0, got %v", v)
	}

	g, err := c.groups[joiner].ByName("workers")
	if err != nil {
		t.Fatalf("joiner does not know about group %q: %v", "workers", err)
	}
	global, err := g.GlobalID(0)
	if err != nil || global != types.GlobalThreadID(1) {
		t.Fatalf("expected group-thread 0 -> global 1, got %v (err=%v)", global, err)
	}
}

func TestEngine_GroupJoinSequentialJoinsGetDistinctSlots(t *testing.T) {
	const n = 3
	c := newTestCluster(t, n)

	first := c.engines[types.PhysicalID(1)].GroupJoin("workers", types.GlobalThreadID(1))
	firstAssigned, err := awaitFuture(t, first)
	if err != nil {
		t.Fatalf("first join failed: %v", err)
	}

	second := c.engines[types.PhysicalID(2)].GroupJoin("workers", types.GlobalThreadID(2))
	secondAssigned, err := awaitFuture(t, second)
	if err != nil {
		t.Fatalf("second join failed: %v", err)
	}

	if firstAssigned == secondAssigned {
		t.Fatalf("expected distinct group-thread-ids, both got %v", firstAssigned)
	}

	g, err := c.groups[types.PhysicalID(2)].ByName("workers")
	if err != nil {
		t.Fatalf("second joiner does not know about group: %v", err)
	}
	if g.Size() != 2 {
		t.Fatalf("expected 2 members visible to the second joiner, got %d", g.Size())
	}
}

func TestEngine_GroupJoinConcurrentJoinsAllComplete(t *testing.T) {
	const n = 10
	c := newTestCluster(t, n)

	futures := make([]*types.Future, n)
	var start sync.WaitGroup
	start.Add(1)
	var launch sync.WaitGroup
	launch.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer launch.Done()
			start.Wait()
			futures[i] = c.engines[types.PhysicalID(i)].GroupJoin("G", types.GlobalThreadID(i))
		}()
	}
	start.Done()
	launch.Wait()

	seen := make(map[types.GroupThreadID]bool, n)
	for i, fut := range futures {
		v, err := awaitFuture(t, fut)
		if err != nil {
			t.Fatalf("join for thread %d failed: %v", i, err)
		}
		assigned := v.(types.GroupThreadID)
		if seen[assigned] {
			t.Fatalf("group-thread-id %v assigned more than once", assigned)
		}
		seen[assigned] = true
		if assigned < 0 || int(assigned) >= n {
			t.Fatalf("group-thread-id %v out of range [0, %d)", assigned, n)
		}
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct group-thread-ids, got %d", n, len(seen))
	}

	g, err := c.groups[types.PhysicalID(0)].ByName("G")
	if err != nil {
		t.Fatalf("coordinator does not know about group %q: %v", "G", err)
	}
	if g.Size() != n {
		t.Fatalf("expected group size %d, got %d", n, g.Size())
	}
}
