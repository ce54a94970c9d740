package collective

import (
	"sync"
	"testing"

	"github.com/jabolina/pcj/pkg/pcj/types"
)

func TestEngine_BarrierReleasesEveryNodeOnce(t *testing.T) {
	const n = 4
	c := newTestCluster(t, n)

	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := c.groups[types.PhysicalID(i)].Global()
			fut := c.engines[types.PhysicalID(i)].Barrier(g)
			_, err := awaitFuture(t, fut)
			results[i] = err
		}()
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Fatalf("node %d: barrier failed: %v", i, err)
		}
	}
}

func TestEngine_BarrierRoundsAreIndependent(t *testing.T) {
	const n = 3
	c := newTestCluster(t, n)

	for round := 0; round < 2; round++ {
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				g := c.groups[types.PhysicalID(i)].Global()
				fut := c.engines[types.PhysicalID(i)].Barrier(g)
				if _, err := awaitFuture(t, fut); err != nil {
					t.Errorf("round %d node %d: %v", round, i, err)
				}
			}()
		}
		wg.Wait()
	}
}
