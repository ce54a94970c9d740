package collective

import (
	"sync"
	"testing"

	"github.com/jabolina/pcj/pkg/pcj/types"
)

func TestEngine_CollectOrdersByGroupThreadID(t *testing.T) {
	const n = 4
	c := newTestCluster(t, n)

	var wg sync.WaitGroup
	results := make([]interface{}, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := c.groups[types.PhysicalID(i)].Global()
			self := types.GlobalThreadID(i)
			fut, err := c.engines[types.PhysicalID(i)].Collect(g, self, "vars", "rank", i*10)
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = awaitFuture(t, fut)
		}()
	}
	wg.Wait()

	want := []int64{0, 10, 20, 30}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("node %d: collect failed: %v", i, err)
		}
		got, ok := results[i].([]interface{})
		if !ok {
			t.Fatalf("node %d: expected []interface{}, got %T", i, results[i])
		}
		if len(got) != len(want) {
			t.Fatalf("node %d: expected %d entries, got %d", i, len(want), len(got))
		}
		// Entries that never left this process keep their original int
		// type; entries folded in from another node decode as int64 (the
		// wire codec's canonical integer type), so normalize before
		// comparing order.
		for j, v := range got {
			if asInt64(v) != want[j] {
				t.Fatalf("node %d: entry %d: expected %d, got %v (%T)", i, j, want[j], v, v)
			}
		}
	}
}
