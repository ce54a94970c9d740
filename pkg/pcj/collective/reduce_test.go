package collective

import (
	"sync"
	"testing"

	"github.com/jabolina/pcj/pkg/pcj/storage"
	"github.com/jabolina/pcj/pkg/pcj/types"
)

// sumInts tolerates both int (a value that has never left this
// process) and int64 (a value that round-tripped through the wire
// codec, which always decodes integers as int64) since a fold may
// combine a just-arrived local value with an already-decoded one from
// a child.
func sumInts(current, incoming interface{}) interface{} {
	return asInt64(current) + asInt64(incoming)
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int64:
		return t
	default:
		return 0
	}
}

func TestEngine_ReduceSumsAcrossNodes(t *testing.T) {
	const n = 4
	c := newTestCluster(t, n)
	for i := 0; i < n; i++ {
		c.engines[types.PhysicalID(i)].RegisterAccumulator("vars", "total", storage.AccumulateFunc(sumInts))
	}

	var wg sync.WaitGroup
	results := make([]interface{}, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := c.groups[types.PhysicalID(i)].Global()
			fut := c.engines[types.PhysicalID(i)].Reduce(g, "vars", "total", i+1)
			results[i], errs[i] = awaitFuture(t, fut)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("node %d: reduce failed: %v", i, err)
		}
		if results[i] != int64(10) { // 1+2+3+4
			t.Fatalf("node %d: expected sum 10, got %v (%T)", i, results[i], results[i])
		}
	}
}
