package collective

import (
	"sync"
	"testing"

	"github.com/jabolina/pcj/pkg/pcj/types"
)

func TestEngine_ByeDrainsTreeAndCompletesEverywhere(t *testing.T) {
	const n = 4
	c := newTestCluster(t, n)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			fut := c.engines[types.PhysicalID(i)].Bye()
			_, errs[i] = awaitFuture(t, fut)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("node %d: bye failed: %v", i, err)
		}
	}
}
