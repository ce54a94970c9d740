package collective

import (
	"testing"
	"time"

	"github.com/jabolina/pcj/pkg/pcj/types"
)

func TestEngine_BroadcastAppliesToEveryNode(t *testing.T) {
	const n = 4
	c := newTestCluster(t, n)

	requester := types.PhysicalID(2)
	g := c.groups[requester].Global()
	fut, err := c.engines[requester].Broadcast(g, "vars", "x", "hello")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if _, err := awaitFuture(t, fut); err != nil {
		t.Fatalf("broadcast future failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		thread := types.GlobalThreadID(i)
		for {
			v, err := c.storages[types.PhysicalID(i)].ForThread(thread).Get("vars", "x")
			if err == nil {
				if v != "hello" {
					t.Fatalf("node %d: expected \"hello\", got %v", i, v)
				}
				break
			}
			select {
			case <-deadline:
				t.Fatalf("node %d: broadcast never applied: %v", i, err)
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}
