package group

import (
	"testing"

	"github.com/jabolina/pcj/pkg/pcj/topology"
	"github.com/jabolina/pcj/pkg/pcj/types"
)

func twoNodeTopology() *topology.Topology {
	topo := topology.New()
	topo.Self().Set(0)
	topo.SetNodes([]types.Node{
		{Physical: 0, Hostname: "h0", Port: 1, LocalThreads: []types.GlobalThreadID{0, 1}},
		{Physical: 1, Hostname: "h1", Port: 2, LocalThreads: []types.GlobalThreadID{2, 3}},
	})
	return topo
}

func TestGroup_GlobalIDRoundTripsThroughGroupThreadID(t *testing.T) {
	topo := twoNodeTopology()
	g := New(1, "G", topo)
	g.Join(0, 2)
	g.Join(1, 3)
	g.Join(2, 0)

	for _, global := range []types.GlobalThreadID{2, 3, 0} {
		gt, err := g.GroupThreadID(global)
		if err != nil {
			t.Fatalf("GroupThreadID(%d): %v", global, err)
		}
		back, err := g.GlobalID(gt)
		if err != nil {
			t.Fatalf("GlobalID(%d): %v", gt, err)
		}
		if back != global {
			t.Fatalf("round trip mismatch: %d -> %d -> %d", global, gt, back)
		}
	}
}

func TestGroup_UnknownGroupThreadFails(t *testing.T) {
	topo := twoNodeTopology()
	g := New(1, "G", topo)
	if _, err := g.GlobalID(99); !types.Is(err, types.ErrKindUnknownThread) {
		t.Fatalf("expected UnknownThread, got %v", err)
	}
}

func TestGroup_TreeRecomputesOnJoin(t *testing.T) {
	topo := twoNodeTopology()
	g := New(1, "G", topo)
	g.Join(0, 2) // homed on physical 1
	tree := g.Tree()
	if tree.Size() != 2 {
		t.Fatalf("expected master(0) + member(1), got size %d", tree.Size())
	}
	if !tree.IsMaster(0) {
		t.Fatal("physical 0 must always be master")
	}
}
