package main

import (
	"encoding/json"
	"testing"
)

func TestSnapshotDecodesRuntimeJSONShape(t *testing.T) {
	raw := `{
		"self": 0,
		"nodes": [{"physical": 0, "hostname": "127.0.0.1", "port": 4000, "localThreads": [0]}],
		"groups": [{"id": 0, "name": "global", "size": 1, "treeMaster": 0, "treeMembers": [0]}],
		"pending": {"Barriers": 0, "Broadcasts": 0, "Reduces": 0, "Collects": 0, "Joins": 0, "PointToPoint": 0, "ByePending": false}
	}`
	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if len(snap.Nodes) != 1 || snap.Nodes[0].Hostname != "127.0.0.1" {
		t.Fatalf("unexpected nodes: %+v", snap.Nodes)
	}
	if len(snap.Groups) != 1 || snap.Groups[0].Name != "global" {
		t.Fatalf("unexpected groups: %+v", snap.Groups)
	}
	// printSnapshot must not panic on a well-formed snapshot.
	printSnapshot(snap)
}
