package runtime

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jabolina/pcj/pkg/pcj/collective"
	"github.com/jabolina/pcj/pkg/pcj/types"
)

// NodeSnapshot is one row of the diagnostics node table.
type NodeSnapshot struct {
	Physical     types.PhysicalID       `json:"physical"`
	Hostname     string                 `json:"hostname"`
	Port         int                    `json:"port"`
	LocalThreads []types.GlobalThreadID `json:"localThreads"`
}

// GroupSnapshot describes one group's membership and tree shape.
type GroupSnapshot struct {
	ID          types.GroupID      `json:"id"`
	Name        string             `json:"name"`
	Size        int                `json:"size"`
	TreeMaster  types.PhysicalID   `json:"treeMaster"`
	TreeMembers []types.PhysicalID `json:"treeMembers"`
}

// Snapshot is the complete, read-only diagnostics surface: node table,
// per-group tree shape, pending request-table sizes. Never blocks on
// or mutates collective state.
type Snapshot struct {
	Self    types.PhysicalID         `json:"self"`
	Nodes   []NodeSnapshot           `json:"nodes"`
	Groups  []GroupSnapshot          `json:"groups"`
	Pending collective.PendingCounts `json:"pending"`
}

// Snapshot builds a point-in-time diagnostics view: a direct
// lock-protected read against live state, never a protocol round-trip.
func (rt *Runtime) Snapshot() Snapshot {
	self, _ := rt.topo.Self().Get()

	nodes := rt.topo.Nodes()
	nodeSnaps := make([]NodeSnapshot, len(nodes))
	for i, n := range nodes {
		nodeSnaps[i] = NodeSnapshot{Physical: n.Physical, Hostname: n.Hostname, Port: n.Port, LocalThreads: n.LocalThreads}
	}

	groups := rt.groups.All()
	groupSnaps := make([]GroupSnapshot, 0, len(groups))
	for _, g := range groups {
		tree := g.Tree()
		snap := GroupSnapshot{ID: g.ID(), Name: g.Name(), Size: g.Size()}
		if tree != nil {
			snap.TreeMaster = tree.Master()
			snap.TreeMembers = tree.Members()
		}
		groupSnaps = append(groupSnaps, snap)
	}

	return Snapshot{
		Self:    self,
		Nodes:   nodeSnaps,
		Groups:  groupSnaps,
		Pending: rt.engine.Diagnostics(),
	}
}

// startDiagnostics binds the read-only diagnostics HTTP listener named
// by pcj.diagnostics.addr, serving Prometheus exposition at /metrics
// and the JSON Snapshot at /debug/pcj. A blank address (the default)
// disables it entirely; neither endpoint is part of the collective
// protocol and neither ever blocks a collective in flight.
func (rt *Runtime) startDiagnostics() {
	addr := rt.opts.Config.DiagnosticsAddr
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/debug/pcj", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rt.Snapshot()); err != nil {
			rt.log.Warnf("diagnostics: encoding snapshot: %v", err)
		}
	})
	server := &http.Server{Addr: addr, Handler: mux}
	rt.diagnostics = server
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rt.log.Warnf("diagnostics: listener on %s stopped: %v", addr, err)
		}
	}()
	rt.log.Infof("diagnostics listening on %s", addr)
}

// stopDiagnostics shuts the diagnostics listener down, if one was
// started.
func (rt *Runtime) stopDiagnostics() {
	if rt.diagnostics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), rt.opts.Config.NetworkShutdownTimeout)
	defer cancel()
	if err := rt.diagnostics.Shutdown(ctx); err != nil {
		rt.log.Warnf("diagnostics: shutdown: %v", err)
	}
}
