package runtime

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/jabolina/pcj/pkg/pcj/config"
	"github.com/jabolina/pcj/pkg/pcj/logging"
	"github.com/jabolina/pcj/pkg/pcj/types"
)

func TestRuntime_SnapshotReportsNodeTableAndGroups(t *testing.T) {
	const n = 3
	nodes := bootstrapCluster(t, n)
	defer shutdownAll(t, nodes)

	snap := nodes[0].Snapshot()
	if len(snap.Nodes) != n {
		t.Fatalf("expected %d nodes in snapshot, got %d", n, len(snap.Nodes))
	}
	foundGlobal := false
	for _, g := range snap.Groups {
		if g.Name == "global" {
			foundGlobal = true
			if g.Size != n {
				t.Fatalf("expected global group size %d, got %d", n, g.Size)
			}
		}
	}
	if !foundGlobal {
		t.Fatal("expected the global group to appear in the snapshot")
	}
}

func TestRuntime_DiagnosticsHTTPServesSnapshotAndMetrics(t *testing.T) {
	port := freePort(t)
	opts := Options{
		Hostname:       "127.0.0.1",
		Port:           port,
		TotalThreads:   1,
		LocalThreadIDs: []types.GlobalThreadID{0},
		Config: func() *config.Config {
			c := config.Default(2)
			c.DiagnosticsAddr = "127.0.0.1:" + strconv.Itoa(freePort(t))
			return c
		}(),
		Log: logging.NewDefaultLogger(),
	}
	rt, err := Bootstrap(opts)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer rt.Shutdown()

	time.Sleep(50 * time.Millisecond) // let the diagnostics listener come up

	resp, err := http.Get("http://" + opts.Config.DiagnosticsAddr + "/debug/pcj")
	if err != nil {
		t.Fatalf("GET /debug/pcj: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decoding snapshot JSON: %v", err)
	}
	if snap.Self != 0 {
		t.Fatalf("expected self=0 for a single-node job, got %d", snap.Self)
	}

	metricsResp, err := http.Get("http://" + opts.Config.DiagnosticsAddr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	if metricsResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", metricsResp.StatusCode)
	}
}
