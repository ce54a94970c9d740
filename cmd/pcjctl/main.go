// Command pcjctl is a read-only operator tool for a running pcjnode
// process: it polls the diagnostics HTTP surface (pkg/pcj/runtime's
// /debug/pcj endpoint, bound at pcj.diagnostics.addr) and prints a
// human-readable summary. It never sends collective traffic itself.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
)

var (
	addr = kingpin.Flag("addr", "diagnostics address of a running pcjnode, e.g. 127.0.0.1:9100").Required().String()
)

// nodeSnapshot/groupSnapshot/snapshot mirror runtime.NodeSnapshot/
// GroupSnapshot/Snapshot's JSON shape. Decoded independently rather
// than importing the runtime package, since pcjctl is deliberately a
// standalone client of the wire format, not a library consumer of it.
type nodeSnapshot struct {
	Physical     int    `json:"physical"`
	Hostname     string `json:"hostname"`
	Port         int    `json:"port"`
	LocalThreads []int  `json:"localThreads"`
}

type groupSnapshot struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Size        int    `json:"size"`
	TreeMaster  int    `json:"treeMaster"`
	TreeMembers []int  `json:"treeMembers"`
}

type pendingCounts struct {
	Barriers     int  `json:"Barriers"`
	Broadcasts   int  `json:"Broadcasts"`
	Reduces      int  `json:"Reduces"`
	Collects     int  `json:"Collects"`
	Joins        int  `json:"Joins"`
	PointToPoint int  `json:"PointToPoint"`
	ByePending   bool `json:"ByePending"`
}

type snapshot struct {
	Self    int             `json:"self"`
	Nodes   []nodeSnapshot  `json:"nodes"`
	Groups  []groupSnapshot `json:"groups"`
	Pending pendingCounts   `json:"pending"`
}

func main() {
	kingpin.Parse()

	resp, err := http.Get("http://" + *addr + "/debug/pcj")
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("pcjctl: %v", err))
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintln(os.Stderr, color.RedString("pcjctl: unexpected status %s", resp.Status))
		os.Exit(1)
	}

	var snap snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("pcjctl: decoding snapshot: %v", err))
		os.Exit(1)
	}

	printSnapshot(snap)
}

func printSnapshot(snap snapshot) {
	bold := color.New(color.Bold)
	bold.Printf("node %d\n", snap.Self)

	bold.Println("nodes:")
	for _, n := range snap.Nodes {
		marker := " "
		if n.Physical == snap.Self {
			marker = color.GreenString("*")
		}
		fmt.Printf(" %s %d  %s:%d  threads=%v\n", marker, n.Physical, n.Hostname, n.Port, n.LocalThreads)
	}

	bold.Println("groups:")
	for _, g := range snap.Groups {
		fmt.Printf("   %-12s id=%-3d size=%-3d master=%-3d members=%v\n", g.Name, g.ID, g.Size, g.TreeMaster, g.TreeMembers)
	}

	bold.Println("pending requests:")
	fmt.Printf("   barriers=%d broadcasts=%d reduces=%d collects=%d joins=%d point-to-point=%d\n",
		snap.Pending.Barriers, snap.Pending.Broadcasts, snap.Pending.Reduces, snap.Pending.Collects, snap.Pending.Joins, snap.Pending.PointToPoint)
	if snap.Pending.ByePending {
		fmt.Println(color.YellowString("   shutdown (bye) in progress"))
	}
}
