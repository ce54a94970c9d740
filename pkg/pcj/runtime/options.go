// Package runtime assembles the wire codec, selector, networker,
// group/topology registries and collective engine into a running
// node: it drives the Hello/HelloGo/HelloCompleted bootstrap exchange,
// then exposes the façade a user entry point calls (Barrier,
// Broadcast, Reduce, Collect, Get, Put, Accumulate, AsyncAt,
// GroupJoin) and coordinates shutdown via the bye tree.
package runtime

import (
	"fmt"
	"time"

	"github.com/jabolina/pcj/pkg/pcj/config"
	"github.com/jabolina/pcj/pkg/pcj/logging"
	"github.com/jabolina/pcj/pkg/pcj/types"
)

// Options is the resolved set of values a process is launched with:
// local listen port, node 0's address (empty if this process is node
// 0), the total thread count across the job, and the global thread
// ids homed locally. Resolving a named entry point to a Go function is
// left to cmd/pcjnode, which links it at compile time instead of
// loading it by name.
type Options struct {
	Hostname       string
	Port           int
	Node0Host      string
	Node0Port      int
	TotalThreads   int
	LocalThreadIDs []types.GlobalThreadID
	Config         *config.Config
	Log            logging.Logger
}

// IsCoordinator reports whether this process is node 0: the one with
// no node0Host/Port to dial.
func (o Options) IsCoordinator() bool { return o.Node0Host == "" }

func (o Options) node0Addr() string {
	return fmt.Sprintf("%s:%d", o.Node0Host, o.Node0Port)
}

func (o Options) selfAddr() string {
	return fmt.Sprintf(":%d", o.Port)
}

// ProtocolVersion is this build's wire protocol version, sent in the
// initial Hello and checked by node 0 before assigning a physical id.
const ProtocolVersion = "1.0.0"

// bootstrapDeadline bounds how long mesh construction may take before
// the process gives up and exits non-zero with a network failure.
// Generous and fixed rather than configurable — the only configurable
// timeout here is the shutdown grace period
// (pcj.network.shutdown.timeout).
const bootstrapDeadline = 60 * time.Second
