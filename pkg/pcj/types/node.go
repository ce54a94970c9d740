package types

import (
	"net"
	"strconv"
)

// Node describes one process participating in the job.
type Node struct {
	Physical PhysicalID
	Hostname string
	Port     int
	// LocalThreads lists the global thread ids whose home is this node.
	LocalThreads []GlobalThreadID
}

// Address returns "host:port" for dialing this node.
func (n Node) Address() string {
	return net.JoinHostPort(n.Hostname, strconv.Itoa(n.Port))
}

// Thread is a logical SPMD execution context. Threads are created at
// bootstrap and never migrate.
type Thread struct {
	Global GlobalThreadID
	Home   PhysicalID
}
