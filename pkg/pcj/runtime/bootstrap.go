package runtime

import (
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-version"

	"github.com/jabolina/pcj/pkg/pcj/collective"
	"github.com/jabolina/pcj/pkg/pcj/core"
	"github.com/jabolina/pcj/pkg/pcj/group"
	"github.com/jabolina/pcj/pkg/pcj/logging"
	"github.com/jabolina/pcj/pkg/pcj/metrics"
	"github.com/jabolina/pcj/pkg/pcj/storage"
	"github.com/jabolina/pcj/pkg/pcj/topology"
	"github.com/jabolina/pcj/pkg/pcj/types"
	"github.com/jabolina/pcj/pkg/pcj/wire"
)

// Runtime is a fully bootstrapped node: mesh connected, engine wired,
// ready to run local threads and serve the façade.
type Runtime struct {
	opts        Options
	log         logging.Logger
	metrics     *metrics.Registry
	topo        *topology.Topology
	groups      *group.Registry
	storages    *storage.Registry
	selector    *core.Selector
	networker   *core.Networker
	engine      *collective.Engine
	live        *core.LivenessChecker
	diagnostics *http.Server
}

// helloCoordinator is node 0's bootstrap-only bookkeeping: which
// peers have announced themselves, how many threads are accounted
// for, and which peers have confirmed their own mesh view is ready.
// Only ever touched by handshake/accept goroutines plus the single
// bootstrap goroutine, so a mutex is enough (no lock-free cleverness
// needed for a phase that runs once, briefly, at startup).
type helloCoordinator struct {
	mutex        sync.Mutex
	self         types.NodeInfo
	peers        map[types.PhysicalID]types.NodeInfo
	threadsSeen  int
	nextID       types.PhysicalID
	meshReady    map[types.PhysicalID]bool
	meshReadyAll chan struct{}
	closed       bool
}

func newHelloCoordinator(self types.NodeInfo) *helloCoordinator {
	return &helloCoordinator{
		self:         self,
		peers:        make(map[types.PhysicalID]types.NodeInfo),
		nextID:       1,
		meshReady:    make(map[types.PhysicalID]bool),
		meshReadyAll: make(chan struct{}),
	}
}

// register assigns the next dense physical id to a newly arrived
// Hello, in arrival order.
func (c *helloCoordinator) register(hello *types.Hello) types.PhysicalID {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	id := c.nextID
	c.nextID++
	c.peers[id] = types.NodeInfo{Physical: id, Hostname: hello.Hostname, Port: hello.Port, LocalThreads: hello.Threads}
	c.threadsSeen += len(hello.Threads)
	return id
}

// quorum reports whether every thread in the job has been accounted
// for: the coordinator's own local threads plus every announced
// peer's threads sum to TotalThreads, known identically to every
// process at launch.
func (c *helloCoordinator) quorum(total int) ([]types.NodeInfo, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.self.LocalThreads)+c.threadsSeen < total {
		return nil, false
	}
	out := make([]types.NodeInfo, 0, len(c.peers)+1)
	out = append(out, c.self)
	for _, n := range c.peers {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Physical < out[j].Physical })
	return out, true
}

func (c *helloCoordinator) markMeshReady(id types.PhysicalID, expected int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}
	c.meshReady[id] = true
	if len(c.meshReady) >= expected {
		c.closed = true
		close(c.meshReadyAll)
	}
}

// toTopologyNodes converts the wire node table (types.NodeInfo, as
// carried by HelloGo) into the types.Node shape topology.Topology
// keeps: the two are field-for-field identical but kept as distinct
// named types since NodeInfo also owns the wire Encode/Decode methods
// a topology node has no business carrying.
func toTopologyNodes(infos []types.NodeInfo) []types.Node {
	out := make([]types.Node, len(infos))
	for i, info := range infos {
		out[i] = types.Node(info)
	}
	return out
}

// compatibleProtocol reports whether a peer-advertised protocol
// version can join this build's mesh: same major version as
// ProtocolVersion, following the usual semver contract that a major
// bump is the breaking-change boundary. An unparseable peer version
// is always rejected.
func compatibleProtocol(peer string) bool {
	local, err := version.NewVersion(ProtocolVersion)
	if err != nil {
		return peer == ProtocolVersion
	}
	peerVersion, err := version.NewVersion(peer)
	if err != nil {
		return false
	}
	return peerVersion.Segments()[0] == local.Segments()[0]
}

// bootstrapHandshake is installed on every node's Selector and
// disambiguates by decoded message kind: a *types.Hello arrives only
// on node 0's listener, from a non-zero node announcing itself for
// the first time; a *types.HelloResponse arrives on any node's
// listener as a mesh-phase peer announcing the physical id it was
// already assigned, reusing the same struct that carries node 0's
// Hello reply since the payload (one PhysicalID) is identical.
type bootstrapHandshake struct {
	log   logging.Logger
	coord *helloCoordinator // nil on non-zero nodes

	// onMeshPeer, when set, is invoked with the physical id of a peer
	// connecting during the mesh phase (every *types.HelloResponse
	// handshake), so the owning node can count accepted inbound
	// connections from higher-id peers before declaring its own mesh
	// view complete.
	onMeshPeer func(types.PhysicalID)
}

func (h *bootstrapHandshake) handshake(conn net.Conn) (types.PhysicalID, error) {
	frame, err := wire.ReadFrame(conn)
	if err != nil {
		return 0, err
	}
	msg, err := types.DecodeFrame(frame)
	if err != nil {
		return 0, err
	}
	switch m := msg.(type) {
	case *types.Hello:
		if h.coord == nil {
			return 0, types.ErrMalformed
		}
		if !compatibleProtocol(m.Protocol) {
			h.log.Errorf("rejecting peer: protocol %q is not compatible with local %q", m.Protocol, ProtocolVersion)
			return 0, types.ErrUnsupportedProtocol
		}
		id := h.coord.register(m)
		reply, err := types.EncodeFrame(&types.HelloResponse{Assigned: id})
		if err != nil {
			return 0, err
		}
		if err := wire.WriteFrame(conn, reply); err != nil {
			return 0, err
		}
		return id, nil
	case *types.HelloResponse:
		if h.onMeshPeer != nil {
			h.onMeshPeer(m.Assigned)
		}
		return m.Assigned, nil
	default:
		return 0, types.ErrMalformed
	}
}

// meshWaiter lets a follower block sending its mesh-ready signal until
// every peer with a higher physical id has dialed in. The expected
// count isn't known until HelloGo arrives, so peerConnected and
// setExpected race each other freely; whichever observes the
// condition satisfied closes ready exactly once.
type meshWaiter struct {
	mutex    sync.Mutex
	seen     map[types.PhysicalID]bool
	expected int
	ready    chan struct{}
	closed   bool
}

func newMeshWaiter() *meshWaiter {
	return &meshWaiter{seen: make(map[types.PhysicalID]bool), expected: -1, ready: make(chan struct{})}
}

func (w *meshWaiter) peerConnected(id types.PhysicalID) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.seen[id] = true
	w.checkLocked()
}

func (w *meshWaiter) setExpected(n int) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.expected = n
	w.checkLocked()
}

func (w *meshWaiter) checkLocked() {
	if w.closed || w.expected < 0 {
		return
	}
	if len(w.seen) >= w.expected {
		w.closed = true
		close(w.ready)
	}
}

// Bootstrap runs the Hello/HelloGo/HelloCompleted exchange and
// returns a fully mesh-connected Runtime, or an error if the mesh
// could not be formed within bootstrapDeadline.
func Bootstrap(opts Options) (*Runtime, error) {
	log := opts.Log
	if log == nil {
		log = logging.NewWithLevel(opts.Config.LogLevel)
	}
	metricsReg := metrics.New()
	topo := topology.New()

	deadline := time.Now().Add(bootstrapDeadline)

	failure := func(peer types.PhysicalID, err error) {
		log.Errorf("peer %d connection failed: %v", peer, err)
	}
	selector := core.NewSelector(log, metricsReg, failure)

	var rt *Runtime
	var err error
	if opts.IsCoordinator() {
		rt, err = bootstrapCoordinator(opts, log, metricsReg, topo, selector, deadline)
	} else {
		rt, err = bootstrapFollower(opts, log, metricsReg, topo, selector, deadline)
	}
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func bootstrapCoordinator(opts Options, log logging.Logger, metricsReg *metrics.Registry, topo *topology.Topology, selector *core.Selector, deadline time.Time) (*Runtime, error) {
	topo.Self().Set(0)
	self := types.NodeInfo{Physical: 0, Hostname: opts.Hostname, Port: opts.Port, LocalThreads: opts.LocalThreadIDs}
	coord := newHelloCoordinator(self)

	hs := &bootstrapHandshake{log: log, coord: coord}
	selector.AcceptWith(hs.handshake)
	if _, err := selector.Bind(opts.selfAddr()); err != nil {
		return nil, fmt.Errorf("bind %s: %w", opts.selfAddr(), err)
	}

	var nodes []types.NodeInfo
	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("bootstrap: timed out waiting for %d threads to announce", opts.TotalThreads)
		}
		var ready bool
		nodes, ready = coord.quorum(opts.TotalThreads)
		if ready {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	topo.SetNodes(toTopologyNodes(nodes))

	goFrame, err := types.EncodeFrame(&types.HelloGo{Nodes: nodes})
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Physical == 0 {
			continue
		}
		if err := selector.WriteMessage(n.Physical, goFrame); err != nil {
			return nil, fmt.Errorf("sending HelloGo to %d: %w", n.Physical, err)
		}
	}

	// Node 0 is physical id 0, the lowest: it has no lower-id peers to
	// dial, so its own mesh view is complete the instant HelloGo is
	// sent. It still must learn that every *other* node finished
	// building its half of the mesh (dialing every lower id, being
	// dialed by every higher id) before declaring HelloCompleted —
	// each follower signals that by sending a second, otherwise-empty
	// Hello back over its original connection to node 0.
	expected := len(nodes) - 1
	go drainMeshReadySignals(selector, coord, expected, log)
	select {
	case <-coord.meshReadyAll:
	case <-time.After(time.Until(deadline)):
		return nil, fmt.Errorf("bootstrap: timed out waiting for mesh-ready confirmations")
	}

	completedFrame, err := types.EncodeFrame(&types.HelloCompleted{})
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Physical == 0 {
			continue
		}
		if err := selector.WriteMessage(n.Physical, completedFrame); err != nil {
			return nil, fmt.Errorf("sending HelloCompleted to %d: %w", n.Physical, err)
		}
	}

	return finishBootstrap(opts, log, metricsReg, topo, selector, nodes)
}

// drainMeshReadySignals reads node 0's inbound channel directly,
// before any Networker exists to claim it, counting the sentinel
// Hello each follower sends once its own mesh view is complete.
func drainMeshReadySignals(selector *core.Selector, coord *helloCoordinator, expected int, log logging.Logger) {
	for raw := range selector.Inbound() {
		msg, err := types.DecodeFrame(raw.Frame)
		if err != nil {
			log.Warnf("bootstrap: malformed frame from %d: %v", raw.From, err)
			continue
		}
		if _, ok := msg.(*types.Hello); !ok {
			log.Warnf("bootstrap: unexpected %s from %d during mesh-ready wait", msg.Kind(), raw.From)
			continue
		}
		coord.markMeshReady(raw.From, expected)
		select {
		case <-coord.meshReadyAll:
			return
		default:
		}
	}
}

func bootstrapFollower(opts Options, log logging.Logger, metricsReg *metrics.Registry, topo *topology.Topology, selector *core.Selector, deadline time.Time) (*Runtime, error) {
	waiter := newMeshWaiter()
	hs := &bootstrapHandshake{log: log, onMeshPeer: waiter.peerConnected}
	selector.AcceptWith(hs.handshake)
	if _, err := selector.Bind(opts.selfAddr()); err != nil {
		return nil, fmt.Errorf("bind %s: %w", opts.selfAddr(), err)
	}

	hello, err := types.EncodeFrame(&types.Hello{Hostname: opts.Hostname, Port: opts.Port, Threads: opts.LocalThreadIDs, Protocol: ProtocolVersion})
	if err != nil {
		return nil, err
	}
	if err := selector.ConnectTo(0, opts.node0Addr(), hello.Encode()); err != nil {
		return nil, fmt.Errorf("connecting to node 0 at %s: %w", opts.node0Addr(), err)
	}

	var self types.PhysicalID
	var nodes []types.NodeInfo
	inbound := selector.Inbound()
	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("bootstrap: timed out waiting for node 0")
		}
		select {
		case raw := <-inbound:
			msg, err := types.DecodeFrame(raw.Frame)
			if err != nil {
				return nil, fmt.Errorf("bootstrap: malformed frame from node 0: %w", err)
			}
			switch m := msg.(type) {
			case *types.HelloResponse:
				self = m.Assigned
				topo.Self().Set(self)
			case *types.HelloGo:
				nodes = m.Nodes
				topo.SetNodes(toTopologyNodes(nodes))
			}
		case <-time.After(time.Until(deadline)):
			return nil, fmt.Errorf("bootstrap: timed out waiting for node 0")
		}
		if self != 0 && nodes != nil {
			break
		}
		// self == 0 is indistinguishable from "not yet assigned" only
		// before HelloResponse arrives; once nodes != nil, self has
		// always already been set (HelloResponse always precedes
		// HelloGo on the same connection, per the selector's per-socket
		// FIFO delivery guarantee).
	}

	if err := connectMesh(selector, self, nodes); err != nil {
		return nil, err
	}

	higher := 0
	for _, n := range nodes {
		if n.Physical > self {
			higher++
		}
	}
	waiter.setExpected(higher)
	select {
	case <-waiter.ready:
	case <-time.After(time.Until(deadline)):
		return nil, fmt.Errorf("bootstrap: timed out waiting for %d higher-id peers to connect", higher)
	}

	readyFrame, err := types.EncodeFrame(&types.Hello{})
	if err != nil {
		return nil, err
	}
	if err := selector.WriteMessage(0, readyFrame); err != nil {
		return nil, fmt.Errorf("signaling mesh-ready to node 0: %w", err)
	}

	for {
		select {
		case raw := <-inbound:
			msg, err := types.DecodeFrame(raw.Frame)
			if err != nil {
				return nil, fmt.Errorf("bootstrap: malformed frame: %w", err)
			}
			if _, ok := msg.(*types.HelloCompleted); ok {
				return finishBootstrap(opts, log, metricsReg, topo, selector, nodes)
			}
		case <-time.After(time.Until(deadline)):
			return nil, fmt.Errorf("bootstrap: timed out waiting for HelloCompleted")
		}
	}
}

// connectMesh dials every peer with a lower physical id than self
// (the higher side always initiates); connections to higher ids
// arrive passively through the already-installed accept handshake.
func connectMesh(selector *core.Selector, self types.PhysicalID, nodes []types.NodeInfo) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(nodes))
	for _, n := range nodes {
		if n.Physical >= self || n.Physical == 0 {
			continue // id 0 is already connected from the Hello phase
		}
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			announce, err := types.EncodeFrame(&types.HelloResponse{Assigned: self})
			if err != nil {
				errs <- err
				return
			}
			addr := fmt.Sprintf("%s:%d", n.Hostname, n.Port)
			if err := selector.ConnectTo(n.Physical, addr, announce.Encode()); err != nil {
				errs <- fmt.Errorf("connecting to peer %d at %s: %w", n.Physical, addr, err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func finishBootstrap(opts Options, log logging.Logger, metricsReg *metrics.Registry, topo *topology.Topology, selector *core.Selector, nodes []types.NodeInfo) (*Runtime, error) {
	groups := group.NewRegistry(topo)
	global := groups.Global()
	// Every node computes the identical global-group join order
	// (ascending global thread id) from the identical node table
	// HelloGo delivered, so no coordinator round is needed for group
	// 0's membership specifically, unlike a user group-join.
	var allThreads []types.GlobalThreadID
	for _, n := range nodes {
		allThreads = append(allThreads, n.LocalThreads...)
	}
	sort.Slice(allThreads, func(i, j int) bool { return allThreads[i] < allThreads[j] })
	for i, th := range allThreads {
		global.Join(types.GroupThreadID(i), th)
	}

	storages := storage.NewRegistry()
	selfFn := topo.Self().Get
	engine := collective.NewEngine(log, metricsReg, topo, groups, storages, selfFn)
	networker := core.NewNetworker(log, metricsReg, selector, opts.Config.NetworkWorkersCount, selfFn)
	networker.SetHandler(engine)
	engine.SetSender(networker)

	live := core.NewLivenessChecker(selector, opts.Config.AliveTimeout, log)
	live.Start()

	self, _ := selfFn()
	log.Infof("node %d bootstrapped: %d peers, %d local threads", self, len(nodes)-1, len(opts.LocalThreadIDs))

	rt := &Runtime{
		opts:      opts,
		log:       log,
		metrics:   metricsReg,
		topo:      topo,
		groups:    groups,
		storages:  storages,
		selector:  selector,
		networker: networker,
		engine:    engine,
		live:      live,
	}
	rt.startDiagnostics()
	return rt, nil
}
