// Package collective implements the tree-shaped collective state
// engine: barrier, broadcast, reduce, collect, group-join, get/put/
// accumulate/asyncAt, and the bye shutdown tree. Every operation is
// identified by (group, kind, requestNum, requester) per the data
// model, and a request's table entry is removed exactly once, when
// its future is signaled.
package collective

import (
	"sync"
	"sync/atomic"

	"github.com/jabolina/pcj/pkg/pcj/group"
	"github.com/jabolina/pcj/pkg/pcj/logging"
	"github.com/jabolina/pcj/pkg/pcj/metrics"
	"github.com/jabolina/pcj/pkg/pcj/storage"
	"github.com/jabolina/pcj/pkg/pcj/topology"
	"github.com/jabolina/pcj/pkg/pcj/types"
)

// Sender delivers a message to a physical node, short-circuiting
// loopback for sends to this process itself. Satisfied by
// *core.Networker; kept as an interface here so the engine can be
// exercised in tests without a real socket.
type Sender interface {
	Send(to types.PhysicalID, msg types.Message) error
}

// reqKey identifies one in-flight collective request table entry.
type reqKey struct {
	group types.GroupID
	req   types.RequestNum
}

// Engine owns every per-group request table and dispatches inbound
// collective messages to the table that understands them. One Engine
// per process; it is the core.Handler installed on the Networker.
type Engine struct {
	log      logging.Logger
	metrics  *metrics.Registry
	topo     *topology.Topology
	groups   *group.Registry
	storages *storage.Registry
	sender   Sender
	self     func() (types.PhysicalID, bool)

	barrierMu    sync.Mutex
	barriers     map[reqKey]*barrierState
	barrierRound map[types.GroupID]types.RequestNum

	broadcastMu      sync.Mutex
	broadcasts       map[reqKey]*broadcastState
	broadcastFutures map[reqKey]*types.Future

	reduceMu       sync.Mutex
	reduces        map[reqKey]*reduceState
	reduceRoundFor map[types.GroupID]types.RequestNum

	collectMu       sync.Mutex
	collects        map[reqKey]*collectState
	collectRoundFor map[types.GroupID]types.RequestNum

	joinMu    sync.Mutex
	joins     map[string]*joinMasterState
	joinQueue map[string][]pendingJoinRequest
	joinWait  map[joinWaitKey]*types.Future

	ptpMu      sync.Mutex
	ptp        map[types.RequestNum]*ptpState
	ptpCounter uint64

	accMu        sync.Mutex
	accumulators map[string]storage.AccumulateFunc

	opMu       sync.Mutex
	operations map[string]OperationFunc

	byeMu   sync.Mutex
	bye     *byeState
	byeWait *types.Future
}

// OperationFunc is a user-registered AsyncAt handler, resolved by name
// on the target thread's home node.
type OperationFunc func(payload []byte) ([]byte, error)

// PendingCounts is a point-in-time snapshot of how many requests are
// in flight per collective kind, for the diagnostics surface. A direct
// lock-protected read against live state, no protocol round-trip.
type PendingCounts struct {
	Barriers     int
	Broadcasts   int
	Reduces      int
	Collects     int
	Joins        int
	PointToPoint int
	ByePending   bool
}

// Diagnostics returns a snapshot of this engine's in-flight request
// tables. Safe to call from any goroutine; never blocks on or mutates
// collective state.
func (e *Engine) Diagnostics() PendingCounts {
	e.barrierMu.Lock()
	barriers := len(e.barriers)
	e.barrierMu.Unlock()

	e.broadcastMu.Lock()
	broadcasts := len(e.broadcasts)
	e.broadcastMu.Unlock()

	e.reduceMu.Lock()
	reduces := len(e.reduces)
	e.reduceMu.Unlock()

	e.collectMu.Lock()
	collects := len(e.collects)
	e.collectMu.Unlock()

	e.joinMu.Lock()
	joins := len(e.joins)
	e.joinMu.Unlock()

	e.ptpMu.Lock()
	ptp := len(e.ptp)
	e.ptpMu.Unlock()

	e.byeMu.Lock()
	st := e.bye
	e.byeMu.Unlock()
	byePending := false
	if st != nil {
		st.mutex.Lock()
		byePending = !st.done
		st.mutex.Unlock()
	}

	return PendingCounts{
		Barriers:     barriers,
		Broadcasts:   broadcasts,
		Reduces:      reduces,
		Collects:     collects,
		Joins:        joins,
		PointToPoint: ptp,
		ByePending:   byePending,
	}
}

// NewEngine wires an Engine over the process topology, group registry,
// and per-thread storage registry. SetSender must be called once the
// Networker exists (the two are constructed in bootstrap order:
// Networker needs a Handler, Handler needs a Sender that is the same
// Networker).
func NewEngine(log logging.Logger, reg *metrics.Registry, topo *topology.Topology, groups *group.Registry, storages *storage.Registry, self func() (types.PhysicalID, bool)) *Engine {
	return &Engine{
		log:          log,
		metrics:      reg,
		topo:         topo,
		groups:       groups,
		storages:     storages,
		self:         self,
		barriers:     make(map[reqKey]*barrierState),
		barrierRound: make(map[types.GroupID]types.RequestNum),
		broadcasts:       make(map[reqKey]*broadcastState),
		broadcastFutures: make(map[reqKey]*types.Future),
		reduces:        make(map[reqKey]*reduceState),
		reduceRoundFor: make(map[types.GroupID]types.RequestNum),
		collects:        make(map[reqKey]*collectState),
		collectRoundFor: make(map[types.GroupID]types.RequestNum),
		joins:        make(map[string]*joinMasterState),
		joinQueue:    make(map[string][]pendingJoinRequest),
		joinWait:     make(map[joinWaitKey]*types.Future),
		ptp:          make(map[types.RequestNum]*ptpState),
		accumulators: make(map[string]storage.AccumulateFunc),
		operations:   make(map[string]OperationFunc),
	}
}

// SetSender installs the message sender. Must be called before Handle
// can process anything that forwards up or down a tree.
func (e *Engine) SetSender(s Sender) { e.sender = s }

// RegisterAccumulator names the associative combine function used by
// Accumulate on (storageName, name). Must be registered identically on
// every node before any Accumulate targeting that variable runs.
func (e *Engine) RegisterAccumulator(storageName, name string, fn storage.AccumulateFunc) {
	e.accMu.Lock()
	defer e.accMu.Unlock()
	e.accumulators[accKey(storageName, name)] = fn
}

func (e *Engine) accumulatorFor(storageName, name string) (storage.AccumulateFunc, bool) {
	e.accMu.Lock()
	defer e.accMu.Unlock()
	fn, ok := e.accumulators[accKey(storageName, name)]
	return fn, ok
}

func accKey(storageName, name string) string { return storageName + "\x00" + name }

// RegisterOperation names an AsyncAt handler. Must be registered
// identically on every node before any AsyncAt targeting it runs.
func (e *Engine) RegisterOperation(name string, fn OperationFunc) {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.operations[name] = fn
}

func (e *Engine) operationFor(name string) (OperationFunc, bool) {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	fn, ok := e.operations[name]
	return fn, ok
}

// Handle implements core.Handler, dispatching by message kind.
func (e *Engine) Handle(from types.PhysicalID, m types.Message) {
	switch msg := m.(type) {
	case *types.BarrierGo:
		e.handleBarrierGo(from, msg)
	case *types.BarrierWaitingBytes:
		e.handleBarrierWaitingBytes(from, msg)
	case *types.BroadcastRequest:
		e.handleBroadcastRequest(from, msg)
	case *types.BroadcastInform:
		e.handleBroadcastInform(from, msg)
	case *types.BroadcastBytes:
		e.handleBroadcastBytes(from, msg)
	case *types.ReduceRequest:
		e.handleReduceRequest(from, msg)
	case *types.ReduceValueBytes:
		e.handleReduceValueBytes(from, msg)
	case *types.CollectRequest:
		e.handleCollectRequest(from, msg)
	case *types.CollectValueBytes:
		e.handleCollectValueBytes(from, msg)
	case *types.GroupJoinRequest:
		e.handleGroupJoinRequest(from, msg)
	case *types.GroupJoinInform:
		e.handleGroupJoinInform(from, msg)
	case *types.GroupJoinConfirm:
		e.handleGroupJoinConfirm(from, msg)
	case *types.GroupJoinResponse:
		e.handleGroupJoinResponse(from, msg)
	case *types.GetRequest:
		e.handleGetRequest(from, msg)
	case *types.GetReply:
		e.handleGetReply(from, msg)
	case *types.PutRequest:
		e.handlePutRequest(from, msg)
	case *types.PutReply:
		e.handlePutReply(from, msg)
	case *types.AccumulateRequest:
		e.handleAccumulateRequest(from, msg)
	case *types.AccumulateReply:
		e.handleAccumulateReply(from, msg)
	case *types.AsyncAtRequest:
		e.handleAsyncAtRequest(from, msg)
	case *types.AsyncAtReply:
		e.handleAsyncAtReply(from, msg)
	case *types.Bye:
		e.handleBye(from, msg)
	case *types.ByeCompleted:
		e.handleByeCompleted(from, msg)
	default:
		e.log.Warnf("collective engine: no handler for %T from %d", m, from)
	}
}

func (e *Engine) send(to types.PhysicalID, m types.Message) {
	if err := e.sender.Send(to, m); err != nil {
		e.log.Errorf("send %s to %d failed: %v", m.Kind(), to, err)
	}
}

func (e *Engine) selfID() types.PhysicalID {
	id, _ := e.self()
	return id
}

// nextReq produces the process-wide unique request number used to
// correlate a point-to-point (get/put/accumulate/asyncAt) reply with
// its pending future; unlike collective RequestNums these are not
// scoped to a group, so a single atomic counter is enough.
func (e *Engine) nextReq() types.RequestNum {
	return types.RequestNum(atomic.AddUint64(&e.ptpCounter, 1))
}

func (e *Engine) ptpTake(req types.RequestNum) (*ptpState, bool) {
	e.ptpMu.Lock()
	defer e.ptpMu.Unlock()
	st, ok := e.ptp[req]
	if ok {
		delete(e.ptp, req)
	}
	return st, ok
}

// errKindOf recovers the ErrorKind carried by a *types.RuntimeError,
// or ErrKindUserException for anything else (e.g. a plain error
// returned by a user-registered AsyncAt handler).
func errKindOf(err error) types.ErrorKind {
	if re, ok := err.(*types.RuntimeError); ok {
		return re.Kind
	}
	return types.ErrKindUserException
}
