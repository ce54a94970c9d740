package collective

import (
	"sync"

	"github.com/jabolina/pcj/pkg/pcj/types"
)

// joinMasterState tracks one group-join in flight at the node acting
// as the job coordinator. A join is only ever driven by physical id 0
// (GroupJoinRequest always targets it, same as the tree master
// convention in group.go), and joins for a single group name are
// serialized: a request arriving while one is already pending for
// that name is queued and started once the in-flight join's
// GroupJoinConfirm fan-in completes.
type joinMasterState struct {
	mutex          sync.Mutex
	groupID        types.GroupID
	groupName      string
	joinerPhysical types.PhysicalID
	joiner         types.GlobalThreadID
	assigned       types.GroupThreadID
	snapshot       []types.ThreadsMapEntry
	pending        map[types.PhysicalID]bool
}

// joinWaitKey identifies one caller's pending GroupJoin future. Two
// distinct joiners racing to join the same new group name must not
// clobber each other's entry, so the key includes the joiner, not
// just the group name.
type joinWaitKey struct {
	groupName string
	joiner    types.GlobalThreadID
}

// pendingJoinRequest is a GroupJoinRequest that arrived while another
// join for the same group name was already in flight.
type pendingJoinRequest struct {
	from types.PhysicalID
	msg  *types.GroupJoinRequest
}

// GroupJoin requests that joiner be added to the named group, creating
// it on first use. The returned future yields the joiner's assigned
// GroupThreadID once the coordinator has propagated the updated
// threadsMap to every member and every member (including this node, if
// local) has applied it.
func (e *Engine) GroupJoin(groupName string, joiner types.GlobalThreadID) *types.Future {
	future := types.NewFuture()
	e.joinMu.Lock()
	e.joinWait[joinWaitKey{groupName: groupName, joiner: joiner}] = future
	e.joinMu.Unlock()
	e.send(0, &types.GroupJoinRequest{GroupName: groupName, Joiner: joiner})
	return future
}

// handleGroupJoinRequest runs only on physical id 0. If no join is
// currently in flight for msg.GroupName it starts one immediately;
// otherwise the request is queued and started once the in-flight join
// finishes, so every arrival is eventually served rather than dropped.
func (e *Engine) handleGroupJoinRequest(from types.PhysicalID, msg *types.GroupJoinRequest) {
	e.joinMu.Lock()
	if _, busy := e.joins[msg.GroupName]; busy {
		e.joinQueue[msg.GroupName] = append(e.joinQueue[msg.GroupName], pendingJoinRequest{from: from, msg: msg})
		e.joinMu.Unlock()
		return
	}
	e.joinMu.Unlock()
	e.startGroupJoin(from, msg)
}

// startGroupJoin assigns the next GroupThreadID, applies the join to
// its own copy of the group, and fans the resulting threadsMap out to
// every member's home node (including the joiner's and its own,
// uniformly via the wire so a single code path handles "apply and
// confirm" everywhere). Called either directly from
// handleGroupJoinRequest or by handleGroupJoinConfirm draining the
// next queued request for the same group name.
func (e *Engine) startGroupJoin(from types.PhysicalID, msg *types.GroupJoinRequest) {
	g := e.groups.CreateEmpty(msg.GroupName)
	assigned := types.GroupThreadID(g.Size())
	g.Join(assigned, msg.Joiner)
	snapshot := g.Snapshot()

	pending := make(map[types.PhysicalID]bool)
	for _, entry := range snapshot {
		home, err := e.topo.HomeOf(entry.GlobalThread)
		if err != nil {
			e.log.Errorf("group-join: no home for thread %d: %v", entry.GlobalThread, err)
			continue
		}
		pending[home] = true
	}

	st := &joinMasterState{
		groupID:        g.ID(),
		groupName:      msg.GroupName,
		joinerPhysical: from,
		joiner:         msg.Joiner,
		assigned:       assigned,
		snapshot:       snapshot,
		pending:        pending,
	}

	e.joinMu.Lock()
	e.joins[msg.GroupName] = st
	e.joinMu.Unlock()

	for physID := range pending {
		e.send(physID, &types.GroupJoinInform{Group: g.ID(), GroupName: msg.GroupName, ThreadsMap: snapshot})
	}
}

// handleGroupJoinInform runs on every node hosting a member of the
// group (the coordinator included, via loopback), applying the
// authoritative threadsMap and acking back to the coordinator.
func (e *Engine) handleGroupJoinInform(from types.PhysicalID, msg *types.GroupJoinInform) {
	g := e.groups.EnsureWithID(msg.Group, msg.GroupName)
	g.ReplaceMembership(msg.ThreadsMap)
	e.send(0, &types.GroupJoinConfirm{Group: msg.Group, From: e.selfID()})
}

// handleGroupJoinConfirm runs only on physical id 0, counting down
// pending acks for one join; once every member has confirmed, the
// coordinator replies directly to the joiner and, if another request
// for the same group name was queued in the meantime, starts it next.
func (e *Engine) handleGroupJoinConfirm(from types.PhysicalID, msg *types.GroupJoinConfirm) {
	e.joinMu.Lock()
	var st *joinMasterState
	for _, candidate := range e.joins {
		if candidate.groupID == msg.Group {
			st = candidate
			break
		}
	}
	e.joinMu.Unlock()
	if st == nil {
		return
	}

	st.mutex.Lock()
	delete(st.pending, from)
	done := len(st.pending) == 0
	joinerPhysical, joiner, assigned, snapshot, groupName := st.joinerPhysical, st.joiner, st.assigned, st.snapshot, st.groupName
	st.mutex.Unlock()

	if !done {
		return
	}

	e.joinMu.Lock()
	delete(e.joins, groupName)
	var next *pendingJoinRequest
	if q := e.joinQueue[groupName]; len(q) > 0 {
		head := q[0]
		next = &head
		if len(q) == 1 {
			delete(e.joinQueue, groupName)
		} else {
			e.joinQueue[groupName] = q[1:]
		}
	}
	e.joinMu.Unlock()

	e.send(joinerPhysical, &types.GroupJoinResponse{
		Group:      st.groupID,
		GroupName:  groupName,
		Joiner:     joiner,
		Assigned:   assigned,
		ThreadsMap: snapshot,
		Err:        types.ErrKindNone,
	})
	e.metrics.CollectiveCompleted(groupName, "groupjoin")

	if next != nil {
		e.startGroupJoin(next.from, next.msg)
	}
}

// handleGroupJoinResponse runs on the joiner's home node. The
// coordinator only sends this after every member — including this
// node, if it hosts a member other than the joiner — has confirmed
// applying the same threadsMap over the same socket, so the
// ReplaceMembership here is a harmless re-apply rather than a race.
func (e *Engine) handleGroupJoinResponse(from types.PhysicalID, msg *types.GroupJoinResponse) {
	g := e.groups.EnsureWithID(msg.Group, msg.GroupName)
	g.ReplaceMembership(msg.ThreadsMap)

	key := joinWaitKey{groupName: msg.GroupName, joiner: msg.Joiner}
	e.joinMu.Lock()
	future, ok := e.joinWait[key]
	if ok {
		delete(e.joinWait, key)
	}
	e.joinMu.Unlock()
	if !ok {
		return
	}

	if msg.Err != types.ErrKindNone {
		future.Fail(types.NewError(msg.Err, "group-join failed"))
		return
	}
	future.Complete(msg.Assigned)
}
