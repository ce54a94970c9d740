package collective

import (
	"sync"

	"github.com/jabolina/pcj/pkg/pcj/group"
	"github.com/jabolina/pcj/pkg/pcj/types"
)

// barrierState tracks one node's participation in one barrier round:
// it is done once every child has reported BarrierGo and every local
// group thread has called Barrier.
type barrierState struct {
	mutex           sync.Mutex
	childrenPending map[types.PhysicalID]bool
	localPending    int
	waiters         []*types.Future
	done            bool
}

func newBarrierState(g *group.Group, self types.PhysicalID) *barrierState {
	st := &barrierState{childrenPending: make(map[types.PhysicalID]bool)}
	for _, c := range g.Tree().Children(self) {
		st.childrenPending[c] = true
	}
	st.localPending = len(g.LocalThreadIDs())
	return st
}

func (e *Engine) barrierEntry(g *group.Group, key reqKey) *barrierState {
	e.barrierMu.Lock()
	defer e.barrierMu.Unlock()
	st, ok := e.barriers[key]
	if !ok {
		st = newBarrierState(g, e.selfID())
		e.barriers[key] = st
		e.metrics.SetRequestTableSize(g.Name(), "barrier", len(e.barriers))
	}
	return st
}

// Barrier registers one local thread's arrival at the barrier for g
// and returns the future that completes once the whole group has
// arrived. Every local group thread must call this once per round.
func (e *Engine) Barrier(g *group.Group) *types.Future {
	e.barrierMu.Lock()
	req, ok := e.barrierRound[g.ID()]
	if !ok {
		req = g.NextRequestNum("barrier")
		e.barrierRound[g.ID()] = req
	}
	key := reqKey{group: g.ID(), req: req}
	st, ok := e.barriers[key]
	if !ok {
		st = newBarrierState(g, e.selfID())
		e.barriers[key] = st
	}
	e.barrierMu.Unlock()

	fut := types.NewFuture()
	st.mutex.Lock()
	st.waiters = append(st.waiters, fut)
	st.localPending--
	localDone := st.localPending <= 0
	st.mutex.Unlock()

	if localDone {
		e.barrierMu.Lock()
		if e.barrierRound[g.ID()] == req {
			delete(e.barrierRound, g.ID())
		}
		e.barrierMu.Unlock()
	}

	e.tryAdvanceBarrier(g, key, st)
	return fut
}

func (e *Engine) handleBarrierGo(from types.PhysicalID, msg *types.BarrierGo) {
	g, err := e.groups.ByID(msg.Group)
	if err != nil {
		e.log.Warnf("BarrierGo for unknown group %d", msg.Group)
		return
	}
	key := reqKey{group: msg.Group, req: msg.Req}
	st := e.barrierEntry(g, key)
	st.mutex.Lock()
	delete(st.childrenPending, from)
	st.mutex.Unlock()
	e.tryAdvanceBarrier(g, key, st)
}

func (e *Engine) tryAdvanceBarrier(g *group.Group, key reqKey, st *barrierState) {
	st.mutex.Lock()
	if st.done || st.localPending > 0 || len(st.childrenPending) > 0 {
		st.mutex.Unlock()
		return
	}
	st.done = true
	st.mutex.Unlock()

	tree := g.Tree()
	self := e.selfID()
	if tree.IsMaster(self) {
		e.broadcastBarrierDown(g, key, st)
		return
	}
	parent, ok := tree.Parent(self)
	if !ok {
		return
	}
	e.send(parent, &types.BarrierGo{Group: key.group, Req: key.req, Requester: 0})
}

func (e *Engine) broadcastBarrierDown(g *group.Group, key reqKey, st *barrierState) {
	self := e.selfID()
	for _, c := range g.Tree().Children(self) {
		e.send(c, &types.BarrierWaitingBytes{Group: key.group, Req: key.req})
	}
	e.signalBarrier(g, key, st)
}

func (e *Engine) handleBarrierWaitingBytes(from types.PhysicalID, msg *types.BarrierWaitingBytes) {
	g, err := e.groups.ByID(msg.Group)
	if err != nil {
		e.log.Warnf("BarrierWaitingBytes for unknown group %d", msg.Group)
		return
	}
	key := reqKey{group: msg.Group, req: msg.Req}
	st := e.barrierEntry(g, key)

	self := e.selfID()
	for _, c := range g.Tree().Children(self) {
		e.send(c, &types.BarrierWaitingBytes{Group: key.group, Req: key.req})
	}
	e.signalBarrier(g, key, st)
}

func (e *Engine) signalBarrier(g *group.Group, key reqKey, st *barrierState) {
	st.mutex.Lock()
	waiters := st.waiters
	st.waiters = nil
	st.mutex.Unlock()

	for _, f := range waiters {
		f.Complete(nil)
	}

	e.barrierMu.Lock()
	delete(e.barriers, key)
	e.metrics.SetRequestTableSize(g.Name(), "barrier", len(e.barriers))
	e.barrierMu.Unlock()
	e.metrics.CollectiveCompleted(g.Name(), "barrier")
}
