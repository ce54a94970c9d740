package collective

import (
	"sync"

	"github.com/jabolina/pcj/pkg/pcj/group"
	"github.com/jabolina/pcj/pkg/pcj/storage"
	"github.com/jabolina/pcj/pkg/pcj/types"
	"github.com/jabolina/pcj/pkg/pcj/wire"
)

// reduceState folds values from every child and every local group
// thread into one accumulator, the same child/local countdown shape
// as barrierState, then forwards the fold upward.
type reduceState struct {
	mutex           sync.Mutex
	childrenPending map[types.PhysicalID]bool
	localPending    int
	hasValue        bool
	value           interface{}
	waiters         []*types.Future
	done            bool
	storageName     string
	name            string
}

func (e *Engine) reduceEntry(g *group.Group, key reqKey, storageName, name string) *reduceState {
	e.reduceMu.Lock()
	defer e.reduceMu.Unlock()
	st, ok := e.reduces[key]
	if !ok {
		st = &reduceState{childrenPending: make(map[types.PhysicalID]bool), storageName: storageName, name: name}
		for _, c := range g.Tree().Children(e.selfID()) {
			st.childrenPending[c] = true
		}
		st.localPending = len(g.LocalThreadIDs())
		e.reduces[key] = st
	}
	return st
}

func (e *Engine) combineReduce(st *reduceState, incoming interface{}) {
	fn, ok := e.accumulatorFor(st.storageName, st.name)
	if !ok {
		fn = lastWriteWins(e)
	}
	if !st.hasValue {
		st.value = incoming
		st.hasValue = true
		return
	}
	st.value = fn(st.value, incoming)
}

func lastWriteWins(e *Engine) storage.AccumulateFunc {
	return func(current, incoming interface{}) interface{} {
		e.log.Warnf("reduce: no accumulator registered, falling back to last-write-wins")
		return incoming
	}
}

// Reduce folds value into the group-wide accumulator for
// (storageName, name), combined with the associative function
// previously installed via RegisterAccumulator, and returns a future
// yielding the final fold once every group thread has contributed.
func (e *Engine) Reduce(g *group.Group, storageName, name string, value interface{}) *types.Future {
	req := e.reduceRound(g)
	key := reqKey{group: g.ID(), req: req}
	st := e.reduceEntry(g, key, storageName, name)

	future := types.NewFuture()
	st.mutex.Lock()
	st.waiters = append(st.waiters, future)
	e.combineReduce(st, value)
	st.localPending--
	localDone := st.localPending <= 0
	st.mutex.Unlock()

	if localDone {
		e.reduceMu.Lock()
		if e.reduceRoundFor[g.ID()] == req {
			delete(e.reduceRoundFor, g.ID())
		}
		e.reduceMu.Unlock()
	}

	e.tryAdvanceReduce(g, key, st)
	return future
}

func (e *Engine) reduceRound(g *group.Group) types.RequestNum {
	e.reduceMu.Lock()
	defer e.reduceMu.Unlock()
	req, ok := e.reduceRoundFor[g.ID()]
	if !ok {
		req = g.NextRequestNum("reduce")
		e.reduceRoundFor[g.ID()] = req
	}
	return req
}

func (e *Engine) handleReduceRequest(from types.PhysicalID, msg *types.ReduceRequest) {
	g, err := e.groups.ByID(msg.Group)
	if err != nil {
		e.log.Warnf("ReduceRequest for unknown group %d", msg.Group)
		return
	}
	var value interface{}
	if err := wire.UnmarshalValue(msg.Value, &value); err != nil {
		e.log.Errorf("reduce value decode failed: %v", err)
		return
	}
	key := reqKey{group: msg.Group, req: msg.Req}
	st := e.reduceEntry(g, key, msg.Storage, msg.Name)

	st.mutex.Lock()
	delete(st.childrenPending, from)
	e.combineReduce(st, value)
	st.mutex.Unlock()

	e.tryAdvanceReduce(g, key, st)
}

func (e *Engine) tryAdvanceReduce(g *group.Group, key reqKey, st *reduceState) {
	st.mutex.Lock()
	if st.done || st.localPending > 0 || len(st.childrenPending) > 0 {
		st.mutex.Unlock()
		return
	}
	st.done = true
	value := st.value
	storageName, name := st.storageName, st.name
	st.mutex.Unlock()

	self := e.selfID()
	tree := g.Tree()
	if tree.IsMaster(self) {
		e.broadcastReduceDown(g, key, value, types.ErrKindNone)
		return
	}
	bytes, err := wire.MarshalValue(value)
	if err != nil {
		e.log.Errorf("reduce marshal failed: %v", err)
		return
	}
	parent, ok := tree.Parent(self)
	if !ok {
		return
	}
	e.send(parent, &types.ReduceRequest{Group: key.group, Req: key.req, Storage: storageName, Name: name, Value: bytes})
}

func (e *Engine) broadcastReduceDown(g *group.Group, key reqKey, value interface{}, errKind types.ErrorKind) {
	bytes, err := wire.MarshalValue(value)
	if err != nil {
		e.log.Errorf("reduce result marshal failed: %v", err)
		return
	}
	self := e.selfID()
	for _, c := range g.Tree().Children(self) {
		e.send(c, &types.ReduceValueBytes{Group: key.group, Req: key.req, Value: bytes, Err: errKind})
	}
	e.signalReduce(g, key, value, errKind)
}

func (e *Engine) handleReduceValueBytes(from types.PhysicalID, msg *types.ReduceValueBytes) {
	g, err := e.groups.ByID(msg.Group)
	if err != nil {
		e.log.Warnf("ReduceValueBytes for unknown group %d", msg.Group)
		return
	}
	var value interface{}
	if err := wire.UnmarshalValue(msg.Value, &value); err != nil {
		e.log.Errorf("reduce result decode failed: %v", err)
		return
	}
	key := reqKey{group: msg.Group, req: msg.Req}
	self := e.selfID()
	for _, c := range g.Tree().Children(self) {
		e.send(c, &types.ReduceValueBytes{Group: key.group, Req: key.req, Value: msg.Value, Err: msg.Err})
	}
	e.signalReduce(g, key, value, msg.Err)
}

func (e *Engine) signalReduce(g *group.Group, key reqKey, value interface{}, errKind types.ErrorKind) {
	e.reduceMu.Lock()
	st, ok := e.reduces[key]
	if ok {
		delete(e.reduces, key)
	}
	e.reduceMu.Unlock()
	if !ok {
		return
	}

	st.mutex.Lock()
	waiters := st.waiters
	st.waiters = nil
	st.mutex.Unlock()

	var err error
	if errKind != types.ErrKindNone {
		err = types.NewError(errKind, "reduce failed")
	}
	for _, f := range waiters {
		if err != nil {
			f.Fail(err)
		} else {
			f.Complete(value)
		}
	}
	e.metrics.CollectiveCompleted(g.Name(), "reduce")
}
