package collective

import (
	"sort"
	"sync"

	"github.com/jabolina/pcj/pkg/pcj/group"
	"github.com/jabolina/pcj/pkg/pcj/types"
	"github.com/jabolina/pcj/pkg/pcj/wire"
)

// collectState gathers one entry per group thread (tagged by
// group-thread-id for the tie-break ascending order), from every
// child and every local group thread, then forwards the merged list
// upward.
type collectState struct {
	mutex           sync.Mutex
	childrenPending map[types.PhysicalID]bool
	localPending    int
	entries         []decodedEntry
	waiters         []*types.Future
	done            bool
	storageName     string
	name            string
}

type decodedEntry struct {
	thread types.GroupThreadID
	value  interface{}
}

func (e *Engine) collectEntry(g *group.Group, key reqKey, storageName, name string) *collectState {
	e.collectMu.Lock()
	defer e.collectMu.Unlock()
	st, ok := e.collects[key]
	if !ok {
		st = &collectState{childrenPending: make(map[types.PhysicalID]bool), storageName: storageName, name: name}
		for _, c := range g.Tree().Children(e.selfID()) {
			st.childrenPending[c] = true
		}
		st.localPending = len(g.LocalThreadIDs())
		e.collects[key] = st
	}
	return st
}

func (e *Engine) collectRound(g *group.Group) types.RequestNum {
	e.collectMu.Lock()
	defer e.collectMu.Unlock()
	req, ok := e.collectRoundFor[g.ID()]
	if !ok {
		req = g.NextRequestNum("collect")
		e.collectRoundFor[g.ID()] = req
	}
	return req
}

// Collect gathers value from every thread in g under (storageName,
// name) into a slice ordered by ascending group-thread-id, returned
// through the future once every member has contributed.
func (e *Engine) Collect(g *group.Group, self types.GlobalThreadID, storageName, name string, value interface{}) (*types.Future, error) {
	groupThread, err := g.GroupThreadID(self)
	if err != nil {
		return nil, err
	}
	req := e.collectRound(g)
	key := reqKey{group: g.ID(), req: req}
	st := e.collectEntry(g, key, storageName, name)

	future := types.NewFuture()
	st.mutex.Lock()
	st.waiters = append(st.waiters, future)
	st.entries = append(st.entries, decodedEntry{thread: groupThread, value: value})
	st.localPending--
	localDone := st.localPending <= 0
	st.mutex.Unlock()

	if localDone {
		e.collectMu.Lock()
		if e.collectRoundFor[g.ID()] == req {
			delete(e.collectRoundFor, g.ID())
		}
		e.collectMu.Unlock()
	}

	e.tryAdvanceCollect(g, key, st)
	return future, nil
}

func decodeCollectEntries(wireEntries []types.CollectEntry) ([]decodedEntry, error) {
	out := make([]decodedEntry, 0, len(wireEntries))
	for _, we := range wireEntries {
		var v interface{}
		if err := wire.UnmarshalValue(we.Value, &v); err != nil {
			return nil, err
		}
		out = append(out, decodedEntry{thread: we.Thread, value: v})
	}
	return out, nil
}

func encodeCollectEntries(entries []decodedEntry) ([]types.CollectEntry, error) {
	out := make([]types.CollectEntry, 0, len(entries))
	for _, de := range entries {
		b, err := wire.MarshalValue(de.value)
		if err != nil {
			return nil, err
		}
		out = append(out, types.CollectEntry{Thread: de.thread, Value: b})
	}
	return out, nil
}

func (e *Engine) handleCollectRequest(from types.PhysicalID, msg *types.CollectRequest) {
	g, err := e.groups.ByID(msg.Group)
	if err != nil {
		e.log.Warnf("CollectRequest for unknown group %d", msg.Group)
		return
	}
	incoming, err := decodeCollectEntries(msg.Entries)
	if err != nil {
		e.log.Errorf("collect entries decode failed: %v", err)
		return
	}
	key := reqKey{group: msg.Group, req: msg.Req}
	st := e.collectEntry(g, key, msg.Storage, msg.Name)

	st.mutex.Lock()
	delete(st.childrenPending, from)
	st.entries = append(st.entries, incoming...)
	st.mutex.Unlock()

	e.tryAdvanceCollect(g, key, st)
}

func (e *Engine) tryAdvanceCollect(g *group.Group, key reqKey, st *collectState) {
	st.mutex.Lock()
	if st.done || st.localPending > 0 || len(st.childrenPending) > 0 {
		st.mutex.Unlock()
		return
	}
	st.done = true
	entries := make([]decodedEntry, len(st.entries))
	copy(entries, st.entries)
	storageName, name := st.storageName, st.name
	st.mutex.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].thread < entries[j].thread })

	self := e.selfID()
	tree := g.Tree()
	if tree.IsMaster(self) {
		e.broadcastCollectDown(g, key, entries, types.ErrKindNone)
		return
	}
	wireEntries, err := encodeCollectEntries(entries)
	if err != nil {
		e.log.Errorf("collect marshal failed: %v", err)
		return
	}
	parent, ok := tree.Parent(self)
	if !ok {
		return
	}
	e.send(parent, &types.CollectRequest{Group: key.group, Req: key.req, Storage: storageName, Name: name, Entries: wireEntries})
}

func (e *Engine) broadcastCollectDown(g *group.Group, key reqKey, entries []decodedEntry, errKind types.ErrorKind) {
	wireEntries, err := encodeCollectEntries(entries)
	if err != nil {
		e.log.Errorf("collect result marshal failed: %v", err)
		return
	}
	self := e.selfID()
	for _, c := range g.Tree().Children(self) {
		e.send(c, &types.CollectValueBytes{Group: key.group, Req: key.req, Entries: wireEntries, Err: errKind})
	}
	e.signalCollect(g, key, entries, errKind)
}

func (e *Engine) handleCollectValueBytes(from types.PhysicalID, msg *types.CollectValueBytes) {
	g, err := e.groups.ByID(msg.Group)
	if err != nil {
		e.log.Warnf("CollectValueBytes for unknown group %d", msg.Group)
		return
	}
	entries, err := decodeCollectEntries(msg.Entries)
	if err != nil {
		e.log.Errorf("collect result decode failed: %v", err)
		return
	}
	key := reqKey{group: msg.Group, req: msg.Req}
	self := e.selfID()
	for _, c := range g.Tree().Children(self) {
		e.send(c, &types.CollectValueBytes{Group: key.group, Req: key.req, Entries: msg.Entries, Err: msg.Err})
	}
	e.signalCollect(g, key, entries, msg.Err)
}

func (e *Engine) signalCollect(g *group.Group, key reqKey, entries []decodedEntry, errKind types.ErrorKind) {
	e.collectMu.Lock()
	st, ok := e.collects[key]
	if ok {
		delete(e.collects, key)
	}
	e.collectMu.Unlock()
	if !ok {
		return
	}

	st.mutex.Lock()
	waiters := st.waiters
	st.waiters = nil
	st.mutex.Unlock()

	values := make([]interface{}, len(entries))
	for i, en := range entries {
		values[i] = en.value
	}

	var err error
	if errKind != types.ErrKindNone {
		err = types.NewError(errKind, "collect failed")
	}
	for _, f := range waiters {
		if err != nil {
			f.Fail(err)
		} else {
			f.Complete(values)
		}
	}
	e.metrics.CollectiveCompleted(g.Name(), "collect")
}
