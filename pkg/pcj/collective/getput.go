package collective

import (
	"github.com/jabolina/pcj/pkg/pcj/types"
	"github.com/jabolina/pcj/pkg/pcj/wire"
)

// ptpState is the pending-future side of one outstanding point-to-point
// request (get/put/accumulate/asyncAt), keyed by its process-wide
// RequestNum. Unlike the collective request tables these never fan out
// across a tree: exactly one reply completes exactly one future.
type ptpState struct {
	future *types.Future
}

// Get reads (storageName, name) from target's home storage.
func (e *Engine) Get(target types.GlobalThreadID, storageName, name string) (*types.Future, error) {
	home, err := e.topo.HomeOf(target)
	if err != nil {
		return nil, err
	}
	req := e.nextReq()
	future := types.NewFuture()
	e.ptpMu.Lock()
	e.ptp[req] = &ptpState{future: future}
	e.ptpMu.Unlock()
	e.send(home, &types.GetRequest{Target: target, Storage: storageName, Name: name, Req: req, From: e.selfID()})
	return future, nil
}

func (e *Engine) handleGetRequest(from types.PhysicalID, msg *types.GetRequest) {
	storages := e.storages.ForThread(msg.Target)
	value, err := storages.Get(msg.Storage, msg.Name)
	if err != nil {
		e.send(from, &types.GetReply{Req: msg.Req, Err: errKindOf(err)})
		return
	}
	bytes, err := wire.MarshalValue(value)
	if err != nil {
		e.send(from, &types.GetReply{Req: msg.Req, Err: types.ErrKindMalformedMessage})
		return
	}
	e.send(from, &types.GetReply{Req: msg.Req, Value: bytes, Err: types.ErrKindNone})
}

func (e *Engine) handleGetReply(from types.PhysicalID, msg *types.GetReply) {
	st, ok := e.ptpTake(msg.Req)
	if !ok {
		return
	}
	if msg.Err != types.ErrKindNone {
		st.future.Fail(types.NewError(msg.Err, "get failed"))
		return
	}
	var value interface{}
	if err := wire.UnmarshalValue(msg.Value, &value); err != nil {
		st.future.Fail(err)
		return
	}
	st.future.Complete(value)
}

// Put writes value for (storageName, name) into target's home storage.
func (e *Engine) Put(target types.GlobalThreadID, storageName, name string, value interface{}) (*types.Future, error) {
	home, err := e.topo.HomeOf(target)
	if err != nil {
		return nil, err
	}
	bytes, err := wire.MarshalValue(value)
	if err != nil {
		return nil, err
	}
	req := e.nextReq()
	future := types.NewFuture()
	e.ptpMu.Lock()
	e.ptp[req] = &ptpState{future: future}
	e.ptpMu.Unlock()
	e.send(home, &types.PutRequest{Target: target, Storage: storageName, Name: name, Value: bytes, Req: req, From: e.selfID()})
	return future, nil
}

func (e *Engine) handlePutRequest(from types.PhysicalID, msg *types.PutRequest) {
	storages := e.storages.ForThread(msg.Target)
	var value interface{}
	if err := wire.UnmarshalValue(msg.Value, &value); err != nil {
		e.send(from, &types.PutReply{Req: msg.Req, Err: types.ErrKindMalformedMessage})
		return
	}
	if err := storages.Put(msg.Storage, msg.Name, value); err != nil {
		e.send(from, &types.PutReply{Req: msg.Req, Err: errKindOf(err)})
		return
	}
	e.send(from, &types.PutReply{Req: msg.Req, Err: types.ErrKindNone})
}

func (e *Engine) handlePutReply(from types.PhysicalID, msg *types.PutReply) {
	st, ok := e.ptpTake(msg.Req)
	if !ok {
		return
	}
	if msg.Err != types.ErrKindNone {
		st.future.Fail(types.NewError(msg.Err, "put failed"))
		return
	}
	st.future.Complete(nil)
}

// Accumulate folds value into target's home copy of (storageName, name)
// using the associative function registered for that pair, same as
// Reduce's combine step but applied at a single named thread instead of
// across a group.
func (e *Engine) Accumulate(target types.GlobalThreadID, storageName, name string, value interface{}) (*types.Future, error) {
	home, err := e.topo.HomeOf(target)
	if err != nil {
		return nil, err
	}
	bytes, err := wire.MarshalValue(value)
	if err != nil {
		return nil, err
	}
	req := e.nextReq()
	future := types.NewFuture()
	e.ptpMu.Lock()
	e.ptp[req] = &ptpState{future: future}
	e.ptpMu.Unlock()
	e.send(home, &types.AccumulateRequest{Target: target, Storage: storageName, Name: name, Value: bytes, Req: req, From: e.selfID()})
	return future, nil
}

func (e *Engine) handleAccumulateRequest(from types.PhysicalID, msg *types.AccumulateRequest) {
	storages := e.storages.ForThread(msg.Target)
	var incoming interface{}
	if err := wire.UnmarshalValue(msg.Value, &incoming); err != nil {
		e.send(from, &types.AccumulateReply{Req: msg.Req, Err: types.ErrKindMalformedMessage})
		return
	}
	fn, ok := e.accumulatorFor(msg.Storage, msg.Name)
	if !ok {
		fn = lastWriteWins(e)
	}
	if err := storages.Accumulate(msg.Storage, msg.Name, fn, incoming); err != nil {
		e.send(from, &types.AccumulateReply{Req: msg.Req, Err: errKindOf(err)})
		return
	}
	e.send(from, &types.AccumulateReply{Req: msg.Req, Err: types.ErrKindNone})
}

func (e *Engine) handleAccumulateReply(from types.PhysicalID, msg *types.AccumulateReply) {
	st, ok := e.ptpTake(msg.Req)
	if !ok {
		return
	}
	if msg.Err != types.ErrKindNone {
		st.future.Fail(types.NewError(msg.Err, "accumulate failed"))
		return
	}
	st.future.Complete(nil)
}

// AsyncAt invokes the operation registered as name on target's home
// node with payload, returning a future for its raw result bytes.
func (e *Engine) AsyncAt(target types.GlobalThreadID, name string, payload []byte) (*types.Future, error) {
	home, err := e.topo.HomeOf(target)
	if err != nil {
		return nil, err
	}
	req := e.nextReq()
	future := types.NewFuture()
	e.ptpMu.Lock()
	e.ptp[req] = &ptpState{future: future}
	e.ptpMu.Unlock()
	e.send(home, &types.AsyncAtRequest{Target: target, Operation: name, Payload: payload, Req: req, From: e.selfID()})
	return future, nil
}

func (e *Engine) handleAsyncAtRequest(from types.PhysicalID, msg *types.AsyncAtRequest) {
	fn, ok := e.operationFor(msg.Operation)
	if !ok {
		e.log.Warnf("asyncAt: operation %q not registered on this node", msg.Operation)
		e.send(from, &types.AsyncAtReply{Req: msg.Req, Err: types.ErrKindConfigError})
		return
	}
	result, err := fn(msg.Payload)
	if err != nil {
		e.send(from, &types.AsyncAtReply{Req: msg.Req, Err: errKindOf(err)})
		return
	}
	e.send(from, &types.AsyncAtReply{Req: msg.Req, Result: result, Err: types.ErrKindNone})
}

func (e *Engine) handleAsyncAtReply(from types.PhysicalID, msg *types.AsyncAtReply) {
	st, ok := e.ptpTake(msg.Req)
	if !ok {
		return
	}
	if msg.Err != types.ErrKindNone {
		st.future.Fail(types.NewError(msg.Err, "asyncAt failed"))
		return
	}
	st.future.Complete(msg.Result)
}
