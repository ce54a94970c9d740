package collective

import (
	"sync"

	"github.com/jabolina/pcj/pkg/pcj/types"
)

// byeState tracks one node's termination fan-in: a counter starting at
// #children + 1 (one slot per child, plus one for this node's own
// local program), decremented as each arrives and forwarded upward
// once it hits zero.
type byeState struct {
	mutex   sync.Mutex
	counter int
	done    bool
}

func (e *Engine) byeEntry() *byeState {
	e.byeMu.Lock()
	defer e.byeMu.Unlock()
	if e.bye == nil {
		children := e.groups.Global().Tree().Children(e.selfID())
		e.bye = &byeState{counter: len(children) + 1}
	}
	return e.bye
}

// Bye signals that every local thread's entry point has returned. The
// returned future completes once ByeCompleted has propagated back down
// to this node, at which point it is safe to exit the process.
func (e *Engine) Bye() *types.Future {
	st := e.byeEntry()
	e.byeMu.Lock()
	if e.byeWait == nil {
		e.byeWait = types.NewFuture()
	}
	wait := e.byeWait
	e.byeMu.Unlock()
	e.decrementBye(st)
	return wait
}

func (e *Engine) decrementBye(st *byeState) {
	st.mutex.Lock()
	st.counter--
	fire := st.counter <= 0 && !st.done
	if fire {
		st.done = true
	}
	st.mutex.Unlock()
	if fire {
		e.advanceBye()
	}
}

func (e *Engine) advanceBye() {
	self := e.selfID()
	tree := e.groups.Global().Tree()
	if tree.IsMaster(self) {
		for _, c := range tree.Children(self) {
			e.send(c, &types.ByeCompleted{})
		}
		e.signalByeDone()
		return
	}
	parent, ok := tree.Parent(self)
	if ok {
		e.send(parent, &types.Bye{From: self})
	}
}

func (e *Engine) handleBye(from types.PhysicalID, msg *types.Bye) {
	st := e.byeEntry()
	e.decrementBye(st)
}

func (e *Engine) handleByeCompleted(from types.PhysicalID, msg *types.ByeCompleted) {
	self := e.selfID()
	for _, c := range e.groups.Global().Tree().Children(self) {
		e.send(c, &types.ByeCompleted{})
	}
	e.signalByeDone()
}

func (e *Engine) signalByeDone() {
	e.byeMu.Lock()
	wait := e.byeWait
	e.byeMu.Unlock()
	if wait != nil {
		wait.Complete(nil)
	}
	e.log.Infof("bye: shutdown tree drained at this node")
}
