package core

import (
	"github.com/jabolina/pcj/pkg/pcj/logging"
	"github.com/jabolina/pcj/pkg/pcj/metrics"
	"github.com/jabolina/pcj/pkg/pcj/types"
)

// Handler processes one decoded inbound message. It is invoked on a
// worker goroutine, never on an I/O pump, so it may block on futures.
type Handler interface {
	Handle(from types.PhysicalID, m types.Message)
}

// Networker submits outbound messages to the Selector, dispatches
// inbound frames to the worker pool, and short-circuits self-sends
// through loopback.
type Networker struct {
	log      logging.Logger
	metrics  *metrics.Registry
	selector *Selector
	pool     *WorkerPool
	handler  Handler
	self     func() (types.PhysicalID, bool)

	done chan struct{}
}

// NewNetworker wires a Selector and WorkerPool together. selfID
// reports this process's own physical id once bootstrap has assigned
// it (false before then, during which loopback is unavailable and
// every send is a real socket write).
func NewNetworker(log logging.Logger, reg *metrics.Registry, selector *Selector, workers int, selfID func() (types.PhysicalID, bool)) *Networker {
	n := &Networker{
		log:      log,
		metrics:  reg,
		selector: selector,
		pool:     NewWorkerPool(workers, reg),
		self:     selfID,
		done:     make(chan struct{}),
	}
	go n.dispatchLoop()
	return n
}

// SetHandler installs the message handler. Must be called before any
// message can usefully arrive; messages that arrive before a handler
// is installed are dropped with a warning (only possible during the
// brief bootstrap window).
func (n *Networker) SetHandler(h Handler) { n.handler = h }

func (n *Networker) dispatchLoop() {
	for {
		select {
		case raw, ok := <-n.selector.Inbound():
			if !ok {
				return
			}
			n.processMessageBytes(raw)
		case <-n.done:
			return
		}
	}
}

// processMessageBytes reads the one-byte kind, constructs the
// corresponding message object, and submits it to the worker pool.
func (n *Networker) processMessageBytes(raw Raw) {
	msg, err := types.DecodeFrame(raw.Frame)
	if err != nil {
		n.log.Errorf("malformed frame from %d: %v", raw.From, err)
		return
	}
	n.pool.Submit(func() {
		n.runHandler(raw.From, msg)
	})
}

func (n *Networker) runHandler(from types.PhysicalID, msg types.Message) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Errorf("handler panicked on %s from %d: %v", msg.Kind(), from, r)
		}
	}()
	if n.handler == nil {
		n.log.Warnf("dropping %s from %d: no handler installed", msg.Kind(), from)
		return
	}
	n.handler.Handle(from, msg)
}

// Send delivers a message to a physical node. A send to this
// process's own physical id is short-circuited through loopback: no
// socket round trip, no re-encoding, the message is scheduled for
// local execution exactly like any inbound message, so the dispatch
// and handler code path is identical regardless of origin.
func (n *Networker) Send(to types.PhysicalID, msg types.Message) error {
	if self, ok := n.self(); ok && self == to {
		n.pool.Submit(func() {
			n.runHandler(to, msg)
		})
		return nil
	}
	frame, err := types.EncodeFrame(msg)
	if err != nil {
		return err
	}
	return n.selector.WriteMessage(to, frame)
}

// Stop shuts down the dispatch loop and worker pool.
func (n *Networker) Stop() {
	close(n.done)
	n.pool.Stop()
}
