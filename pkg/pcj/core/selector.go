// Package core implements the node-to-node messaging substrate: the
// selector/I/O layer, the Networker that dispatches inbound messages
// to a worker pool, and the loopback optimization for self-sends.
package core

import (
	"net"
	"sync"

	"github.com/jabolina/pcj/pkg/pcj/logging"
	"github.com/jabolina/pcj/pkg/pcj/metrics"
	"github.com/jabolina/pcj/pkg/pcj/types"
	"github.com/jabolina/pcj/pkg/pcj/wire"
)

// Raw is a frame as it arrives from a peer, tagged with the sender's
// physical id, before kind-specific decoding.
type Raw struct {
	From  types.PhysicalID
	Frame wire.Frame
}

// FailureHandler is invoked when a peer socket fails. The handler that
// Bootstrap installs only logs the failed peer and the error; it does
// not abort the job or end the process.
type FailureHandler func(peer types.PhysicalID, err error)

// Selector owns every non-blocking-equivalent peer connection: an
// accept loop plus one read-pump/write-pump goroutine pair per
// connection, rendering "a single reactor multiplexing N sockets" the
// idiomatic Go way instead of a raw OS selector.
type Selector struct {
	log     logging.Logger
	metrics *metrics.Registry
	onFail  FailureHandler

	mutex     sync.RWMutex
	conns     map[types.PhysicalID]*peerConn
	listener  net.Listener
	handshake HandshakeFunc

	inbound chan Raw
}

type peerConn struct {
	id       types.PhysicalID
	conn     net.Conn
	outbound *unboundedQueue
	closeF   func()
	once     sync.Once
}

// NewSelector returns a Selector with no connections yet.
func NewSelector(log logging.Logger, reg *metrics.Registry, onFail FailureHandler) *Selector {
	return &Selector{
		log:     log,
		metrics: reg,
		onFail:  onFail,
		conns:   make(map[types.PhysicalID]*peerConn),
		inbound: make(chan Raw, 256),
	}
}

// Inbound returns the channel of frames received from any peer.
func (s *Selector) Inbound() <-chan Raw { return s.inbound }

// Bind starts listening on addr and accepting peer connections. The
// accepted connection's owning physical id is not known until the
// peer's first frame arrives; the HandshakeFunc installed with
// AcceptWith reads it and decides the id. Bind is used by node 0 to accept the initial
// Hello connections and by every node to accept the mesh connections
// from higher-id peers.
func (s *Selector) Bind(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.listener = ln
	go s.acceptLoop(ln)
	return ln.Addr(), nil
}

func (s *Selector) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.acceptHandshake(conn)
	}
}

// HandshakeFunc reads whatever the bootstrap protocol needs from a
// freshly accepted connection and returns the physical id to register
// it under. Installed by the runtime package.
type HandshakeFunc func(conn net.Conn) (types.PhysicalID, error)

// AcceptWith installs the handshake function used by acceptHandshake.
// Must be called before Bind.
func (s *Selector) AcceptWith(fn HandshakeFunc) {
	s.handshake = fn
}

func (s *Selector) acceptHandshake(conn net.Conn) {
	if s.handshake == nil {
		conn.Close()
		return
	}
	id, err := s.handshake(conn)
	if err != nil {
		s.log.Warnf("handshake failed from %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	s.adopt(id, conn)
}

// ConnectTo dials addr and registers the resulting connection under
// physical id target, sending the given preamble bytes first (the
// local node announcing its own physical id) so the accepting side's
// HandshakeFunc can identify it.
func (s *Selector) ConnectTo(target types.PhysicalID, addr string, preamble []byte) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	if len(preamble) > 0 {
		if _, err := conn.Write(preamble); err != nil {
			conn.Close()
			return err
		}
	}
	s.adopt(target, conn)
	return nil
}

func (s *Selector) adopt(id types.PhysicalID, conn net.Conn) {
	pc := &peerConn{id: id, conn: conn, outbound: newUnboundedQueue()}
	pc.closeF = func() { pc.once.Do(func() { conn.Close(); pc.outbound.Close() }) }

	s.mutex.Lock()
	s.conns[id] = pc
	s.mutex.Unlock()

	go s.readPump(pc)
	go s.writePump(pc)
}

func (s *Selector) readPump(pc *peerConn) {
	for {
		frame, err := wire.ReadFrame(pc.conn)
		if err != nil {
			s.fail(pc, err)
			return
		}
		s.metrics.AddBytesReceived(5 + len(frame.Payload))
		s.inbound <- Raw{From: pc.id, Frame: frame}
	}
}

func (s *Selector) writePump(pc *peerConn) {
	for {
		item, ok := pc.outbound.Pop()
		if !ok {
			return
		}
		frame := item.(wire.Frame)
		if err := wire.WriteFrame(pc.conn, frame); err != nil {
			s.fail(pc, err)
			return
		}
		s.metrics.AddBytesSent(5 + len(frame.Payload))
	}
}

func (s *Selector) fail(pc *peerConn, err error) {
	pc.closeF()
	s.mutex.Lock()
	delete(s.conns, pc.id)
	s.mutex.Unlock()
	s.log.Errorf("peer %d connection failed: %v", pc.id, err)
	if s.onFail != nil {
		s.onFail(pc.id, err)
	}
}

// WriteMessage enqueues a frame for delivery to a peer. Messages
// enqueued on the same socket are delivered in enqueue order; no
// ordering is guaranteed across sockets.
func (s *Selector) WriteMessage(to types.PhysicalID, frame wire.Frame) error {
	s.mutex.RLock()
	pc, ok := s.conns[to]
	s.mutex.RUnlock()
	if !ok {
		return types.ErrConnectionLost
	}
	pc.outbound.Push(frame)
	return nil
}

// Connected reports whether a socket to the given peer is registered.
func (s *Selector) Connected(id types.PhysicalID) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.conns[id]
	return ok
}

// Close tears down every connection and the listener.
func (s *Selector) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.mutex.Lock()
	conns := make([]*peerConn, 0, len(s.conns))
	for _, pc := range s.conns {
		conns = append(conns, pc)
	}
	s.conns = make(map[types.PhysicalID]*peerConn)
	s.mutex.Unlock()
	for _, pc := range conns {
		pc.closeF()
	}
}
