package core

import (
	"net"
	"time"

	"github.com/jabolina/pcj/pkg/pcj/logging"
)

// LivenessChecker periodically nudges TCP-level keepalive on every
// peer connection when pcj.alive.timeout is non-zero. It never sends
// an application-level frame: the tree is otherwise silent between
// collectives, so the cheapest liveness signal is the kernel's own
// keepalive probing, enabled per-connection.
type LivenessChecker struct {
	selector *Selector
	interval time.Duration
	log      logging.Logger
	stop     chan struct{}
}

// NewLivenessChecker returns a checker that is a no-op if interval is
// zero (the default, "off").
func NewLivenessChecker(selector *Selector, interval time.Duration, log logging.Logger) *LivenessChecker {
	return &LivenessChecker{selector: selector, interval: interval, log: log, stop: make(chan struct{})}
}

// Start begins the periodic keepalive sweep; it is a no-op if the
// checker was built with a zero interval.
func (l *LivenessChecker) Start() {
	if l.interval <= 0 {
		return
	}
	go l.run()
}

func (l *LivenessChecker) run() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *LivenessChecker) sweep() {
	l.selector.mutex.RLock()
	conns := make([]*peerConn, 0, len(l.selector.conns))
	for _, pc := range l.selector.conns {
		conns = append(conns, pc)
	}
	l.selector.mutex.RUnlock()

	for _, pc := range conns {
		tcp, ok := pc.conn.(*net.TCPConn)
		if !ok {
			continue
		}
		if err := tcp.SetKeepAlive(true); err != nil {
			l.log.Warnf("keepalive enable failed for peer %d: %v", pc.id, err)
			continue
		}
		if err := tcp.SetKeepAlivePeriod(l.interval / 2); err != nil {
			l.log.Warnf("keepalive period failed for peer %d: %v", pc.id, err)
		}
	}
}

// Stop halts the sweep goroutine.
func (l *LivenessChecker) Stop() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
}
