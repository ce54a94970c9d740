package core

import (
	"sync"

	"github.com/jabolina/pcj/pkg/pcj/metrics"
)

// WorkerPool is a fixed-size pool draining an unbounded queue of
// tasks. Message handlers may block on futures (a put handler waits
// for a reply) and must not stall the I/O pumps, which is why
// dispatch happens here rather than inline in readPump.
type WorkerPool struct {
	queue   *unboundedQueue
	metrics *metrics.Registry
	wg      sync.WaitGroup
}

// NewWorkerPool starts n worker goroutines draining tasks as they
// arrive.
func NewWorkerPool(n int, reg *metrics.Registry) *WorkerPool {
	if n <= 0 {
		n = 1
	}
	p := &WorkerPool{queue: newUnboundedQueue(), metrics: reg}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.loop()
	}
	return p
}

func (p *WorkerPool) loop() {
	defer p.wg.Done()
	for {
		item, ok := p.queue.Pop()
		if !ok {
			return
		}
		p.metrics.SetWorkerQueueDepth(p.queue.Len())
		task := item.(func())
		task()
	}
}

// Submit schedules a task for execution by the next free worker. A
// worker invokes the task; a panic inside it is recovered and logged
// by the caller's own wrapping, not here, so that the caller can turn
// it into a UserException addressed to the right reply channel.
func (p *WorkerPool) Submit(task func()) {
	p.queue.Push(task)
	p.metrics.SetWorkerQueueDepth(p.queue.Len())
}

// Stop closes the task queue and waits for every worker to drain and
// exit.
func (p *WorkerPool) Stop() {
	p.queue.Close()
	p.wg.Wait()
}
