// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package mtimer

import (
	"sync"

	"github.com/archtimer/mtimer/internal/tlog"
	"go.uber.org/zap"
)

// defaultWorkerCount is the number of goroutines draining the shared
// run queue that absorbs expired timers a sweep hands off instead of
// running in-line.
const defaultWorkerCount = 8

// workerPool is a fixed-size pool of goroutines draining a shared
// fire-and-forget work queue: a single mutex/condition-protected slice
// feeding the configured number of goroutines (defaultWorkerCount when
// none is given), since the work items here are
// opaque closures with no ordering or sharding requirements of their
// own.
type workerPool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	closed bool
	wg     sync.WaitGroup
}

func newWorkerPool(workers int) *workerPool {
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	p := &workerPool{}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

// enqueue hands work to the pool for eventual, fire-and-forget
// execution. It never blocks the caller on worker availability (only
// briefly on the pool's internal mutex) and never drops work while the
// pool is open; work enqueued after shutdown is dropped with a warning.
func (p *workerPool) enqueue(work func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		tlog.WARN("enqueue called on a shut down worker pool")
		return
	}
	p.items = append(p.items, work)
	p.mu.Unlock()
	p.cond.Signal()
}

func (p *workerPool) run() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.items) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.items) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		work := p.items[0]
		p.items = p.items[1:]
		p.mu.Unlock()
		p.runOne(work)
	}
}

// runOne executes a single work item, recovering from a panicking
// timer callback so that one bad handler cannot take down a worker
// goroutine (and, transitively, the sweep that depends on the pool
// draining). TimerEntry.fire already guarantees in_flight_count isn't
// left inflated by a faulting callback; recovering here only protects
// the pool's own liveness.
func (p *workerPool) runOne(work func()) {
	defer func() {
		if r := recover(); r != nil {
			tlog.ERR("recovered from panicking timer callback", zap.Any("panic", r))
		}
	}()
	work()
}

// shutdown stops accepting new work and waits for queued work and
// workers to drain. The queue is meant to live for the process, but
// shutdown exists for tests and for embedding applications that do
// want a clean exit.
func (p *workerPool) shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}
