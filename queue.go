// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package mtimer implements a process-wide managed-timer scheduler: an
// unbounded population of logical timers multiplexed onto a single
// underlying platform one-shot timer, with one-shot and periodic
// firing, callbacks dispatched on a worker pool, safe rescheduling,
// and safe (synchronous-with-wait or asynchronous-await) shutdown.
//
// Many logical timers multiplex onto one real OS-level wakeup source
// via a single-lock intrusive doubly-linked list rather than a
// hierarchical wheel, trading the wheel's O(1)-amortized-everything
// for true O(1) insert/delete at the cost of an O(n) sweep over the
// active list -- the right trade when, as here, timers are created and
// rescheduled far more often than they actually fire.
package mtimer

import (
	"sync"
	"time"

	"github.com/archtimer/mtimer/internal/tlog"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// TimerQueue is the process-wide singleton. It owns the active list,
// the single guard lock, and the currently-armed native duration.
// More than one may be constructed (NewQueue) for testability; Default
// returns the process-wide instance most callers want.
type TimerQueue struct {
	mu sync.Mutex

	head entryList

	armedDuration  uint32 // Infinite => nothing armed
	armedStartTick Tick

	clock       clockwork.Clock
	epoch       time.Time
	nativeTimer clockwork.Timer

	pool *workerPool

	maxNative uint32

	shutdown bool
}

// Option configures a TimerQueue at construction.
type Option func(*queueConfig)

type queueConfig struct {
	clock     clockwork.Clock
	logger    *zap.Logger
	maxNative uint32
	workers   int
}

// WithClock overrides the tick source / native one-shot timer adapter.
// Tests use clockwork.NewFakeClock() to drive scenarios
// deterministically (drift, long timeouts, tick wrap) without real
// sleeps.
func WithClock(c clockwork.Clock) Option {
	return func(cfg *queueConfig) { cfg.clock = c }
}

// WithLogger installs l as the ambient logger (internal/tlog). A
// TimerQueue is silent (zap.NewNop()) until a logger is installed.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *queueConfig) { cfg.logger = l }
}

// WithMaxNative overrides MaxNative, the platform arming ceiling.
// Mostly useful for shrinking the ceiling in tests that need to
// exercise the clamp-and-spurious-wake path without waiting tens of
// hours.
func WithMaxNative(n uint32) Option {
	return func(cfg *queueConfig) { cfg.maxNative = n }
}

// WithWorkerCount overrides the fire-and-forget worker pool's worker
// count (default defaultWorkerCount).
func WithWorkerCount(n int) Option {
	return func(cfg *queueConfig) { cfg.workers = n }
}

func defaultConfig() *queueConfig {
	return &queueConfig{
		clock:     clockwork.NewRealClock(),
		maxNative: MaxNative,
		workers:   defaultWorkerCount,
	}
}

// NewQueue constructs and starts a TimerQueue: its worker pool is
// running and it is ready to accept timers immediately.
func NewQueue(opts ...Option) *TimerQueue {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger != nil {
		tlog.SetLogger(cfg.logger)
	}
	q := &TimerQueue{
		clock:         cfg.clock,
		maxNative:     cfg.maxNative,
		armedDuration: Infinite,
	}
	q.head.init()
	q.epoch = q.clock.Now()
	q.pool = newWorkerPool(cfg.workers)
	return q
}

// Shutdown stops the worker pool (after draining queued fires) and
// cancels any outstanding native arming. The queue is modeled as
// living for the process, but a constructed TimerQueue (as opposed to
// the package-level Default()) is a value tests and embedding
// applications may want to cleanly retire.
func (q *TimerQueue) Shutdown() {
	q.mu.Lock()
	q.shutdown = true
	if q.nativeTimer != nil {
		q.nativeTimer.Stop()
		q.nativeTimer = nil
	}
	q.armedDuration = Infinite
	q.mu.Unlock()
	q.pool.shutdown()
}

// now returns the current tick: milliseconds elapsed since the
// queue's epoch, truncated (by the uint32 conversion) to a wrapping
// 32-bit counter.
func (q *TimerQueue) now() Tick {
	return NewTick(uint32(q.clock.Now().Sub(q.epoch).Milliseconds()))
}

// Len reports the number of entries currently in the active list. It
// takes the lock and walks the list, so it is O(n) and meant for
// diagnostics/tests, not a hot path.
func (q *TimerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	q.head.forEachSafeRm(func(*TimerEntry) { n++ })
	return n
}

// Stats is a snapshot of queue-wide counters, for diagnostics.
type Stats struct {
	Pending       int // entries currently in the active list
	InFlight      int // sum of in_flight_count across active entries
	ArmedDuration uint32
}

// Stats returns a point-in-time snapshot under the queue lock.
func (q *TimerQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s Stats
	s.ArmedDuration = q.armedDuration
	q.head.forEachSafeRm(func(e *TimerEntry) {
		s.Pending++
		s.InFlight += e.inFlight
	})
	return s
}

// updateLocked inserts-or-relinks e then overwrites its schedule
// fields and ensures the native timer is armed soon enough. Must be
// called with q.mu held.
func (q *TimerQueue) updateLocked(e *TimerEntry, due, period uint32) {
	if detached(e) {
		q.head.insert(e)
	}
	e.dueOffset = due
	if period == 0 {
		period = Infinite
	}
	e.period = period
	e.startTick = q.now()
	q.ensureArmedByLocked(due)
}

// deleteLocked detaches e from the active list. Must be called with
// q.mu held.
func (q *TimerQueue) deleteLocked(e *TimerEntry) {
	if detached(e) {
		return
	}
	q.head.rm(e)
	e.dueOffset = Infinite
	e.period = Infinite
	e.startTick = 0
}

// ensureArmedByLocked keeps arming monotonic in "earliest next wake":
// it only (re)arms the native timer if doing so would make the next
// wake sooner than whatever is already armed. Must be called with
// q.mu held.
func (q *TimerQueue) ensureArmedByLocked(requested uint32) {
	actual := requested
	if actual > q.maxNative {
		// Deliberately under-promise: the sweep will see nothing is
		// actually due yet and re-arm with the recomputed remainder.
		// This is the only mechanism handling timeouts longer than the
		// platform ceiling.
		actual = q.maxNative
	}
	if q.armedDuration != Infinite {
		elapsed := q.now().Sub(q.armedStartTick).Val()
		if elapsed >= q.armedDuration {
			// the wake is imminent, don't touch the native timer
			return
		}
		if actual >= q.armedDuration-elapsed {
			// the outstanding arming already satisfies this request
			return
		}
	}
	q.scheduleNativeLocked(actual)
	q.armedDuration = actual
	q.armedStartTick = q.now()
}

// scheduleNativeLocked (re-)arms the platform one-shot timer: calling
// it again replaces any outstanding request. clockwork's
// AfterFunc/Stop pairing gives us exactly that contract, and
// clockwork.NewFakeClock lets tests drive it without real time
// passing.
func (q *TimerQueue) scheduleNativeLocked(actualMs uint32) {
	if q.nativeTimer != nil {
		q.nativeTimer.Stop()
	}
	q.nativeTimer = q.clock.AfterFunc(time.Duration(actualMs)*time.Millisecond, q.wake)
}

// wake is the platform adapter's wake callback: it always triggers a
// sweep. It runs on whatever goroutine the clock invokes it on (a
// dedicated goroutine per time.AfterFunc/clockwork.Timer), never
// holding q.mu across the call.
func (q *TimerQueue) wake() {
	q.mu.Lock()
	if q.shutdown {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()
	q.sweep()
}

// sweep walks the active list, detaches fired one-shots, re-schedules
// fired periodics, computes the next required arming, then runs the
// first expired entry (and any PriorityFast entries) in-line and hands
// the rest to the worker pool -- all under the lock except the in-line
// fires themselves, which must run unlocked since callbacks may call
// back into the queue.
func (q *TimerQueue) sweep() {
	q.mu.Lock()

	q.armedDuration = Infinite
	nextDuration := Infinite
	var firstToFire *TimerEntry
	var fastFires []*TimerEntry
	now := q.now()

	q.head.forEachSafeRm(func(e *TimerEntry) {
		elapsed := now.Sub(e.startTick).Val()
		if elapsed >= e.dueOffset {
			if e.period != Infinite {
				// periodic: advance start_tick and subtract the
				// overrun from the next interval so a lagging timer
				// does not drift forward by the accumulated delay.
				e.startTick = now
				overrun := elapsed - e.dueOffset
				if overrun < e.period {
					e.dueOffset = e.period - overrun
				} else {
					// the 1ms floor: re-schedule promptly without
					// starving the lock on a badly-lagging timer.
					e.dueOffset = 1
				}
				if e.dueOffset < nextDuration {
					nextDuration = e.dueOffset
				}
			} else {
				q.head.rm(e)
				e.dueOffset = Infinite
				e.period = Infinite
				e.startTick = 0
			}
			if firstToFire == nil {
				firstToFire = e
			} else if e.priority == PriorityFast {
				fastFires = append(fastFires, e)
			} else {
				entry := e
				q.pool.enqueue(entry.fire)
			}
		} else {
			remaining := e.dueOffset - elapsed
			if remaining < nextDuration {
				nextDuration = remaining
			}
		}
	})

	if nextDuration != Infinite {
		q.ensureArmedByLocked(nextDuration)
	}

	q.mu.Unlock()

	if firstToFire != nil {
		firstToFire.fire()
	}
	for _, e := range fastFires {
		e.fire()
	}
}
