// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package mtimer

import (
	"context"
	"sync/atomic"

	"github.com/archtimer/mtimer/internal/tlog"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Callback is a timer handler: the function invoked when a TimerEntry
// expires. state is the opaque argument bound at construction.
type Callback func(state interface{})

// Priority selects how a sweep dispatches an expired entry.
// PriorityNormal is the default: the first entry a sweep finds expired
// runs in-line, every other one goes to the worker pool. PriorityFast
// entries always run in-line, regardless of dispatch order, for
// handlers cheap and latency-sensitive enough that a pool round-trip
// is the wrong trade.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityFast
)

// completionNotify is satisfied by both *Future and externalSignal,
// letting TimerEntry carry either as its completion notification
// without knowing which; the two are mutually exclusive once set.
type completionNotify interface {
	signal()
}

type externalSignal struct {
	s Signal
}

func (e externalSignal) signal() {
	e.s.Set()
}

// TimerEntry is the per-timer scheduling record. It is also the
// intrusive list node: next/prev are valid only while the entry is
// linked into a TimerQueue's active list. Every field below is guarded
// by the owning TimerQueue's mutex. canceled is only written under that
// mutex but is also read without holding it, and so stays an
// atomic.Bool.
type TimerEntry struct {
	next, prev *TimerEntry

	id uuid.UUID
	q  *TimerQueue

	dueOffset uint32 // Infinite => not a member of the list
	period    uint32 // Infinite => one-shot
	startTick Tick

	callback Callback
	state    interface{}
	ctx      context.Context // nil => invoke raw, no ambient capture
	priority Priority

	inFlight int // guarded by q.mu

	canceled atomic.Bool

	notify completionNotify // guarded by q.mu; set at most once
}

// newEntry constructs a detached entry bound to q. If due is not
// Infinite it is armed immediately via Change; callers must not assume
// any ordering guarantee about when the first fire can happen relative
// to the constructor returning.
func newEntry(q *TimerQueue, cb Callback, state interface{}, due, period uint32, ctx context.Context, priority Priority) (*TimerEntry, error) {
	if cb == nil {
		return nil, ErrArgNull
	}
	e := &TimerEntry{
		id:        uuid.New(),
		q:         q,
		dueOffset: Infinite,
		period:    Infinite,
		callback:  cb,
		state:     state,
		ctx:       ctx,
		priority:  priority,
	}
	e.next = e
	e.prev = e
	if due != Infinite {
		if err := e.Change(due, period); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// ID returns the entry's debug identity, attached to every log line
// this entry emits so a sweep touching many entries can still be
// followed per-timer.
func (e *TimerEntry) ID() uuid.UUID {
	return e.id
}

// Change re-schedules the entry. due == Infinite detaches it. Fails
// with ErrDisposed if the entry has been closed.
func (e *TimerEntry) Change(due, period uint32) error {
	if e.canceled.Load() {
		return opErr("Change", ErrDisposed)
	}
	q := e.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if e.canceled.Load() {
		return opErr("Change", ErrDisposed)
	}
	if due == Infinite {
		q.deleteLocked(e)
		return nil
	}
	q.updateLocked(e, due, period)
	return nil
}

// Close performs a prompt dispose: it returns immediately and
// in-flight callbacks may still be running.
func (e *TimerEntry) Close() {
	q := e.q
	q.mu.Lock()
	if e.canceled.Load() {
		q.mu.Unlock()
		return
	}
	e.canceled.Store(true)
	q.deleteLocked(e)
	q.mu.Unlock()
}

// CloseSignal is the signal-on-quiescence dispose surface. It reports
// alreadyClosed=true (no error) if this entry was already closed by any
// path (prompt, signal or async), and then never sets sig: a timer may
// be closed at most once, no matter which of the three surfaces wins
// the race.
func (e *TimerEntry) CloseSignal(sig Signal) (alreadyClosed bool, err error) {
	if sig == nil {
		return false, opErr("CloseSignal", ErrArgNull)
	}
	q := e.q
	q.mu.Lock()
	if e.canceled.Load() {
		q.mu.Unlock()
		return true, nil
	}
	e.canceled.Store(true)
	e.notify = externalSignal{s: sig}
	q.deleteLocked(e)
	quiescent := e.inFlight == 0
	q.mu.Unlock()
	if quiescent {
		sig.Set()
	}
	return false, nil
}

// CloseAsync is the await-quiescence dispose surface. It deliberately
// rejects a second call after CloseSignal already claimed the
// completion slot: an externally supplied Signal may be consumed
// before an async Future could safely observe the same transition, so
// the two are not bridged.
func (e *TimerEntry) CloseAsync() (*Future, error) {
	q := e.q
	q.mu.Lock()
	if e.canceled.Load() {
		switch n := e.notify.(type) {
		case externalSignal:
			q.mu.Unlock()
			return nil, opErr("CloseAsync", ErrAlreadyClosed)
		case *Future:
			q.mu.Unlock()
			return n, nil
		default:
			// canceled with no notify yet installed (e.g. a bare
			// Close()) -- CloseAsync may still claim the slot.
		}
	} else {
		e.canceled.Store(true)
		q.deleteLocked(e)
	}
	f, _ := e.notify.(*Future)
	if f == nil {
		f = newFuture()
		e.notify = f
	}
	quiescent := e.inFlight == 0
	q.mu.Unlock()
	if quiescent {
		f.signal()
	}
	return f, nil
}

// fire runs the entry's callback: observe cancellation under the lock,
// bump in_flight, release the lock, invoke, reacquire, decrement, and
// signal quiescence if this was the last in-flight invocation of a
// closed entry.
//
// Callbacks may legally call Change/Close/CloseAsync or create new
// timers, because the lock is not held while the callback runs.
func (e *TimerEntry) fire() {
	q := e.q
	q.mu.Lock()
	if e.canceled.Load() {
		q.mu.Unlock()
		return
	}
	e.inFlight++
	q.mu.Unlock()

	e.invokeRecovering()

	q.mu.Lock()
	e.inFlight--
	if e.inFlight < 0 {
		tlog.PANIC("in_flight_count went negative", zap.String("timer", e.id.String()))
	}
	var n completionNotify
	if e.canceled.Load() && e.inFlight == 0 && e.notify != nil {
		n = e.notify
	}
	q.mu.Unlock()
	if n != nil {
		n.signal()
	}
}

// invokeRecovering calls invoke, recovering from a panic so that a
// faulting callback still reaches the in_flight-- above: a callback
// fault must not leave the barrier permanently armed.
func (e *TimerEntry) invokeRecovering() {
	defer func() {
		if r := recover(); r != nil {
			tlog.ERR("recovered from panicking timer callback",
				zap.String("timer", e.id.String()), zap.Any("panic", r))
		}
	}()
	e.invoke()
}

// invoke calls the callback, optionally through the captured ambient
// context. A callback fault is never the queue's concern beyond not
// leaving in_flight_count inflated; invokeRecovering (the only caller)
// guarantees that regardless of whether this entry is run in-line by
// the sweep or dispatched through the worker pool.
func (e *TimerEntry) invoke() {
	if e.ctx != nil {
		select {
		case <-e.ctx.Done():
			// captured context already canceled: still run the
			// callback, context cancellation does not itself cancel
			// the timer, but record it.
			if tlog.DBGon() {
				tlog.DBG("timer fired with a canceled captured context",
					zap.String("timer", e.id.String()))
			}
		default:
		}
	}
	e.callback(e.state)
}
