// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package mtimer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Timer is the public handle: purely a façade over a TimerEntry. It
// validates inputs, converts whichever of the four accepted time-unit
// surfaces the caller used into the internal u32-millisecond
// representation, and forwards. Disposal is exposed as three
// surfaces: Dispose (prompt), DisposeWait (signal-on-quiescence) and
// DisposeAsync (await-quiescence).
type Timer struct {
	h *holder
}

// TimerOption configures optional behavior at construction.
type TimerOption func(*entryOptions)

type entryOptions struct {
	ctx      context.Context
	priority Priority
}

// WithPriority sets the entry's dispatch priority (PriorityNormal by
// default). See Priority's doc comment.
func WithPriority(p Priority) TimerOption {
	return func(o *entryOptions) { o.priority = p }
}

// WithContext stores ctx on the entry at construction. The callback is
// still invoked with only its state argument; a ctx that is already
// done when the timer fires is only noted in a debug log line, and
// cancellation of ctx does not cancel the timer. Go has no implicit
// ambient execution context, so by default nothing is stored.
func WithContext(ctx context.Context) TimerOption {
	return func(o *entryOptions) { o.ctx = ctx }
}

var (
	defaultQueueOnce sync.Once
	defaultQueueVal  *TimerQueue
)

// Default returns the process-wide TimerQueue, constructing it (with
// default options: a real clock, a nop logger, defaultWorkerCount
// workers) on first use. Construct your own with NewQueue for tests
// instead of relying on this singleton.
func Default() *TimerQueue {
	defaultQueueOnce.Do(func() {
		defaultQueueVal = NewQueue()
	})
	return defaultQueueVal
}

// normalizeSigned implements the normalization rule shared by the
// int32/int64/time.Duration surfaces: -1 means Infinite, anything less
// than -1 is out of range, and anything over MaxSupported is out of
// range.
func normalizeSigned(v int64) (uint32, error) {
	if v == -1 {
		return Infinite, nil
	}
	if v < -1 {
		return 0, ErrOutOfRange
	}
	if v > int64(MaxSupported) {
		return 0, ErrOutOfRange
	}
	return uint32(v), nil
}

// normalizeUnsigned implements the unsigned surface's rule: 0xFFFFFFFF
// means Infinite, everything else (0..MaxSupported) passes through
// unchanged -- the uint32 domain itself rules out anything above
// MaxSupported other than the Infinite sentinel.
func normalizeUnsigned(v uint32) uint32 {
	if v == 0xFFFFFFFF {
		return Infinite
	}
	return v
}

func newTimerFrom(q *TimerQueue, cb Callback, state interface{}, due, period uint32, opts []TimerOption) (*Timer, error) {
	var o entryOptions
	for _, opt := range opts {
		opt(&o)
	}
	e, err := newEntry(q, cb, state, due, period, o.ctx, o.priority)
	if err != nil {
		return nil, err
	}
	return &Timer{h: newHolder(e)}, nil
}

// NewTimer constructs a timer using the time.Duration surface: the
// most idiomatic for Go and the one the package-level New sugar
// builds on. due/period of exactly -1 (any negative duration whose
// millisecond truncation is -1) mean Infinite; period of zero means
// one-shot.
func (q *TimerQueue) NewTimer(cb Callback, state interface{}, due, period time.Duration, opts ...TimerOption) (*Timer, error) {
	dueMs, err := normalizeSigned(due.Milliseconds())
	if err != nil {
		return nil, opErr("NewTimer", err)
	}
	periodMs, err := normalizeSigned(period.Milliseconds())
	if err != nil {
		return nil, opErr("NewTimer", err)
	}
	return newTimerFrom(q, cb, state, dueMs, periodMs, opts)
}

// NewTimerInt64 constructs a timer using the signed-64-bit-millisecond
// surface.
func (q *TimerQueue) NewTimerInt64(cb Callback, state interface{}, dueMs, periodMs int64, opts ...TimerOption) (*Timer, error) {
	due, err := normalizeSigned(dueMs)
	if err != nil {
		return nil, opErr("NewTimerInt64", err)
	}
	period, err := normalizeSigned(periodMs)
	if err != nil {
		return nil, opErr("NewTimerInt64", err)
	}
	return newTimerFrom(q, cb, state, due, period, opts)
}

// NewTimerInt32 constructs a timer using the signed-32-bit-millisecond
// surface.
func (q *TimerQueue) NewTimerInt32(cb Callback, state interface{}, dueMs, periodMs int32, opts ...TimerOption) (*Timer, error) {
	return q.NewTimerInt64(cb, state, int64(dueMs), int64(periodMs), opts...)
}

// NewTimerMs constructs a timer using the unsigned-32-bit-millisecond
// surface: 0xFFFFFFFF means Infinite, everything else is used as
// given (no lower bound -- there is no negative uint32).
func (q *TimerQueue) NewTimerMs(cb Callback, state interface{}, dueMs, periodMs uint32, opts ...TimerOption) (*Timer, error) {
	return newTimerFrom(q, cb, state, normalizeUnsigned(dueMs), normalizeUnsigned(periodMs), opts)
}

// New, NewInt64, NewInt32 and NewMs are package-level sugar over
// Default().NewTimer* for callers happy with the process-wide queue.
func New(cb Callback, state interface{}, due, period time.Duration, opts ...TimerOption) (*Timer, error) {
	return Default().NewTimer(cb, state, due, period, opts...)
}

func NewInt64(cb Callback, state interface{}, dueMs, periodMs int64, opts ...TimerOption) (*Timer, error) {
	return Default().NewTimerInt64(cb, state, dueMs, periodMs, opts...)
}

func NewInt32(cb Callback, state interface{}, dueMs, periodMs int32, opts ...TimerOption) (*Timer, error) {
	return Default().NewTimerInt32(cb, state, dueMs, periodMs, opts...)
}

func NewMs(cb Callback, state interface{}, dueMs, periodMs uint32, opts ...TimerOption) (*Timer, error) {
	return Default().NewTimerMs(cb, state, dueMs, periodMs, opts...)
}

// ID returns the underlying entry's debug identity.
func (t *Timer) ID() uuid.UUID {
	return t.h.entry.ID()
}

// Change re-schedules the timer using the time.Duration surface.
func (t *Timer) Change(due, period time.Duration) error {
	dueMs, err := normalizeSigned(due.Milliseconds())
	if err != nil {
		return opErr("Change", err)
	}
	periodMs, err := normalizeSigned(period.Milliseconds())
	if err != nil {
		return opErr("Change", err)
	}
	return t.h.entry.Change(dueMs, periodMs)
}

// ChangeInt64 re-schedules the timer using the signed-64-bit-millisecond surface.
func (t *Timer) ChangeInt64(dueMs, periodMs int64) error {
	due, err := normalizeSigned(dueMs)
	if err != nil {
		return opErr("ChangeInt64", err)
	}
	period, err := normalizeSigned(periodMs)
	if err != nil {
		return opErr("ChangeInt64", err)
	}
	return t.h.entry.Change(due, period)
}

// ChangeInt32 re-schedules the timer using the signed-32-bit-millisecond surface.
func (t *Timer) ChangeInt32(dueMs, periodMs int32) error {
	return t.ChangeInt64(int64(dueMs), int64(periodMs))
}

// ChangeMs re-schedules the timer using the unsigned-32-bit-millisecond surface.
func (t *Timer) ChangeMs(dueMs, periodMs uint32) error {
	return t.h.entry.Change(normalizeUnsigned(dueMs), normalizeUnsigned(periodMs))
}

// Dispose is the prompt disposal surface: it returns immediately and
// does not wait for any in-flight callback.
func (t *Timer) Dispose() {
	t.h.claim()
	t.h.entry.Close()
}

// DisposeWait is the signal-on-quiescence disposal surface. sig is set
// once the entry is quiescent (canceled && in_flight_count == 0),
// possibly before DisposeWait itself returns. It fails with
// ErrArgNull if sig is nil, and reports alreadyClosed=true (leaving sig
// unset) if any disposal surface, including an earlier DisposeWait,
// already closed this timer.
func (t *Timer) DisposeWait(sig Signal) (alreadyClosed bool, err error) {
	if sig == nil {
		return false, opErr("DisposeWait", ErrArgNull)
	}
	t.h.claim()
	return t.h.entry.CloseSignal(sig)
}

// DisposeAsync is the await-quiescence disposal surface: it returns a
// Future that completes when the entry is quiescent. It fails with
// ErrAlreadyClosed if DisposeWait already claimed the completion slot
// for this timer: the two are not bridged.
func (t *Timer) DisposeAsync() (*Future, error) {
	t.h.claim()
	return t.h.entry.CloseAsync()
}
