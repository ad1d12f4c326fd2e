// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package mtimer

import (
	"context"
	"sync"
)

// Signal is a synchronizable one-shot signal object: something a
// caller can hand to CloseSignal and later observe as set.
// ManualResetEvent below is a ready-made implementation; callers may
// also supply their own.
type Signal interface {
	Set()
}

// ManualResetEvent is a Signal implemented with a channel close.
type ManualResetEvent struct {
	once sync.Once
	done chan struct{}
}

// NewManualResetEvent returns a ManualResetEvent, initially unset.
func NewManualResetEvent() *ManualResetEvent {
	return &ManualResetEvent{done: make(chan struct{})}
}

// Set marks the event signaled. Safe to call more than once or
// concurrently; only the first call has effect.
func (m *ManualResetEvent) Set() {
	m.once.Do(func() { close(m.done) })
}

// Wait blocks until Set is called or ctx is done, whichever comes
// first.
func (m *ManualResetEvent) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsSet reports whether Set has been called, without blocking.
func (m *ManualResetEvent) IsSet() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Future is the completion handle returned by the await-quiescence
// dispose surface (DisposeAsync). It completes exactly once, when the
// entry's in_flight_count reaches zero after cancellation.
type Future struct {
	once sync.Once
	done chan struct{}
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) signal() {
	f.once.Do(func() { close(f.done) })
}

// Done returns a channel that is closed when the future completes.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future completes or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsDone reports whether the future has already completed, without
// blocking.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
