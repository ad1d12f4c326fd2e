// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package mtimer

import (
	"context"
	"testing"
	"time"
)

func TestNewEntryRejectsNilCallback(t *testing.T) {
	q := NewQueue()
	defer q.Shutdown()

	if _, err := newEntry(q, nil, nil, Infinite, Infinite, nil, PriorityNormal); err == nil {
		t.Fatalf("expected an error for a nil callback")
	}
}

func TestEntryFireDispatchesCallback(t *testing.T) {
	q := NewQueue()
	defer q.Shutdown()

	done := make(chan struct{})
	e, err := newEntry(q, func(state interface{}) {
		close(done)
	}, nil, Infinite, Infinite, nil, PriorityNormal)
	if err != nil {
		t.Fatalf("newEntry: %v", err)
	}

	go e.fire()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("callback was never invoked")
	}
}

func TestEntryFireSkipsCanceled(t *testing.T) {
	q := NewQueue()
	defer q.Shutdown()

	called := false
	e, err := newEntry(q, func(state interface{}) {
		called = true
	}, nil, Infinite, Infinite, nil, PriorityNormal)
	if err != nil {
		t.Fatalf("newEntry: %v", err)
	}
	e.Close()
	e.fire()

	if called {
		t.Fatalf("a canceled entry's callback must not be invoked")
	}
}

func TestEntryChangeAfterCloseFails(t *testing.T) {
	q := NewQueue()
	defer q.Shutdown()

	e, err := newEntry(q, func(interface{}) {}, nil, Infinite, Infinite, nil, PriorityNormal)
	if err != nil {
		t.Fatalf("newEntry: %v", err)
	}
	e.Close()

	if err := e.Change(100, Infinite); err == nil {
		t.Fatalf("expected Change on a disposed entry to fail")
	}
}

func TestEntryCloseSignalReportsQuiescenceImmediately(t *testing.T) {
	q := NewQueue()
	defer q.Shutdown()

	e, err := newEntry(q, func(interface{}) {}, nil, Infinite, Infinite, nil, PriorityNormal)
	if err != nil {
		t.Fatalf("newEntry: %v", err)
	}

	ev := NewManualResetEvent()
	alreadyClosed, err := e.CloseSignal(ev)
	if err != nil {
		t.Fatalf("CloseSignal: %v", err)
	}
	if alreadyClosed {
		t.Fatalf("first CloseSignal must report alreadyClosed=false")
	}
	if !ev.IsSet() {
		t.Fatalf("a quiescent entry's signal must be set promptly")
	}
}

func TestEntryCloseSignalTwiceReportsAlreadyClosed(t *testing.T) {
	q := NewQueue()
	defer q.Shutdown()

	e, err := newEntry(q, func(interface{}) {}, nil, Infinite, Infinite, nil, PriorityNormal)
	if err != nil {
		t.Fatalf("newEntry: %v", err)
	}

	ev1 := NewManualResetEvent()
	ev2 := NewManualResetEvent()
	if _, err := e.CloseSignal(ev1); err != nil {
		t.Fatalf("first CloseSignal: %v", err)
	}
	alreadyClosed, err := e.CloseSignal(ev2)
	if err != nil {
		t.Fatalf("second CloseSignal: %v", err)
	}
	if !alreadyClosed {
		t.Fatalf("second CloseSignal must report alreadyClosed=true")
	}
	if ev2.IsSet() {
		t.Fatalf("the second signal must never be set, it lost the race for the completion slot")
	}
}

func TestEntryCloseAsyncAfterCloseSignalFails(t *testing.T) {
	q := NewQueue()
	defer q.Shutdown()

	e, err := newEntry(q, func(interface{}) {}, nil, Infinite, Infinite, nil, PriorityNormal)
	if err != nil {
		t.Fatalf("newEntry: %v", err)
	}

	if _, err := e.CloseSignal(NewManualResetEvent()); err != nil {
		t.Fatalf("CloseSignal: %v", err)
	}
	if _, err := e.CloseAsync(); err == nil {
		t.Fatalf("expected CloseAsync to reject a completion slot already claimed by CloseSignal")
	}
}

func TestEntryCloseAsyncTwiceReturnsSameFuture(t *testing.T) {
	q := NewQueue()
	defer q.Shutdown()

	e, err := newEntry(q, func(interface{}) {}, nil, Infinite, Infinite, nil, PriorityNormal)
	if err != nil {
		t.Fatalf("newEntry: %v", err)
	}

	f1, err := e.CloseAsync()
	if err != nil {
		t.Fatalf("first CloseAsync: %v", err)
	}
	f2, err := e.CloseAsync()
	if err != nil {
		t.Fatalf("second CloseAsync: %v", err)
	}
	if f1 != f2 {
		t.Fatalf("repeated CloseAsync must return the same future")
	}

	select {
	case <-f1.Done():
	case <-time.After(time.Second):
		t.Fatalf("future for a quiescent entry must complete promptly")
	}
}

func TestEntryFireRecoversFromPanic(t *testing.T) {
	q := NewQueue()
	defer q.Shutdown()

	e, err := newEntry(q, func(interface{}) {
		panic("boom")
	}, nil, Infinite, Infinite, nil, PriorityNormal)
	if err != nil {
		t.Fatalf("newEntry: %v", err)
	}

	done := make(chan struct{})
	go func() {
		e.fire()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("a panicking callback must not hang fire()")
	}

	if e.inFlight != 0 {
		t.Fatalf("in_flight_count must return to zero even after a panicking callback")
	}
}

func TestEntryWithContextRunsEvenWhenCanceled(t *testing.T) {
	q := NewQueue()
	defer q.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := make(chan struct{})
	e, err := newEntry(q, func(interface{}) {
		close(called)
	}, nil, Infinite, Infinite, ctx, PriorityNormal)
	if err != nil {
		t.Fatalf("newEntry: %v", err)
	}
	e.fire()

	select {
	case <-called:
	default:
		t.Fatalf("a canceled captured context must not itself suppress the callback")
	}
}
