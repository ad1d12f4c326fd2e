// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package mtimer

import "github.com/archtimer/mtimer/internal/tlog"

// entryList is an intrusive circular doubly-linked list of TimerEntry
// values, headed by a sentinel node (entryList.head) that is never a
// real entry.
//
// There is no internal locking: every call site holds the queue lock
// for the duration of the mutation.
type entryList struct {
	head TimerEntry
}

// init prepares an empty, self-referential list head.
func (lst *entryList) init() {
	lst.head.next = &lst.head
	lst.head.prev = &lst.head
}

// isEmpty reports whether the list has no entries.
func (lst *entryList) isEmpty() bool {
	return lst.head.next == &lst.head
}

// detached reports whether e is currently not a member of any list.
func detached(e *TimerEntry) bool {
	return e == e.next || (e.next == nil && e.prev == nil)
}

// insert adds e at the front of the list. e must be detached.
func (lst *entryList) insert(e *TimerEntry) {
	if !detached(e) {
		tlog.PANIC("entryList insert called on a linked entry")
	}
	e.prev = &lst.head
	e.next = lst.head.next
	e.next.prev = e
	lst.head.next = e
}

// append adds e at the back of the list. e must be detached.
func (lst *entryList) append(e *TimerEntry) {
	if !detached(e) {
		tlog.PANIC("entryList append called on a linked entry")
	}
	e.prev = lst.head.prev
	e.next = &lst.head
	e.prev.next = e
	lst.head.prev = e
}

// rm removes e from whichever list it is on (which must be lst) and
// marks it detached.
func (lst *entryList) rm(e *TimerEntry) {
	if e == nil || e.next == nil || e.prev == nil {
		tlog.PANIC("entryList rm called with a nil-linked entry")
	}
	if e.next == e || e.prev == e {
		tlog.PANIC("entryList rm called with an already-detached entry")
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next = e
	e.prev = e
}

// forEachSafeRm iterates over the list calling f for every entry,
// capturing each entry's successor before calling f so that f may
// remove the current entry (but not any other) from the list.
func (lst *entryList) forEachSafeRm(f func(e *TimerEntry)) {
	s := lst.head.next
	for v, nxt := s, s.next; v != &lst.head; v, nxt = nxt, nxt.next {
		f(v)
	}
}
