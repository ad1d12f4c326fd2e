// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package mtimer

import "testing"

func newDetachedEntry() *TimerEntry {
	e := &TimerEntry{}
	e.next = e
	e.prev = e
	return e
}

func TestEntryListInsertOrder(t *testing.T) {
	var lst entryList
	lst.init()
	if !lst.isEmpty() {
		t.Fatalf("freshly initialized list must be empty")
	}

	a, b, c := newDetachedEntry(), newDetachedEntry(), newDetachedEntry()
	lst.insert(a) // [a]
	lst.insert(b) // [b, a]
	lst.insert(c) // [c, b, a]

	var order []*TimerEntry
	lst.forEachSafeRm(func(e *TimerEntry) { order = append(order, e) })
	if len(order) != 3 || order[0] != c || order[1] != b || order[2] != a {
		t.Fatalf("unexpected iteration order: %v", order)
	}
}

func TestEntryListAppendOrder(t *testing.T) {
	var lst entryList
	lst.init()

	a, b, c := newDetachedEntry(), newDetachedEntry(), newDetachedEntry()
	lst.append(a) // [a]
	lst.append(b) // [a, b]
	lst.append(c) // [a, b, c]

	var order []*TimerEntry
	lst.forEachSafeRm(func(e *TimerEntry) { order = append(order, e) })
	if len(order) != 3 || order[0] != a || order[1] != b || order[2] != c {
		t.Fatalf("unexpected iteration order: %v", order)
	}
}

func TestEntryListRemove(t *testing.T) {
	var lst entryList
	lst.init()

	a, b, c := newDetachedEntry(), newDetachedEntry(), newDetachedEntry()
	lst.append(a)
	lst.append(b)
	lst.append(c)

	lst.rm(b)
	if !detached(b) {
		t.Fatalf("removed entry must report detached")
	}

	var order []*TimerEntry
	lst.forEachSafeRm(func(e *TimerEntry) { order = append(order, e) })
	if len(order) != 2 || order[0] != a || order[1] != c {
		t.Fatalf("unexpected iteration order after rm: %v", order)
	}
}

func TestEntryListForEachSafeRm(t *testing.T) {
	var lst entryList
	lst.init()

	a, b, c := newDetachedEntry(), newDetachedEntry(), newDetachedEntry()
	lst.append(a)
	lst.append(b)
	lst.append(c)

	var seen []*TimerEntry
	lst.forEachSafeRm(func(e *TimerEntry) {
		seen = append(seen, e)
		lst.rm(e) // every callback removes its own entry
	})

	if len(seen) != 3 {
		t.Fatalf("expected all 3 entries visited once, got %d", len(seen))
	}
	if !lst.isEmpty() {
		t.Fatalf("list must be empty after removing every entry")
	}
}

func TestEntryListInsertPanicsOnLinkedEntry(t *testing.T) {
	var lst entryList
	lst.init()
	a := newDetachedEntry()
	lst.insert(a)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected insert of an already-linked entry to panic")
		}
	}()
	lst.insert(a)
}

func TestEntryListRmPanicsOnDetachedEntry(t *testing.T) {
	a := newDetachedEntry()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected rm of a detached entry to panic")
		}
	}()
	var lst entryList
	lst.init()
	lst.rm(a)
}

func TestDetached(t *testing.T) {
	a := newDetachedEntry()
	if !detached(a) {
		t.Fatalf("freshly constructed entry must be detached")
	}

	var lst entryList
	lst.init()
	lst.insert(a)
	if detached(a) {
		t.Fatalf("linked entry must not report detached")
	}
}
