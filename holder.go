// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package mtimer

import (
	"runtime"
	"sync/atomic"
)

// holder is the lifetime proxy: it forwards exactly one Close to the
// underlying entry, whether the user disposes explicitly or the holder
// becomes unreachable. Go has deterministic scope but not deterministic
// destruction, so it is backed by runtime.SetFinalizer as a backstop
// against a caller who drops a Timer without disposing it.
type holder struct {
	entry  *TimerEntry
	closed atomic.Bool
}

func newHolder(e *TimerEntry) *holder {
	h := &holder{entry: e}
	runtime.SetFinalizer(h, finalizeHolder)
	return h
}

// finalizeHolder runs if the user never disposed: it closes the entry
// exactly as an explicit dispose would.
func finalizeHolder(h *holder) {
	if h.closed.CompareAndSwap(false, true) {
		h.entry.Close()
	}
}

// claim marks the holder explicitly closed and suppresses the
// finalizer, so "close at most once" holds irrespective of path. It
// returns false if a close (explicit or finalized) already happened.
func (h *holder) claim() bool {
	if !h.closed.CompareAndSwap(false, true) {
		return false
	}
	runtime.SetFinalizer(h, nil)
	return true
}
