// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package mtimer

import "strconv"

// Infinite is the due_offset/period sentinel meaning "not scheduled"
// (for due_offset) or "one-shot" (for period).
const Infinite uint32 = 0xFFFFFFFF

// MaxNative is the platform arming ceiling: roughly 74 hours in
// milliseconds. ensureArmedByLocked never requests more than this from
// the native one-shot timer, even when a timer's real due offset is
// larger; a spurious early wake re-arms with the recomputed remainder.
const MaxNative uint32 = 0x0FFFFFFF

// MaxSupported is the largest duration, in milliseconds, accepted by
// the signed/duration public-handle surfaces. The unsigned surface
// accepts the same range and additionally treats 0xFFFFFFFF as
// Infinite.
const MaxSupported uint32 = 0xFFFFFFFE

// Tick is a wrapping 32-bit millisecond counter. Two Ticks are only
// meaningfully comparable if their true difference is representable in
// 32 bits with the sign bit free, i.e. less than 1<<31 apart.
//
// Operations are modular: Add/Sub/LT/GT wrap around silently by
// design, fixed at 32 bits so spans of up to ~49.7 days are
// representable.
type Tick uint32

// NewTick constructs a Tick from a raw uint32.
func NewTick(v uint32) Tick {
	return Tick(v)
}

// Val returns the raw uint32 value.
func (t Tick) Val() uint32 {
	return uint32(t)
}

// EQ reports t == u.
func (t Tick) EQ(u Tick) bool {
	return t == u
}

// NE reports t != u.
func (t Tick) NE(u Tick) bool {
	return t != u
}

// LT reports whether t is before u, interpreting t-u as a signed
// 32-bit delta (wrap-aware, valid as long as the true distance between
// t and u is under 1<<31 ticks).
func (t Tick) LT(u Tick) bool {
	return int32(t-u) < 0
}

// GT reports whether t is after u.
func (t Tick) GT(u Tick) bool {
	return int32(t-u) > 0
}

// LE reports t <= u.
func (t Tick) LE(u Tick) bool {
	return t.LT(u) || t.EQ(u)
}

// GE reports t >= u.
func (t Tick) GE(u Tick) bool {
	return !t.LT(u)
}

// Add returns t+u modulo 2^32.
func (t Tick) Add(u Tick) Tick {
	return t + u
}

// Sub returns t-u modulo 2^32 (a signed delta when interpreted via LT/GT).
func (t Tick) Sub(u Tick) Tick {
	return t - u
}

// AddUint32 adds a raw delta.
func (t Tick) AddUint32(u uint32) Tick {
	return t + Tick(u)
}

// String renders the raw tick value.
func (t Tick) String() string {
	return strconv.FormatUint(uint64(t), 10)
}
