// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package system

import (
	"sync/atomic"

	"github.com/tracehound/ketrace/correlate"
	"github.com/tracehound/ketrace/decode"
)

// Entry is one appended log entry: the decoded event plus its write-once
// stack-walk slot. It must be copied out of the OS callback before
// appending (spec.md §9, "callback lifetime"); decode.Walk already
// returns owned Go values, so only the struct itself needs to outlive
// the callback.
type Entry struct {
	Event     decode.DecodedEvent
	stackWalk atomic.Pointer[correlate.StackWalk]
	paired    atomic.Pointer[Entry]
}

// SetStackWalk implements correlate.Target: the slot is write-once, and
// a second call reports ok=false so the correlator can log the
// duplicate per spec.md §9.
func (e *Entry) SetStackWalk(sw *correlate.StackWalk) bool {
	return e.stackWalk.CompareAndSwap(nil, sw)
}

// StackWalk returns the attached stack-walk, or nil if none has arrived
// yet.
func (e *Entry) StackWalk() *correlate.StackWalk { return e.stackWalk.Load() }

// SetPaired records the counterpart entry a pair-matching rule resolved
// against e (spec.md §4.7's pair evaluation). Both halves of a pair get
// a pointer to each other.
func (e *Entry) SetPaired(other *Entry) { e.paired.Store(other) }

// Paired returns the matched counterpart entry, or nil if e hasn't been
// paired.
func (e *Entry) Paired() *Entry { return e.paired.Load() }

// EventName, OpcodeName, Timestamp, ProcessID, ThreadID, and Properties
// implement filter.Event, so an *Entry can be evaluated directly against
// a parsed single-event filter expression.
func (e *Entry) EventName() string          { return e.Event.EventName }
func (e *Entry) OpcodeName() string         { return e.Event.OpcodeName }
func (e *Entry) Timestamp() decode.FileTime { return e.Event.Timestamp }
func (e *Entry) ProcessID() uint32          { return e.Event.ProcessID }
func (e *Entry) ThreadID() uint32           { return e.Event.ThreadID }
func (e *Entry) Properties() decode.Value   { return e.Event.Properties }

// PropertiesValue implements filter.PairEvent's field-lookup view: the
// string form of one named top-level property, for pair-matching key
// paths (spec.md §4.7).
func (e *Entry) PropertiesValue() func(field string) (string, bool) {
	return func(field string) (string, bool) {
		v, ok := e.Event.Properties.Field(field)
		if !ok {
			return "", false
		}
		return v.AsString(), true
	}
}
